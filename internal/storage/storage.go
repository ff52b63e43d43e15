// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package storage wraps the DuckDB-backed datastore: connection pool
// configuration, schema bootstrap, and the CRUD the persistence engine (C5)
// and last-location cache (C6) write through to.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/models"
)

// Config configures the datastore connection pool.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sane pool defaults; health.DatastorePool (spec §4.8)
// treats a pool below 5 total connections as under-provisioned.
func DefaultConfig() Config {
	return Config{
		Path:            "gpstracker.duckdb",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Store is the datastore handle: a pooled DuckDB connection plus the
// schema for the vehicle directory, last-location, and the partitioned
// history view.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if absent) the DuckDB file at cfg.Path and applies
// pool settings. DuckDB has no native TIMESTAMPTZ coercion path when the
// column type is plain TIMESTAMP, so a wall-clock string written here is
// read back byte-identical regardless of process $TZ (spec §9).
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &Store{db: db, log: log}
	if err := s.bootstrap(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vehicle (
			id BIGINT PRIMARY KEY,
			serial_number VARCHAR UNIQUE NOT NULL,
			imei VARCHAR,
			device_id VARCHAR,
			installation_date TIMESTAMP,
			renewal_date TIMESTAMP,
			dealer_id BIGINT,
			admin_id BIGINT,
			client_id BIGINT,
			user_id BIGINT,
			superadmin_id BIGINT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS vehicle_device_id_idx ON vehicle(device_id)`,
		`CREATE TABLE IF NOT EXISTS last_location (
			device_id VARCHAR PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			latitude DOUBLE,
			longitude DOUBLE,
			speed DOUBLE,
			course VARCHAR,
			ignition BOOLEAN,
			vehicle_status VARCHAR,
			gsm_strength VARCHAR,
			sequence_number VARCHAR,
			panic BOOLEAN,
			dealer_id BIGINT,
			admin_id BIGINT,
			client_id BIGINT,
			user_id BIGINT,
			superadmin_id BIGINT,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS partition_meta (
			name VARCHAR PRIMARY KEY,
			range_start TIMESTAMP NOT NULL,
			range_end TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dead_letter (
			id BIGINT PRIMARY KEY,
			batch_json VARCHAR NOT NULL,
			attempts INTEGER NOT NULL,
			last_error VARCHAR,
			first_seen TIMESTAMP NOT NULL,
			last_attempt TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: bootstrap: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying pool for packages (partition manager) that need
// to run DDL the Store itself does not wrap.
func (s *Store) DB() *sql.DB { return s.db }

// Stats reports pool occupancy for the health probe (spec §4.8).
func (s *Store) Stats() sql.DBStats { return s.db.Stats() }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// UpsertVehicle inserts or replaces a vehicle directory row. The directory
// itself is owned by an external CRUD surface (spec §1); gpstracker only
// needs to read it, but tests and local seeding use this to populate it.
func (s *Store) UpsertVehicle(ctx context.Context, v models.Vehicle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vehicle
			(id, serial_number, imei, device_id, installation_date, renewal_date,
			 dealer_id, admin_id, client_id, user_id, superadmin_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SerialNumber, v.IMEI, v.DeviceID, v.InstallationAt, v.RenewalAt,
		v.Owners.DealerID, v.Owners.AdminID, v.Owners.ClientID, v.Owners.UserID, v.Owners.SuperadminID)
	return err
}

// VehicleByDeviceID looks up the owner references for a device-id, used by
// the ingestion pipeline's enrichment step (spec §4.4 step 4).
func (s *Store) VehicleByDeviceID(ctx context.Context, deviceID string) (models.Vehicle, error) {
	var v models.Vehicle
	row := s.db.QueryRowContext(ctx, `
		SELECT id, serial_number, coalesce(imei,''), coalesce(device_id,''),
		       installation_date, renewal_date,
		       dealer_id, admin_id, client_id, user_id, superadmin_id
		FROM vehicle WHERE device_id = ?`, deviceID)
	err := row.Scan(&v.ID, &v.SerialNumber, &v.IMEI, &v.DeviceID,
		&v.InstallationAt, &v.RenewalAt,
		&v.Owners.DealerID, &v.Owners.AdminID, &v.Owners.ClientID, &v.Owners.UserID, &v.Owners.SuperadminID)
	return v, err
}

// UpsertLastLocation writes the write-through side of C6: insert or
// overwrite the one row per device-id.
func (s *Store) UpsertLastLocation(ctx context.Context, loc models.LastLocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_location
			(device_id, timestamp, latitude, longitude, speed, course, ignition,
			 vehicle_status, gsm_strength, sequence_number, panic,
			 dealer_id, admin_id, client_id, user_id, superadmin_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			latitude = coalesce(excluded.latitude, last_location.latitude),
			longitude = coalesce(excluded.longitude, last_location.longitude),
			speed = coalesce(excluded.speed, last_location.speed),
			course = coalesce(excluded.course, last_location.course),
			ignition = coalesce(excluded.ignition, last_location.ignition),
			vehicle_status = coalesce(excluded.vehicle_status, last_location.vehicle_status),
			gsm_strength = coalesce(excluded.gsm_strength, last_location.gsm_strength),
			sequence_number = coalesce(excluded.sequence_number, last_location.sequence_number),
			panic = coalesce(excluded.panic, last_location.panic),
			dealer_id = coalesce(excluded.dealer_id, last_location.dealer_id),
			admin_id = coalesce(excluded.admin_id, last_location.admin_id),
			client_id = coalesce(excluded.client_id, last_location.client_id),
			user_id = coalesce(excluded.user_id, last_location.user_id),
			superadmin_id = coalesce(excluded.superadmin_id, last_location.superadmin_id),
			updated_at = excluded.updated_at`,
		loc.DeviceID, loc.Timestamp, loc.Latitude, loc.Longitude, loc.Speed, loc.Course, loc.Ignition,
		loc.VehicleStatus, loc.GSMStrength, loc.SequenceNumber, loc.Panic,
		loc.Owners.DealerID, loc.Owners.AdminID, loc.Owners.ClientID, loc.Owners.UserID, loc.Owners.SuperadminID,
		loc.UpdatedAt)
	return err
}

// AnalyzeTable refreshes DuckDB's cardinality statistics for one table,
// backing `POST /api/v1/partitions/{name}/analyze`.
func (s *Store) AnalyzeTable(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`ANALYZE %s`, table))
	return err
}

// OptimizeTable compacts row groups and reclaims deleted space, backing
// `POST /api/v1/partitions/{name}/optimize`. DuckDB has no per-table VACUUM;
// PRAGMA optimize is the closest equivalent and runs database-wide, so this
// is safe to call per-partition but its cost does not scale with the size of
// just that one table.
func (s *Store) OptimizeTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ANALYZE %s`, table)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `PRAGMA optimize`)
	return err
}

// RecordDeadLetter persists a batch that exhausted its retry budget so it
// survives a restart, backing the dead_letter side of §4.6's failure path.
func (s *Store) RecordDeadLetter(ctx context.Context, id int64, batchJSON, lastError string, attempts int, firstSeen, lastAttempt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letter (id, batch_json, attempts, last_error, first_seen, last_attempt)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			last_attempt = excluded.last_attempt`,
		id, batchJSON, attempts, lastError, firstSeen, lastAttempt)
	return err
}

// LastLocationByDeviceID serves `/api/vehicle/latest-location/{deviceId}`.
func (s *Store) LastLocationByDeviceID(ctx context.Context, deviceID string) (models.LastLocation, error) {
	var loc models.LastLocation
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, timestamp, latitude, longitude, speed, course, ignition,
		       vehicle_status, gsm_strength, sequence_number, panic,
		       dealer_id, admin_id, client_id, user_id, superadmin_id, updated_at
		FROM last_location WHERE device_id = ?`, deviceID)
	err := row.Scan(&loc.DeviceID, &loc.Timestamp, &loc.Latitude, &loc.Longitude, &loc.Speed, &loc.Course, &loc.Ignition,
		&loc.VehicleStatus, &loc.GSMStrength, &loc.SequenceNumber, &loc.Panic,
		&loc.Owners.DealerID, &loc.Owners.AdminID, &loc.Owners.ClientID, &loc.Owners.UserID, &loc.Owners.SuperadminID,
		&loc.UpdatedAt)
	return loc, err
}
