// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jothiesh/gpstracker/internal/models"
)

// historyColumns is the column list shared by every physical partition
// table, the UNION-ALL view over them, and the upsert statement.
const historyColumns = `device_id, timestamp, latitude, longitude, speed, course, ignition,
	vehicle_status, gsm_strength, sequence_number, panic,
	dealer_id, admin_id, client_id, user_id, superadmin_id`

// CreatePartitionTable creates the physical table backing one history
// partition, if it does not already exist. Idempotent, per spec §4.2.
func (s *Store) CreatePartitionTable(ctx context.Context, table string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		device_id VARCHAR NOT NULL,
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
		PRIMARY KEY (device_id, timestamp)
	)`, table)
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// DropPartitionTable drops one physical partition table.
func (s *Store) DropPartitionTable(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table))
	return err
}

// RebuildHistoryView recreates the `history` view as the UNION ALL of every
// live partition table, called whenever the partition set changes. DuckDB
// has no declarative range partitioning, so this view is the stand-in for
// it (spec §4.2, SPEC_FULL.md §4.2).
func (s *Store) RebuildHistoryView(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		_, err := s.db.ExecContext(ctx, `DROP VIEW IF EXISTS history`)
		return err
	}
	selects := make([]string, len(tables))
	for i, t := range tables {
		selects[i] = fmt.Sprintf("SELECT %s FROM %s", historyColumns, t)
	}
	union := selects[0]
	for _, s2 := range selects[1:] {
		union += " UNION ALL " + s2
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE OR REPLACE VIEW history AS %s`, union))
	return err
}

// PartitionTableStats returns row count and an approximate on-disk size for
// one partition table, feeding the size-threshold decisions in §4.2.
func (s *Store) PartitionTableStats(ctx context.Context, table string) (rows int64, approxBytes int64, err error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table))
	if err = row.Scan(&rows); err != nil {
		return 0, 0, err
	}
	// DuckDB has no per-table disk-size catalog function portable across
	// versions; approximate linearly from row count using an empirically
	// reasonable fixed row width. Good enough for threshold comparisons,
	// not for capacity planning.
	const approxRowWidth = 180
	return rows, rows * approxRowWidth, nil
}

// HistoryStats summarizes a device's history over a time range, backing
// `/api/vehicle/history/{deviceId}/stats`.
type HistoryStats struct {
	Count    int64    `json:"count"`
	AvgSpeed *float64 `json:"avgSpeed,omitempty"`
	MaxSpeed *float64 `json:"maxSpeed,omitempty"`
}

// QueryHistory returns samples for one device within [from, to), ordered by
// timestamp, bounded to limit rows starting at offset. Backs
// `/api/vehicle/history/{deviceId}/{stream|paginated|chunked}`.
func (s *Store) QueryHistory(ctx context.Context, deviceID string, from, to time.Time, limit, offset int) ([]models.LocationSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, timestamp, latitude, longitude, speed, course, ignition,
		       vehicle_status, gsm_strength, sequence_number, panic,
		       dealer_id, admin_id, client_id, user_id, superadmin_id
		FROM history
		WHERE device_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
		LIMIT ? OFFSET ?`, deviceID, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage: query history: %w", err)
	}
	defer rows.Close()

	var samples []models.LocationSample
	for rows.Next() {
		var sample models.LocationSample
		if err := rows.Scan(&sample.DeviceID, &sample.Timestamp, &sample.Latitude, &sample.Longitude,
			&sample.Speed, &sample.Course, &sample.Ignition, &sample.VehicleStatus, &sample.GSMStrength,
			&sample.SequenceNumber, &sample.Panic,
			&sample.Owners.DealerID, &sample.Owners.AdminID, &sample.Owners.ClientID,
			&sample.Owners.UserID, &sample.Owners.SuperadminID); err != nil {
			return nil, fmt.Errorf("storage: scan history row: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// HistoryStatsByDevice aggregates count/avg/max speed over [from, to), backing
// `/api/vehicle/history/{deviceId}/stats`.
func (s *Store) HistoryStatsByDevice(ctx context.Context, deviceID string, from, to time.Time) (HistoryStats, error) {
	var stats HistoryStats
	row := s.db.QueryRowContext(ctx, `
		SELECT count(*), avg(speed), max(speed)
		FROM history
		WHERE device_id = ? AND timestamp >= ? AND timestamp < ?`, deviceID, from, to)
	if err := row.Scan(&stats.Count, &stats.AvgSpeed, &stats.MaxSpeed); err != nil {
		return HistoryStats{}, fmt.Errorf("storage: history stats: %w", err)
	}
	return stats, nil
}

// UpsertHistoryBatch applies the idempotent upsert (spec §4.5) for a batch
// of samples all belonging to the same partition table: non-null incoming
// fields overwrite the stored value, null fields leave it intact.
func (s *Store) UpsertHistoryBatch(ctx context.Context, table string, samples []models.LocationSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id, timestamp) DO UPDATE SET
			latitude = coalesce(excluded.latitude, %[1]s.latitude),
			longitude = coalesce(excluded.longitude, %[1]s.longitude),
			speed = coalesce(excluded.speed, %[1]s.speed),
			course = coalesce(excluded.course, %[1]s.course),
			ignition = coalesce(excluded.ignition, %[1]s.ignition),
			vehicle_status = coalesce(excluded.vehicle_status, %[1]s.vehicle_status),
			gsm_strength = coalesce(excluded.gsm_strength, %[1]s.gsm_strength),
			sequence_number = coalesce(excluded.sequence_number, %[1]s.sequence_number),
			panic = coalesce(excluded.panic, %[1]s.panic),
			dealer_id = coalesce(excluded.dealer_id, %[1]s.dealer_id),
			admin_id = coalesce(excluded.admin_id, %[1]s.admin_id),
			client_id = coalesce(excluded.client_id, %[1]s.client_id),
			user_id = coalesce(excluded.user_id, %[1]s.user_id),
			superadmin_id = coalesce(excluded.superadmin_id, %[1]s.superadmin_id)`,
		table, historyColumns)

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for _, sample := range samples {
		_, err := prepared.ExecContext(ctx,
			sample.DeviceID, sample.Timestamp, sample.Latitude, sample.Longitude, sample.Speed, sample.Course,
			sample.Ignition, sample.VehicleStatus, sample.GSMStrength, sample.SequenceNumber, sample.Panic,
			sample.Owners.DealerID, sample.Owners.AdminID, sample.Owners.ClientID, sample.Owners.UserID, sample.Owners.SuperadminID)
		if err != nil {
			return fmt.Errorf("storage: upsert history row: %w", err)
		}
	}
	return tx.Commit()
}
