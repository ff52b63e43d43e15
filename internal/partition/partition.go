// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package partition implements the time-range partition manager (C2):
// monthly partitions over the history table, realized as physical
// per-range tables plus a UNION-ALL view, since DuckDB has no native
// declarative range partitioning.
package partition

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/models"
)

// nameRegex is the spec's valid-partition-name grammar (§4.2): p_YYYYMM
// optionally followed by a lower-case sub-partition suffix.
var nameRegex = regexp.MustCompile(`^p_\d{6}(?:_[a-z])?$`)

// ErrorKind enumerates PartitionError kinds, exactly the eight named in
// spec §4.2.
type ErrorKind string

const (
	NotFound       ErrorKind = "NotFound"
	AlreadyExists  ErrorKind = "AlreadyExists"
	CreationFailed ErrorKind = "CreationFailed"
	DropFailed     ErrorKind = "DropFailed"
	InvalidName    ErrorKind = "InvalidName"
	TooRecent      ErrorKind = "TooRecent"
	Permission     ErrorKind = "Permission"
	InfoError      ErrorKind = "InfoError"
)

// Error is the typed PartitionError the manager surfaces on any DDL
// failure.
type Error struct {
	Kind ErrorKind
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partition %s: %s: %v", e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("partition %s: %s", e.Name, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Store is the subset of storage.Store the manager needs; kept as an
// interface so the manager can be tested without DuckDB.
type Store interface {
	CreatePartitionTable(ctx context.Context, table string) error
	DropPartitionTable(ctx context.Context, table string) error
	RebuildHistoryView(ctx context.Context, tables []string) error
	PartitionTableStats(ctx context.Context, table string) (rows int64, approxBytes int64, err error)
	AnalyzeTable(ctx context.Context, table string) error
	OptimizeTable(ctx context.Context, table string) error
}

// Thresholds holds the size-based split/monitor thresholds (spec §4.2).
type Thresholds struct {
	WarningMB   int64
	CriticalMB  int64
	EmergencyMB int64
	AutoSplit   bool
}

// DefaultThresholds returns the spec's illustrative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{WarningMB: 750, CriticalMB: 1000, EmergencyMB: 1400, AutoSplit: true}
}

// Config configures the Manager's scheduled duties (spec §4.2).
type Config struct {
	Thresholds      Thresholds
	FutureMonths    int
	RetentionMonths int
}

// DefaultConfig returns the spec's defaults: 3 future months, 12 month
// retention.
func DefaultConfig() Config {
	return Config{Thresholds: DefaultThresholds(), FutureMonths: 3, RetentionMonths: 12}
}

// Manager owns the lifecycle of history partitions.
type Manager struct {
	mu    sync.RWMutex
	store Store
	log   zerolog.Logger
	cfg   Config

	// partitions maps a calendar month (YYYYMM) to its ordered list of
	// suffix tables, e.g. "202507" -> ["p_202507", "p_202507_a"].
	partitions map[string][]string
}

// NewManager constructs a Manager. It does not discover existing tables;
// call EnsureCurrentAndFuture during startup to populate the in-memory
// partition set idempotently.
func NewManager(store Store, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		cfg:        cfg,
		log:        log,
		partitions: make(map[string][]string),
	}
}

func monthKey(t time.Time) string { return t.UTC().Format("200601") }

func tableName(name string) string { return "history_" + name }

// Range returns the half-open [start, end) calendar-month range a
// partition name covers. Only the primary (non-suffixed) name is
// range-addressable; suffixes share the parent month's range.
func Range(name string) (time.Time, time.Time, error) {
	if !nameRegex.MatchString(name) {
		return time.Time{}, time.Time{}, &Error{Kind: InvalidName, Name: name}
	}
	yyyymm := name[2:8]
	start, err := time.Parse("200601", yyyymm)
	if err != nil {
		return time.Time{}, time.Time{}, &Error{Kind: InvalidName, Name: name, Err: err}
	}
	start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start, end, nil
}

// EnsureMonth creates the primary partition for the calendar month
// containing t, if absent. Idempotent (pre-checks existence), per §4.2.
func (m *Manager) EnsureMonth(ctx context.Context, t time.Time) (string, error) {
	key := monthKey(t)
	name := "p_" + key

	m.mu.Lock()
	defer m.mu.Unlock()

	if suffixes, ok := m.partitions[key]; ok && len(suffixes) > 0 {
		return suffixes[0], nil
	}

	if err := m.store.CreatePartitionTable(ctx, tableName(name)); err != nil {
		return "", &Error{Kind: CreationFailed, Name: name, Err: err}
	}
	m.partitions[key] = []string{name}
	if err := m.rebuildViewLocked(ctx); err != nil {
		return "", err
	}
	return name, nil
}

// EnsureCurrentAndFuture ensures the current month and the next n months
// have primary partitions, the daily scheduled duty in §4.2.
func (m *Manager) EnsureCurrentAndFuture(ctx context.Context, n int) error {
	now := time.Now().UTC()
	for i := 0; i <= n; i++ {
		if _, err := m.EnsureMonth(ctx, now.AddDate(0, i, 0)); err != nil {
			return err
		}
	}
	return nil
}

// TargetPartition returns the partition a flush of ts should write into:
// the newest open sub-partition for that month if Split has created one,
// otherwise the primary, creating the primary if the month has no
// partition at all yet (a flush must always have somewhere to land, per
// §4.5). Routing to the newest suffix is what makes Split actually
// relieve a month's size instead of leaving new writes on the primary.
func (m *Manager) TargetPartition(ctx context.Context, ts time.Time) (string, error) {
	if _, err := m.EnsureMonth(ctx, ts); err != nil {
		return "", err
	}

	key := monthKey(ts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	suffixes := m.partitions[key]
	return suffixes[len(suffixes)-1], nil
}

// Split creates the next available sub-partition suffix (_a, _b, ...) for
// the month containing a named partition, up to the 26-suffix ceiling.
func (m *Manager) Split(ctx context.Context, name string) (string, error) {
	if !nameRegex.MatchString(name) {
		return "", &Error{Kind: InvalidName, Name: name}
	}
	key := name[2:8]

	m.mu.Lock()
	defer m.mu.Unlock()

	suffixes, ok := m.partitions[key]
	if !ok || len(suffixes) == 0 {
		return "", &Error{Kind: NotFound, Name: name}
	}
	if len(suffixes) >= 26 {
		return "", &Error{Kind: CreationFailed, Name: name, Err: fmt.Errorf("26 sub-partitions already exist for month %s", key)}
	}

	next := string(rune('a' + len(suffixes) - 1))
	newName := "p_" + key + "_" + next
	if err := m.store.CreatePartitionTable(ctx, tableName(newName)); err != nil {
		return "", &Error{Kind: CreationFailed, Name: newName, Err: err}
	}
	m.partitions[key] = append(suffixes, newName)
	if err := m.rebuildViewLocked(ctx); err != nil {
		return "", err
	}
	return newName, nil
}

// Drop removes a partition. Refuses unless the partition's month is older
// than the retention window, or force is set.
func (m *Manager) Drop(ctx context.Context, name string, retentionMonths int, force bool) error {
	if !nameRegex.MatchString(name) {
		return &Error{Kind: InvalidName, Name: name}
	}

	start, _, err := Range(name)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().AddDate(0, -retentionMonths, 0)
	if !force && start.After(cutoff) {
		return &Error{Kind: TooRecent, Name: name}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := name[2:8]
	suffixes, ok := m.partitions[key]
	if !ok {
		return &Error{Kind: NotFound, Name: name}
	}
	idx := -1
	for i, s := range suffixes {
		if s == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &Error{Kind: NotFound, Name: name}
	}

	if err := m.store.DropPartitionTable(ctx, tableName(name)); err != nil {
		return &Error{Kind: DropFailed, Name: name, Err: err}
	}
	m.partitions[key] = append(suffixes[:idx], suffixes[idx+1:]...)
	if len(m.partitions[key]) == 0 {
		delete(m.partitions, key)
	}
	return m.rebuildViewLocked(ctx)
}

// Cleanup drops every partition whose month is older than retentionMonths,
// the monthly scheduled duty in §4.2 (spec scenario S6).
func (m *Manager) Cleanup(ctx context.Context, retentionMonths int, force bool) ([]string, error) {
	var dropped []string
	for _, name := range m.List() {
		start, _, err := Range(name)
		if err != nil {
			continue
		}
		cutoff := time.Now().UTC().AddDate(0, -retentionMonths, 0)
		if start.After(cutoff) {
			continue
		}
		if err := m.Drop(ctx, name, retentionMonths, force); err != nil {
			return dropped, err
		}
		dropped = append(dropped, name)
	}
	return dropped, nil
}

// Config returns the Manager's scheduling/threshold configuration, backing
// `GET /api/v1/partitions/scheduler/config`.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// List returns every known partition name, primary and sub-partitions,
// sorted by month then suffix.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, suffixes := range m.partitions {
		names = append(names, suffixes...)
	}
	return names
}

// Info returns the Partition metadata for one named partition, including a
// live row-count/size probe against the store.
func (m *Manager) Info(ctx context.Context, name string) (models.Partition, error) {
	start, end, err := Range(name)
	if err != nil {
		return models.Partition{}, err
	}

	rows, bytes, err := m.store.PartitionTableStats(ctx, tableName(name))
	if err != nil {
		return models.Partition{}, &Error{Kind: InfoError, Name: name, Err: err}
	}

	return models.Partition{
		Name:      name,
		Start:     start,
		End:       end,
		RowCount:  rows,
		SizeBytes: bytes,
		Health:    m.cfg.Thresholds.classify(bytes),
	}, nil
}

// Analyze refreshes cardinality statistics for one partition, backing
// `POST /api/v1/partitions/{name}/analyze`.
func (m *Manager) Analyze(ctx context.Context, name string) error {
	if !nameRegex.MatchString(name) {
		return &Error{Kind: InvalidName, Name: name}
	}
	if err := m.store.AnalyzeTable(ctx, tableName(name)); err != nil {
		return &Error{Kind: InfoError, Name: name, Err: err}
	}
	return nil
}

// Optimize compacts one partition's storage, backing
// `POST /api/v1/partitions/{name}/optimize`.
func (m *Manager) Optimize(ctx context.Context, name string) error {
	if !nameRegex.MatchString(name) {
		return &Error{Kind: InvalidName, Name: name}
	}
	if err := m.store.OptimizeTable(ctx, tableName(name)); err != nil {
		return &Error{Kind: InfoError, Name: name, Err: err}
	}
	return nil
}

// classify maps an approximate size to a PartitionHealth per the table in
// spec §4.2.
func (t Thresholds) classify(bytes int64) models.PartitionHealth {
	mb := bytes / (1024 * 1024)
	switch {
	case mb >= t.EmergencyMB:
		return models.PartitionEmergency
	case mb >= t.CriticalMB:
		return models.PartitionCritical
	case mb >= t.WarningMB:
		return models.PartitionWarning
	default:
		return models.PartitionHealthy
	}
}

// Maintain runs the size-threshold decision table in spec §4.2 against
// every currently-open (newest suffix of each month) partition, splitting
// where warranted.
func (m *Manager) Maintain(ctx context.Context) error {
	for _, name := range m.openPartitions() {
		info, err := m.Info(ctx, name)
		if err != nil {
			return err
		}
		switch info.Health {
		case models.PartitionEmergency:
			if _, err := m.Split(ctx, name); err != nil {
				return err
			}
		case models.PartitionCritical:
			if m.cfg.Thresholds.AutoSplit {
				if _, err := m.Split(ctx, name); err != nil {
					return err
				}
			}
		case models.PartitionWarning:
			m.log.Info().Str("partition", name).Msg("partition approaching capacity")
		}
	}
	return nil
}

func (m *Manager) openPartitions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var open []string
	for _, suffixes := range m.partitions {
		if len(suffixes) > 0 {
			open = append(open, suffixes[len(suffixes)-1])
		}
	}
	return open
}

func (m *Manager) rebuildViewLocked(ctx context.Context) error {
	var tables []string
	for _, suffixes := range m.partitions {
		for _, name := range suffixes {
			tables = append(tables, tableName(name))
		}
	}
	if err := m.store.RebuildHistoryView(ctx, tables); err != nil {
		return &Error{Kind: InfoError, Name: "history", Err: err}
	}
	return nil
}
