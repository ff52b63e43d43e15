// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package config provides configuration management for the application:
// layered loading (defaults, YAML file, environment) via koanf, and the
// schema for every tunable named across the component design.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	Broker    BrokerConfig    `koanf:"broker"`
	Pool      PoolConfig      `koanf:"pool"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Batch     BatchConfig     `koanf:"batch"`
	Partition PartitionConfig `koanf:"partition"`
	Cache     CacheConfig     `koanf:"cache"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Alert     AlertConfig     `koanf:"alert"`
	Health    HealthConfig    `koanf:"health"`
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// BrokerConfig configures the NATS JetStream connection the broker
// connection pool uses to subscribe to the device-publish topic.
type BrokerConfig struct {
	URL                string        `koanf:"url"`
	User               string        `koanf:"user"`
	Pass               string        `koanf:"pass"` // stored encrypted at rest via CredentialEncryptor
	DevicePublishTopic string        `koanf:"device_publish_topic"`
	DurableNamePrefix  string        `koanf:"durable_name_prefix"`
	QueueGroup         string        `koanf:"queue_group"`
	EmbeddedServer     bool          `koanf:"embedded_server"`
	StoreDir           string        `koanf:"store_dir"`
	AckWait            time.Duration `koanf:"ack_wait"`
	MaxReconnectWait   time.Duration `koanf:"max_reconnect_wait"`
}

// PoolConfig sizes the broker connection pool (spec §4.3: ceil(deviceCount/5000)+1,
// minimum 2).
type PoolConfig struct {
	MinSessions        int           `koanf:"min_sessions"`
	DevicesPerSession  int           `koanf:"devices_per_session"`
	ReconnectBaseDelay time.Duration `koanf:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `koanf:"reconnect_max_delay"`
}

// IngestConfig configures the parsing/routing pipeline (C4).
type IngestConfig struct {
	Workers      int `koanf:"workers"` // 0 selects min(2*NumCPU, 32)
	LaneCapacity int `koanf:"lane_capacity"`
}

// BatchConfig configures the persistence engine's batching and durability
// (C5).
type BatchConfig struct {
	MaxQueueSize       int           `koanf:"max_queue_size"`
	FlushInterval      time.Duration `koanf:"flush_interval"`
	MaxRetries         int           `koanf:"max_retries"`
	RetryBaseDelay     time.Duration `koanf:"retry_base_delay"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// PartitionConfig configures the monthly history partitioning and retention
// (C2).
type PartitionConfig struct {
	RetentionMonths   int           `koanf:"retention_months"`
	WarnRowCount      int64         `koanf:"warn_row_count"`
	CriticalRowCount  int64         `koanf:"critical_row_count"`
	EmergencyRowCount int64         `koanf:"emergency_row_count"`
	DailyMaintenance  string        `koanf:"daily_maintenance"`  // "HH:MM", local time
	WeeklyMaintenance string        `koanf:"weekly_maintenance"` // "Mon HH:MM"
	MinPartitionAge   time.Duration `koanf:"min_partition_age"`  // drop guard rail
}

// CacheConfig configures the last-known-location cache (C6).
type CacheConfig struct {
	MaxEntries int `koanf:"max_entries"`
}

// BroadcastConfig configures the broadcast fabric's rate limiting and
// session lifecycle (C7).
type BroadcastConfig struct {
	RateLimit      time.Duration `koanf:"rate_limit"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`
}

// AlertConfig configures the anomaly-detection thresholds (§4.7).
type AlertConfig struct {
	SpeedThreshold float64 `koanf:"speed_threshold"`
	HoursStart     int     `koanf:"hours_start"`
	HoursEnd       int     `koanf:"hours_end"`
	PerHourLimit   int     `koanf:"per_hour_limit"`
}

// HealthConfig configures the probe cadence and thresholds (C8).
type HealthConfig struct {
	ProbeInterval         time.Duration `koanf:"probe_interval"`
	StatsCadence          time.Duration `koanf:"stats_cadence"`
	MemoryWarnPercent     float64       `koanf:"memory_warn_percent"`
	MemoryCriticalPercent float64       `koanf:"memory_critical_percent"`
	CPUWarnPercent        float64       `koanf:"cpu_warn_percent"`
	CPUCriticalPercent    float64       `koanf:"cpu_critical_percent"`
	CacheMinHitRate       float64       `koanf:"cache_min_hit_rate"`
}

// DatabaseConfig configures the DuckDB-backed datastore.
type DatabaseConfig struct {
	Path            string        `koanf:"path"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// ServerConfig configures the admin HTTP surface.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig configures pagination defaults for the history/partition list
// endpoints.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig configures authentication/authorization and rate limiting
// on the admin HTTP surface.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	Casbin          CasbinConfig  `koanf:"casbin"`
}

// CasbinConfig points at the owner-role RBAC model/policy the authorization
// layer enforces (spec §2 owner hierarchy: dealer, admin, client, user,
// superadmin).
type CasbinConfig struct {
	ModelPath  string `koanf:"model_path"`
	PolicyPath string `koanf:"policy_path"`
}

// LoggingConfig configures zerolog's output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate sanity-checks cross-field invariants the individual zero values
// can't catch on their own.
func (c *Config) Validate() error {
	if c.Pool.MinSessions < 1 {
		return fmt.Errorf("config: pool.min_sessions must be >= 1, got %d", c.Pool.MinSessions)
	}
	if c.Pool.DevicesPerSession < 1 {
		return fmt.Errorf("config: pool.devices_per_session must be >= 1, got %d", c.Pool.DevicesPerSession)
	}
	if c.Batch.MaxQueueSize < 1 {
		return fmt.Errorf("config: batch.max_queue_size must be >= 1, got %d", c.Batch.MaxQueueSize)
	}
	if c.Partition.WarnRowCount >= c.Partition.CriticalRowCount || c.Partition.CriticalRowCount >= c.Partition.EmergencyRowCount {
		return fmt.Errorf("config: partition row-count thresholds must be strictly increasing (warn < critical < emergency)")
	}
	if c.Alert.HoursStart < 0 || c.Alert.HoursStart > 23 || c.Alert.HoursEnd < 0 || c.Alert.HoursEnd > 23 {
		return fmt.Errorf("config: alert.hours_start/hours_end must be in [0,23]")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	return nil
}
