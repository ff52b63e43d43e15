// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gpstracker/config.yaml",
	"/etc/gpstracker/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults, applied before the config
// file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:                "nats://127.0.0.1:4222",
			DevicePublishTopic: "device.location",
			DurableNamePrefix:  "gpstracker-pool",
			QueueGroup:         "gpstracker-pool",
			EmbeddedServer:     true,
			StoreDir:           "/data/nats/jetstream",
			AckWait:            30 * time.Second,
			MaxReconnectWait:   time.Minute,
		},
		Pool: PoolConfig{
			MinSessions:        2,
			DevicesPerSession:  5000,
			ReconnectBaseDelay: 500 * time.Millisecond,
			ReconnectMaxDelay:  30 * time.Second,
		},
		Ingest: IngestConfig{
			Workers:      0,
			LaneCapacity: 1024,
		},
		Batch: BatchConfig{
			MaxQueueSize:       10000,
			FlushInterval:      5 * time.Second,
			MaxRetries:         5,
			RetryBaseDelay:     200 * time.Millisecond,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Partition: PartitionConfig{
			RetentionMonths:   24,
			WarnRowCount:      5_000_000,
			CriticalRowCount:  8_000_000,
			EmergencyRowCount: 10_000_000,
			DailyMaintenance:  "02:00",
			WeeklyMaintenance: "Sun 03:00",
			MinPartitionAge:   30 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			MaxEntries: 100_000,
		},
		Broadcast: BroadcastConfig{
			RateLimit:      100 * time.Millisecond,
			SessionTimeout: time.Hour,
			SweepInterval:  5 * time.Minute,
		},
		Alert: AlertConfig{
			SpeedThreshold: 120,
			HoursStart:     6,
			HoursEnd:       22,
			PerHourLimit:   10,
		},
		Health: HealthConfig{
			ProbeInterval:         15 * time.Second,
			StatsCadence:          30 * time.Second,
			MemoryWarnPercent:     80,
			MemoryCriticalPercent: 95,
			CPUWarnPercent:        80,
			CPUCriticalPercent:    95,
			CacheMinHitRate:       0.5,
		},
		Database: DatabaseConfig{
			Path:            "/data/gpstracker.duckdb",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: time.Hour,
		},
		Server: ServerConfig{
			Port:    8080,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			Casbin: CasbinConfig{
				ModelPath:  "/etc/gpstracker/authz_model.conf",
				PolicyPath: "/etc/gpstracker/authz_policy.csv",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration with three layered sources, in
// increasing priority: built-in defaults, an optional YAML config file,
// then environment variables.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated environment strings into
// slices for the fields koanf can't infer a slice type for from a plain
// string provider.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps GPSTRACKER_-prefixed environment variables (and a
// handful of bare legacy names) to koanf dotted paths.
//
// Examples:
//   - BROKER_URL          -> broker.url
//   - BROKER_PASS         -> broker.pass
//   - POOL_DEVICES_PER_SESSION -> pool.devices_per_session
//   - DUCKDB_PATH         -> database.path
//   - HTTP_PORT           -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	mappings := map[string]string{
		"broker_url":                  "broker.url",
		"broker_user":                 "broker.user",
		"broker_pass":                 "broker.pass",
		"broker_device_publish_topic": "broker.device_publish_topic",
		"broker_durable_name_prefix":  "broker.durable_name_prefix",
		"broker_queue_group":          "broker.queue_group",
		"broker_embedded_server":      "broker.embedded_server",
		"broker_store_dir":            "broker.store_dir",
		"broker_ack_wait":             "broker.ack_wait",
		"broker_max_reconnect_wait":   "broker.max_reconnect_wait",

		"pool_min_sessions":         "pool.min_sessions",
		"pool_devices_per_session":  "pool.devices_per_session",
		"pool_reconnect_base_delay": "pool.reconnect_base_delay",
		"pool_reconnect_max_delay":  "pool.reconnect_max_delay",

		"ingest_workers":      "ingest.workers",
		"ingest_lane_capacity": "ingest.lane_capacity",

		"batch_max_queue_size":       "batch.max_queue_size",
		"batch_flush_interval":       "batch.flush_interval",
		"batch_max_retries":          "batch.max_retries",
		"batch_retry_base_delay":     "batch.retry_base_delay",
		"batch_breaker_max_failures": "batch.breaker_max_failures",
		"batch_breaker_timeout":      "batch.breaker_timeout",

		"partition_retention_months":    "partition.retention_months",
		"partition_warn_row_count":      "partition.warn_row_count",
		"partition_critical_row_count":  "partition.critical_row_count",
		"partition_emergency_row_count": "partition.emergency_row_count",
		"partition_daily_maintenance":   "partition.daily_maintenance",
		"partition_weekly_maintenance":  "partition.weekly_maintenance",
		"partition_min_partition_age":   "partition.min_partition_age",

		"cache_max_entries": "cache.max_entries",

		"broadcast_rate_limit":      "broadcast.rate_limit",
		"broadcast_session_timeout": "broadcast.session_timeout",
		"broadcast_sweep_interval":  "broadcast.sweep_interval",

		"alert_speed_threshold": "alert.speed_threshold",
		"alert_hours_start":     "alert.hours_start",
		"alert_hours_end":       "alert.hours_end",
		"alert_per_hour_limit":  "alert.per_hour_limit",

		"health_probe_interval":          "health.probe_interval",
		"health_stats_cadence":           "health.stats_cadence",
		"health_memory_warn_percent":     "health.memory_warn_percent",
		"health_memory_critical_percent": "health.memory_critical_percent",
		"health_cpu_warn_percent":        "health.cpu_warn_percent",
		"health_cpu_critical_percent":    "health.cpu_critical_percent",
		"health_cache_min_hit_rate":      "health.cache_min_hit_rate",

		"duckdb_path":          "database.path",
		"duckdb_max_open_conns": "database.max_open_conns",
		"duckdb_max_idle_conns": "database.max_idle_conns",

		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		"jwt_secret":          "security.jwt_secret",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"cors_origins":        "security.cors_origins",
		"casbin_model_path":   "security.casbin.model_path",
		"casbin_policy_path":  "security.casbin.policy_path",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}

// GetKoanfInstance returns a fresh Koanf instance for advanced/test usage.
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}
