// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

/*
Package config loads gpstracker's configuration from three layered sources,
in increasing priority:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file (config.yaml, or CONFIG_PATH)
 3. Environment variables

# Sections

broker: NATS JetStream connection the broker pool subscribes through.
pool: broker connection pool sizing (sessions scale with device count).
ingest: parsing/routing worker pool.
batch: persistence engine batching, retry, and circuit-breaker tuning.
partition: monthly history partitioning thresholds and maintenance schedule.
cache: last-known-location cache sizing.
broadcast: broadcast fabric rate limiting and session lifecycle.
alert: anomaly-detection thresholds and throttling.
health: probe cadence and degraded/unhealthy thresholds.
database: DuckDB connection pool.
server/api: admin HTTP surface.
security: JWT secret, rate limiting, CORS, and the casbin model/policy paths
enforcing the dealer/admin/client/user/superadmin owner hierarchy.
logging: zerolog output.

# Secrets at rest

broker.pass is stored encrypted via CredentialEncryptor (see encryption.go);
decrypt it once at startup using JWT secret-derived key material, never log
the plaintext.
*/
package config
