// Package config provides application configuration from a YAML file and environment variables.
//
// # Overview
//
// Configuration is built in three layers, each overriding the previous one:
//
//  1. Built-in defaults (Default)
//  2. An optional YAML file named by TALLY_CONFIG_FILE
//  3. TALLY_* environment variables
//
// The result is validated before it is returned, so binaries fail fast on a bad setup.
//
// # Configuration Structure
//
// Server settings:
//
//	TALLY_HOST="0.0.0.0"
//	TALLY_PORT="8080"
//	TALLY_HEALTH_PORT="9090"
//	TALLY_READ_TIMEOUT="15s"
//	TALLY_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	TALLY_STORAGE_TYPE="postgres"  # postgres, memory
//	TALLY_POSTGRES_URL="postgres://localhost/tally"
//	TALLY_POSTGRES_REPLICA_URLS="postgres://replica1/tally,postgres://replica2/tally"
//	TALLY_POSTGRES_MAX_CONNS="20"
//	TALLY_AUTO_MIGRATE="true"
//
// Cache settings:
//
//	TALLY_CACHE_TYPE="redis"  # memory, redis, none
//	TALLY_CACHE_TTL="10m"
//	TALLY_REDIS_URL="redis://localhost:6379/0"
//	TALLY_REDIS_POOL_SIZE="10"
//
// Access tokens:
//
//	TALLY_AUTH_TOKENS="token-a=acme,token-b=globex"
//
// Rollup archive and schedule:
//
//	TALLY_ARCHIVE_ENABLED="true"
//	TALLY_S3_BUCKET="tally-rollups"
//	TALLY_S3_ENDPOINT="http://minio:9000"
//	TALLY_DAILY_SCHEDULE="5 0 * * *"
//	TALLY_MONTHLY_SCHEDULE="30 0 1 * *"
//
// Observability settings:
//
//	TALLY_LOG_LEVEL="info"  # debug, info, warn, error
//	TALLY_METRICS_ENABLED="true"
//	TALLY_OTEL_ENABLED="true"
//	TALLY_OTEL_ENDPOINT="otel-collector:4317"
//
// The YAML file uses the same settings grouped by section:
//
//	server:
//	  port: "8080"
//	cache:
//	  type: redis
//	  ttl: 10m
//	auth:
//	  tokens:
//	    token-a: acme
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		return err
//	}
//	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
package config
