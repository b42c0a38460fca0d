// Package storage defines the persistence backends for raw records and period rollups.
//
// # Overview
//
// A Store combines analytics.RecordStore and analytics.RollupStore with health
// and lifecycle methods. Two implementations exist:
//
//   - postgres: PostgreSQL with an optional pool of read replicas
//   - memory: a mutex-guarded in-process store for tests and local runs
//
// # Rollup Uniqueness
//
// Every Store keeps at most one rollup per (account, period, bucket start).
// UpsertRollup overwrites metrics and growth of an existing row and keeps its
// creation time. In PostgreSQL this is a UNIQUE constraint plus
// INSERT ... ON CONFLICT DO UPDATE, so concurrent generation cannot duplicate rows.
//
// # Usage
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = os.Getenv("TALLY_POSTGRES_URL")
//	store, err := postgres.NewStore(ctx, cfg, logger)
//	defer store.Close()
//
// # Testing
//
// Unit tests run the postgres store against go-sqlmock. Integration tests
// (build tag integration) start PostgreSQL with testcontainers-go.
package storage
