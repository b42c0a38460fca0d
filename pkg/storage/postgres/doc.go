// Package postgres implements storage.Store on PostgreSQL via lib/pq.
//
// Raw records live in raw_records. Rollups live in period_rollups with a
// UNIQUE (account_id, period, bucket_start) constraint; UpsertRollup relies on
// INSERT ... ON CONFLICT DO UPDATE against it. Reads may be served by read
// replicas through ConnectionManager.
package postgres
