// Package analytics turns raw business records into dashboard metrics.
//
// # Overview
//
// Two views exist over the same records. A MetricsSnapshot is computed live
// from the bucket containing now and is never stored. A PeriodRollup is the
// durable summary of one bucket, unique by (account, period, bucket start),
// and feeds revenue trends and bucket-over-bucket growth.
//
// # Queries
//
//	dash, err := service.Dashboard(ctx, accountID, period.Monthly, 6)
//	trends, err := service.RevenueTrends(ctx, accountID, period.Daily, 30)
//
// Dashboard and trend results are cached best-effort; any record or rollup
// write invalidates the whole cache.
//
// # Rollups
//
//	rollup, err := service.GenerateRollup(ctx, accountID, period.Weekly, time.Now())
//
// Generation is an upsert, so rerunning it for a bucket is safe. The batch
// Aggregator runs it for every account:
//
//	aggregator.RunDaily(ctx, time.Now())   // yesterday
//	aggregator.RunWeekly(ctx, time.Now())  // last Monday-based week
//	aggregator.RunMonthly(ctx, time.Now()) // last calendar month
//
// # Errors
//
// ErrInvalidParameter marks bad input. ErrUpstreamUnavailable marks a store
// failure and is retryable, as are cancellation and deadline errors.
//
// # Related Packages
//
//   - pkg/period: bucket arithmetic
//   - pkg/storage/postgres: RecordStore and RollupStore on PostgreSQL
//   - pkg/cache: Cache implementations
package analytics
