package analytics

import (
	"context"
	"time"

	"github.com/platinummonkey/tally/pkg/period"
)

// RecordStore reads and writes raw records. Every call is scoped to one account.
type RecordStore interface {
	// FindRecords returns the account's records dated inside r
	FindRecords(ctx context.Context, accountID string, r TimeRange) ([]RawRecord, error)

	// AggregateByCategory returns all-time category totals, revenue descending, at most limit rows
	AggregateByCategory(ctx context.Context, accountID string, limit int) ([]CategoryTotal, error)

	// InsertRecords appends records; each record carries its own AccountID
	InsertRecords(ctx context.Context, records []RawRecord) (int64, error)

	// ListAccounts returns every account that owns at least one record
	ListAccounts(ctx context.Context) ([]string, error)
}

// RollupStore persists period rollups, unique by RollupKey
type RollupStore interface {
	// UpsertRollup inserts the rollup or overwrites metrics and growth of the existing row
	UpsertRollup(ctx context.Context, rollup *PeriodRollup) (*PeriodRollup, error)

	// FindRollup returns nil, nil when no rollup exists for key
	FindRollup(ctx context.Context, key RollupKey) (*PeriodRollup, error)

	// FindRollupsInRange returns rollups whose bucket start falls in r, ascending
	FindRollupsInRange(ctx context.Context, accountID string, g period.Granularity, r TimeRange) ([]PeriodRollup, error)
}

// Cache is a best-effort result cache. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
}
