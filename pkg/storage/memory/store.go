// Package memory provides an in-process storage.Store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/period"
)

// Store keeps records and rollups in memory behind a single RWMutex
type Store struct {
	mu      sync.RWMutex
	records []analytics.RawRecord
	rollups map[analytics.RollupKey]*analytics.PeriodRollup
	nextID  int64
	now     func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		rollups: make(map[analytics.RollupKey]*analytics.PeriodRollup),
		now:     time.Now,
	}
}

// rollupKey normalizes the bucket start so equal instants in different zones collide
func rollupKey(k analytics.RollupKey) analytics.RollupKey {
	k.BucketStart = k.BucketStart.UTC()
	return k
}

// FindRecords returns the account's records dated inside r, in insertion order
func (s *Store) FindRecords(ctx context.Context, accountID string, r analytics.TimeRange) ([]analytics.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []analytics.RawRecord
	for _, rec := range s.records {
		if rec.AccountID == accountID && rec.HasDate() && r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AggregateByCategory groups all of the account's records by category
func (s *Store) AggregateByCategory(ctx context.Context, accountID string, limit int) ([]analytics.CategoryTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*analytics.CategoryTotal)
	for _, rec := range s.records {
		if rec.AccountID != accountID {
			continue
		}
		name := rec.Category
		if name == "" {
			name = analytics.UncategorizedLabel
		}
		t, ok := totals[name]
		if !ok {
			t = &analytics.CategoryTotal{Category: name}
			totals[name] = t
		}
		t.Revenue += rec.Revenue
		t.Orders++
	}

	out := make([]analytics.CategoryTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Category < out[j].Category
	})
	return analytics.TopN(out, limit), nil
}

// InsertRecords appends records and assigns IDs
func (s *Store) InsertRecords(ctx context.Context, records []analytics.RawRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		s.nextID++
		rec.ID = s.nextID
		s.records = append(s.records, rec)
	}
	return int64(len(records)), nil
}

// ListAccounts returns every account with records, sorted
func (s *Store) ListAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, rec := range s.records {
		if _, ok := seen[rec.AccountID]; ok {
			continue
		}
		seen[rec.AccountID] = struct{}{}
		out = append(out, rec.AccountID)
	}
	sort.Strings(out)
	return out, nil
}

// UpsertRollup inserts or overwrites the rollup for its key, keeping CreatedAt
func (s *Store) UpsertRollup(ctx context.Context, rollup *analytics.PeriodRollup) (*analytics.PeriodRollup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rollupKey(rollup.RollupKey)
	now := s.now().UTC()

	stored := *rollup
	stored.RollupKey = key
	stored.UpdatedAt = now
	if existing, ok := s.rollups[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	s.rollups[key] = &stored

	out := stored
	return &out, nil
}

// FindRollup returns nil, nil when the key has no rollup
func (s *Store) FindRollup(ctx context.Context, key analytics.RollupKey) (*analytics.PeriodRollup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rollup, ok := s.rollups[rollupKey(key)]
	if !ok {
		return nil, nil
	}
	out := *rollup
	return &out, nil
}

// FindRollupsInRange returns rollups for the account and period starting inside r, ascending
func (s *Store) FindRollupsInRange(ctx context.Context, accountID string, g period.Granularity, r analytics.TimeRange) ([]analytics.PeriodRollup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []analytics.PeriodRollup
	for key, rollup := range s.rollups {
		if key.AccountID == accountID && key.Period == g && r.Contains(key.BucketStart) {
			out = append(out, *rollup)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BucketStart.Before(out[j].BucketStart)
	})
	return out, nil
}

// RollupCount returns the number of stored rollups
func (s *Store) RollupCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rollups)
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
