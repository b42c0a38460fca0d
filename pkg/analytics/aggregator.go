package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/period"
)

// RollupArchiver receives every rollup a run wrote, for cold storage
type RollupArchiver interface {
	Archive(ctx context.Context, g period.Granularity, bucketStart time.Time, rollups []PeriodRollup) error
}

// AggregatorConfig configures batch rollup runs. Archiver and JobMetrics are optional.
type AggregatorConfig struct {
	Concurrency int
	Archiver    RollupArchiver
	JobMetrics  *observability.JobMetrics
	Logger      *observability.Logger
}

// Aggregator generates rollups for every account with records
type Aggregator struct {
	service     *Service
	concurrency int
	archiver    RollupArchiver
	jobMetrics  *observability.JobMetrics
	logger      *observability.Logger
}

// RunResult summarizes one batch run
type RunResult struct {
	Period      period.Granularity
	BucketStart time.Time
	Accounts    int
	Written     []PeriodRollup
	Failed      []string
}

// NewAggregator creates a new aggregator on top of service
func NewAggregator(service *Service, cfg AggregatorConfig) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = service.logger
	}
	return &Aggregator{
		service:     service,
		concurrency: cfg.Concurrency,
		archiver:    cfg.Archiver,
		jobMetrics:  cfg.JobMetrics,
		logger:      cfg.Logger,
	}
}

// Run generates the rollup of the bucket containing ref for every account.
// One account failing does not stop the others; their errors are joined.
func (a *Aggregator) Run(ctx context.Context, g period.Granularity, ref time.Time) (*RunResult, error) {
	if !g.Valid() {
		return nil, invalidParam("unknown period %q", string(g))
	}
	started := time.Now()
	result := &RunResult{Period: g, BucketStart: period.BucketStart(g, ref)}
	logger := a.logger.WithFields(map[string]interface{}{
		"period":       string(g),
		"bucket_start": result.BucketStart.Format(time.RFC3339),
	})

	accounts, err := a.service.records.ListAccounts(ctx)
	if err != nil {
		a.service.metrics.StoreError("list_accounts")
		return nil, upstream("list accounts", err)
	}
	result.Accounts = len(accounts)

	var (
		mu   sync.Mutex
		errs []error
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.concurrency)
	for _, accountID := range accounts {
		eg.Go(func() error {
			rollup, err := a.service.GenerateRollup(egCtx, accountID, g, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, accountID)
				errs = append(errs, fmt.Errorf("account %s: %w", accountID, err))
				return nil
			}
			result.Written = append(result.Written, *rollup)
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(result.Written, func(i, j int) bool {
		return result.Written[i].AccountID < result.Written[j].AccountID
	})
	sort.Strings(result.Failed)

	if a.archiver != nil && len(result.Written) > 0 {
		if err := a.archiver.Archive(ctx, g, result.BucketStart, result.Written); err != nil {
			logger.WithError(err).Warn("Rollup archive failed")
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}

	a.jobMetrics.RecordRun(ctx, string(g), len(result.Written), len(result.Failed), time.Since(started))
	logger.WithFields(map[string]interface{}{
		"accounts": result.Accounts,
		"written":  len(result.Written),
		"failed":   len(result.Failed),
	}).Info("Rollup run complete")

	return result, errors.Join(errs...)
}

// RunClosed rolls up the most recently closed bucket before now
func (a *Aggregator) RunClosed(ctx context.Context, g period.Granularity, now time.Time) (*RunResult, error) {
	if !g.Valid() {
		return nil, invalidParam("unknown period %q", string(g))
	}
	return a.Run(ctx, g, period.PreviousBucketStart(g, period.BucketStart(g, now)))
}

// RunDaily rolls up yesterday
func (a *Aggregator) RunDaily(ctx context.Context, now time.Time) (*RunResult, error) {
	return a.RunClosed(ctx, period.Daily, now)
}

// RunWeekly rolls up last week
func (a *Aggregator) RunWeekly(ctx context.Context, now time.Time) (*RunResult, error) {
	return a.RunClosed(ctx, period.Weekly, now)
}

// RunMonthly rolls up last month
func (a *Aggregator) RunMonthly(ctx context.Context, now time.Time) (*RunResult, error) {
	return a.RunClosed(ctx, period.Monthly, now)
}

// GenerateAll rolls up the bucket containing ref for every account with the default aggregator settings
func (s *Service) GenerateAll(ctx context.Context, g period.Granularity, ref time.Time) (*RunResult, error) {
	return NewAggregator(s, AggregatorConfig{}).Run(ctx, g, ref)
}
