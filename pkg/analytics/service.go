package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/period"
)

const (
	DefaultTimeframe     = 6
	MaxTimeframe         = 12
	DefaultTrendDays     = 30
	MaxTrendDays         = 365
	DefaultCategoryLimit = 5
	MaxCategoryLimit     = 100
	MaxIngestBatch       = 1000
	DefaultCacheTTL      = 10 * time.Minute

	// UncategorizedLabel replaces an empty category in all-time category rankings
	UncategorizedLabel = "Uncategorized"
)

var tracer = otel.Tracer("github.com/platinummonkey/tally/analytics")

// ServiceConfig wires the service. Cache, Logger, Metrics and Now are optional.
type ServiceConfig struct {
	Records  RecordStore
	Rollups  RollupStore
	Cache    Cache
	CacheTTL time.Duration
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// Service answers analytics queries and produces rollups
type Service struct {
	records  RecordStore
	rollups  RollupStore
	cache    Cache
	cacheTTL time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService creates a new analytics service
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		records:  cfg.Records,
		rollups:  cfg.Rollups,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func validateScope(accountID string, g period.Granularity) error {
	if strings.TrimSpace(accountID) == "" {
		return invalidParam("account id is required")
	}
	if !g.Valid() {
		return invalidParam("unknown period %q", string(g))
	}
	return nil
}

// windows returns the current bucket up to and including now, and the whole bucket before it
func (s *Service) windows(g period.Granularity) (current, previous TimeRange) {
	now := s.now()
	start := period.BucketStart(g, now)
	return TimeRange{Start: start, End: through(now)},
		TimeRange{Start: period.PreviousBucketStart(g, start), End: start}
}

// through is the exclusive end that keeps t itself in range
func through(t time.Time) time.Time {
	return t.Add(time.Nanosecond)
}

func startSpan(ctx context.Context, name, accountID string, g period.Granularity) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("tally.account_id", accountID),
		attribute.String("tally.period", string(g)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CurrentSnapshot computes live metrics for the bucket containing now,
// compared against the bucket before it
func (s *Service) CurrentSnapshot(ctx context.Context, accountID string, g period.Granularity) (snap *MetricsSnapshot, err error) {
	if err := validateScope(accountID, g); err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "analytics.CurrentSnapshot", accountID, g)
	defer func() { endSpan(span, err) }()

	return s.currentSnapshot(ctx, accountID, g)
}

func (s *Service) currentSnapshot(ctx context.Context, accountID string, g period.Granularity) (*MetricsSnapshot, error) {
	started := time.Now()
	current, previous := s.windows(g)

	var records, prior []RawRecord
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		records, err = s.findRecords(egCtx, accountID, current)
		return err
	})
	eg.Go(func() error {
		var err error
		prior, err = s.findRecords(egCtx, accountID, previous)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	snap := ComputeSnapshot(records, prior)
	s.metrics.ObserveSnapshot(string(g), time.Since(started))
	return snap, nil
}

// HistoricalData groups the last timeframe buckets of records into a chart series
func (s *Service) HistoricalData(ctx context.Context, accountID string, g period.Granularity, timeframe int) (points []HistoricalPoint, err error) {
	if err := validateScope(accountID, g); err != nil {
		return nil, err
	}
	if timeframe < 1 || timeframe > MaxTimeframe {
		return nil, invalidParam("timeframe must be between 1 and %d", MaxTimeframe)
	}
	ctx, span := startSpan(ctx, "analytics.HistoricalData", accountID, g)
	defer func() { endSpan(span, err) }()

	return s.historicalData(ctx, accountID, g, timeframe)
}

func (s *Service) historicalData(ctx context.Context, accountID string, g period.Granularity, timeframe int) ([]HistoricalPoint, error) {
	now := s.now()
	r := TimeRange{
		Start: period.ShiftBack(g, now, timeframe),
		End:   through(now),
	}
	records, err := s.findRecords(ctx, accountID, r)
	if err != nil {
		return nil, err
	}
	return GroupHistorical(g, records), nil
}

// GrowthRatesFor compares the live bucket with the stored rollup of the previous bucket.
// Growth is all zeros when that rollup has not been generated.
func (s *Service) GrowthRatesFor(ctx context.Context, accountID string, g period.Granularity) (growth Growth, err error) {
	if err := validateScope(accountID, g); err != nil {
		return Growth{}, err
	}
	ctx, span := startSpan(ctx, "analytics.GrowthRates", accountID, g)
	defer func() { endSpan(span, err) }()

	var (
		snap *MetricsSnapshot
		prev *PeriodRollup
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		snap, err = s.currentSnapshot(egCtx, accountID, g)
		return err
	})
	eg.Go(func() error {
		var err error
		prev, err = s.previousRollup(egCtx, accountID, g)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Growth{}, err
	}
	return RollupGrowth(snapshotMetrics(snap), prev), nil
}

func snapshotMetrics(snap *MetricsSnapshot) Metrics {
	return Metrics{
		TotalRevenue:    snap.TotalRevenue,
		TotalOrders:     snap.TotalOrders,
		UniqueCustomers: snap.UniqueCustomers,
		AvgOrderValue:   snap.AvgOrderValue,
	}
}

// TopCategories returns the account's all-time categories, revenue descending.
// A limit of 0 means DefaultCategoryLimit.
func (s *Service) TopCategories(ctx context.Context, accountID string, limit int) ([]CategoryTotal, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, invalidParam("account id is required")
	}
	if limit == 0 {
		limit = DefaultCategoryLimit
	}
	if limit < 0 || limit > MaxCategoryLimit {
		return nil, invalidParam("limit must be between 1 and %d", MaxCategoryLimit)
	}
	return s.topCategories(ctx, accountID, limit)
}

func (s *Service) topCategories(ctx context.Context, accountID string, limit int) ([]CategoryTotal, error) {
	categories, err := s.records.AggregateByCategory(ctx, accountID, limit)
	if err != nil {
		s.metrics.StoreError("aggregate_categories")
		return nil, upstream("aggregate categories", err)
	}
	if categories == nil {
		categories = []CategoryTotal{}
	}
	return categories, nil
}

// Dashboard assembles the live snapshot, chart series, growth and categories.
// Empty period and zero timeframe fall back to monthly and DefaultTimeframe.
func (s *Service) Dashboard(ctx context.Context, accountID string, g period.Granularity, timeframe int) (dash *Dashboard, err error) {
	if g == "" {
		g = period.Monthly
	}
	if timeframe == 0 {
		timeframe = DefaultTimeframe
	}
	if err := validateScope(accountID, g); err != nil {
		return nil, err
	}
	if timeframe < 1 || timeframe > MaxTimeframe {
		return nil, invalidParam("timeframe must be between 1 and %d", MaxTimeframe)
	}

	key := dashboardKey(accountID, g, timeframe)
	var cached Dashboard
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	ctx, span := startSpan(ctx, "analytics.Dashboard", accountID, g)
	defer func() { endSpan(span, err) }()

	var (
		snap       *MetricsSnapshot
		history    []HistoricalPoint
		categories []CategoryTotal
		prev       *PeriodRollup
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		snap, err = s.currentSnapshot(egCtx, accountID, g)
		return err
	})
	eg.Go(func() error {
		var err error
		history, err = s.historicalData(egCtx, accountID, g, timeframe)
		return err
	})
	eg.Go(func() error {
		var err error
		categories, err = s.topCategories(egCtx, accountID, DefaultCategoryLimit)
		return err
	})
	eg.Go(func() error {
		var err error
		prev, err = s.previousRollup(egCtx, accountID, g)
		return err
	})
	if err := eg.Wait(); err != nil {
		s.logger.WithAccount(accountID).WithError(err).Warn("Dashboard assembly failed")
		return nil, err
	}

	dash = &Dashboard{
		CurrentMetrics: snap,
		HistoricalData: history,
		GrowthRates:    RollupGrowth(snapshotMetrics(snap), prev),
		TopCategories:  categories,
		Period:         g,
		Timeframe:      timeframe,
	}
	s.cacheSet(ctx, key, dash)
	return dash, nil
}

// GenerateRollup summarizes the bucket containing ref and upserts it.
// Running it twice for the same bucket leaves one row with the same metrics.
func (s *Service) GenerateRollup(ctx context.Context, accountID string, g period.Granularity, ref time.Time) (rollup *PeriodRollup, err error) {
	if err := validateScope(accountID, g); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		ref = s.now()
	}
	ctx, span := startSpan(ctx, "analytics.GenerateRollup", accountID, g)
	defer func() {
		s.metrics.RollupGenerated(string(g), err)
		endSpan(span, err)
	}()

	start, end := period.Bounds(g, ref)
	prevStart := period.PreviousBucketStart(g, start)
	span.SetAttributes(attribute.String("tally.bucket_start", start.Format(time.RFC3339)))

	var (
		records, prior []RawRecord
		prev           *PeriodRollup
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		records, err = s.findRecords(egCtx, accountID, TimeRange{Start: start, End: end})
		return err
	})
	eg.Go(func() error {
		var err error
		prior, err = s.findRecords(egCtx, accountID, TimeRange{Start: prevStart, End: start})
		return err
	})
	eg.Go(func() error {
		var err error
		prev, err = s.findRollup(egCtx, RollupKey{AccountID: accountID, Period: g, BucketStart: prevStart})
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	metrics := SummarizeRollup(records, prior)
	stored, err := s.rollups.UpsertRollup(ctx, &PeriodRollup{
		RollupKey: RollupKey{AccountID: accountID, Period: g, BucketStart: start},
		Metrics:   metrics,
		Growth:    RollupGrowth(metrics, prev),
	})
	if err != nil {
		s.metrics.StoreError("upsert_rollup")
		return nil, upstream("upsert rollup", err)
	}

	s.invalidate(ctx)
	s.logger.WithAccount(accountID).WithFields(map[string]interface{}{
		"period":       string(g),
		"bucket_start": start.Format(time.RFC3339),
		"orders":       metrics.TotalOrders,
	}).Debug("Rollup generated")
	return stored, nil
}

// RevenueTrends returns stored rollups of granularity g from the last days days.
// Empty period and zero days fall back to daily and DefaultTrendDays.
func (s *Service) RevenueTrends(ctx context.Context, accountID string, g period.Granularity, days int) (trends []PeriodRollup, err error) {
	if g == "" {
		g = period.Daily
	}
	if days == 0 {
		days = DefaultTrendDays
	}
	if err := validateScope(accountID, g); err != nil {
		return nil, err
	}
	if days < 1 || days > MaxTrendDays {
		return nil, invalidParam("days must be between 1 and %d", MaxTrendDays)
	}

	key := trendsKey(accountID, g, days)
	if s.cacheGet(ctx, key, &trends) {
		return trends, nil
	}

	ctx, span := startSpan(ctx, "analytics.RevenueTrends", accountID, g)
	defer func() { endSpan(span, err) }()

	now := s.now()
	r := TimeRange{
		Start: now.AddDate(0, 0, -days),
		End:   period.BucketEnd(g, period.BucketStart(g, now)),
	}
	trends, err = s.rollups.FindRollupsInRange(ctx, accountID, g, r)
	if err != nil {
		s.metrics.StoreError("find_rollups")
		return nil, upstream("find rollups", err)
	}
	if trends == nil {
		trends = []PeriodRollup{}
	}

	s.cacheSet(ctx, key, trends)
	return trends, nil
}

// IngestRecords stores records for accountID, overwriting any AccountID they carry
func (s *Service) IngestRecords(ctx context.Context, accountID string, records []RawRecord) (int64, error) {
	if strings.TrimSpace(accountID) == "" {
		return 0, invalidParam("account id is required")
	}
	if len(records) == 0 {
		return 0, invalidParam("at least one record is required")
	}
	if len(records) > MaxIngestBatch {
		return 0, invalidParam("at most %d records per request", MaxIngestBatch)
	}

	batch := make([]RawRecord, len(records))
	for i, r := range records {
		if r.Quantity < 0 {
			return 0, invalidParam("record %d: quantity must not be negative", i)
		}
		r.AccountID = accountID
		r.Date = r.Date.UTC()
		batch[i] = r
	}

	n, err := s.records.InsertRecords(ctx, batch)
	if err != nil {
		s.metrics.StoreError("insert_records")
		return 0, upstream("insert records", err)
	}
	s.metrics.RecordsTouched("ingest", int(n))
	s.invalidate(ctx)
	return n, nil
}

func (s *Service) findRecords(ctx context.Context, accountID string, r TimeRange) ([]RawRecord, error) {
	records, err := s.records.FindRecords(ctx, accountID, r)
	if err != nil {
		s.metrics.StoreError("find_records")
		return nil, upstream("find records", err)
	}
	s.metrics.RecordsTouched("read", len(records))
	return records, nil
}

func (s *Service) findRollup(ctx context.Context, key RollupKey) (*PeriodRollup, error) {
	rollup, err := s.rollups.FindRollup(ctx, key)
	if err != nil {
		s.metrics.StoreError("find_rollup")
		return nil, upstream("find rollup", err)
	}
	return rollup, nil
}

func (s *Service) previousRollup(ctx context.Context, accountID string, g period.Granularity) (*PeriodRollup, error) {
	_, previous := s.windows(g)
	return s.findRollup(ctx, RollupKey{AccountID: accountID, Period: g, BucketStart: previous.Start})
}

func dashboardKey(accountID string, g period.Granularity, timeframe int) string {
	return fmt.Sprintf("dashboard:%s:%s:%d", accountID, g, timeframe)
}

func trendsKey(accountID string, g period.Granularity, days int) string {
	return fmt.Sprintf("trends:%s:%s:%d", accountID, g, days)
}

// cacheGet reports a hit only when the entry exists and decodes; cache faults count as misses
func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.CacheResult("error")
		s.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		return false
	}
	if !ok {
		s.metrics.CacheResult("miss")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.metrics.CacheResult("error")
		s.logger.WithError(err).WithField("key", key).Warn("Cache entry undecodable")
		return false
	}
	s.metrics.CacheResult("hit")
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cache entry not encodable")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

// invalidate drops every cached result after a write
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.WithError(err).Warn("Cache invalidation failed")
	}
}
