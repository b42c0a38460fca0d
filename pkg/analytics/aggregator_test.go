package analytics_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/period"
	"github.com/platinummonkey/tally/pkg/storage/memory"
)

type archiveCall struct {
	period      period.Granularity
	bucketStart time.Time
	accounts    []string
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls []archiveCall
	err   error
}

func (a *fakeArchiver) Archive(ctx context.Context, g period.Granularity, bucketStart time.Time, rollups []analytics.PeriodRollup) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	call := archiveCall{period: g, bucketStart: bucketStart}
	for _, r := range rollups {
		call.accounts = append(call.accounts, r.AccountID)
	}
	a.calls = append(a.calls, call)
	return a.err
}

// brokenAccount fails record reads for one account only
type brokenAccount struct {
	*memory.Store
	account string
}

func (b brokenAccount) FindRecords(ctx context.Context, accountID string, r analytics.TimeRange) ([]analytics.RawRecord, error) {
	if accountID == b.account {
		return nil, errors.New("replica timeout")
	}
	return b.Store.FindRecords(ctx, accountID, r)
}

type unlistable struct {
	*memory.Store
}

func (unlistable) ListAccounts(ctx context.Context) ([]string, error) {
	return nil, errors.New("primary unavailable")
}

func seedAccounts(t *testing.T, store *memory.Store, accounts ...string) {
	t.Helper()
	var records []analytics.RawRecord
	for i, acct := range accounts {
		records = append(records,
			analytics.RawRecord{AccountID: acct, Date: day(2, 3), Revenue: float64(10 * (i + 1)), CustomerID: "c1"},
			analytics.RawRecord{AccountID: acct, Date: day(2, 27), Revenue: 5, CustomerID: "c2"},
		)
	}
	_, err := store.InsertRecords(context.Background(), records)
	require.NoError(t, err)
}

func newAggregator(records analytics.RecordStore, rollups analytics.RollupStore, cfg analytics.AggregatorConfig) *analytics.Aggregator {
	svc := analytics.NewService(analytics.ServiceConfig{
		Records: records,
		Rollups: rollups,
		Logger:  observability.NopLogger(),
		Now:     clock,
	})
	return analytics.NewAggregator(svc, cfg)
}

func TestAggregator_RunMonthly(t *testing.T) {
	store := memory.NewStore()
	seedAccounts(t, store, "globex", "acme", "initech")
	archiver := &fakeArchiver{}
	agg := newAggregator(store, store, analytics.AggregatorConfig{Concurrency: 2, Archiver: archiver})

	result, err := agg.RunMonthly(context.Background(), fixedNow)
	require.NoError(t, err)

	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, period.Monthly, result.Period)
	assert.Equal(t, feb, result.BucketStart)
	assert.Equal(t, 3, result.Accounts)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Written, 3)
	assert.Equal(t, "acme", result.Written[0].AccountID)
	assert.Equal(t, "initech", result.Written[2].AccountID)
	assert.Equal(t, float64(25), result.Written[0].Metrics.TotalRevenue)
	assert.Equal(t, 3, store.RollupCount())

	require.Len(t, archiver.calls, 1)
	assert.Equal(t, archiveCall{
		period:      period.Monthly,
		bucketStart: feb,
		accounts:    []string{"acme", "globex", "initech"},
	}, archiver.calls[0])
}

func TestAggregator_RunIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	seedAccounts(t, store, "acme", "globex")
	agg := newAggregator(store, store, analytics.AggregatorConfig{})

	first, err := agg.RunMonthly(context.Background(), fixedNow)
	require.NoError(t, err)
	second, err := agg.RunMonthly(context.Background(), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, 2, store.RollupCount())
	for i := range first.Written {
		assert.Equal(t, first.Written[i].Metrics, second.Written[i].Metrics)
		assert.Equal(t, first.Written[i].CreatedAt, second.Written[i].CreatedAt)
	}
}

func TestAggregator_PartialFailure(t *testing.T) {
	store := memory.NewStore()
	seedAccounts(t, store, "acme", "broken", "globex")
	archiver := &fakeArchiver{}
	agg := newAggregator(brokenAccount{Store: store, account: "broken"}, store, analytics.AggregatorConfig{Archiver: archiver})

	result, err := agg.RunMonthly(context.Background(), fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account broken")
	assert.True(t, analytics.IsRetryable(err))

	require.NotNil(t, result)
	assert.Equal(t, []string{"broken"}, result.Failed)
	require.Len(t, result.Written, 2)
	assert.Equal(t, 2, store.RollupCount())

	require.Len(t, archiver.calls, 1)
	assert.Equal(t, []string{"acme", "globex"}, archiver.calls[0].accounts)
}

func TestAggregator_ArchiveFailureKeepsRollups(t *testing.T) {
	store := memory.NewStore()
	seedAccounts(t, store, "acme")
	archiver := &fakeArchiver{err: errors.New("bucket not found")}
	agg := newAggregator(store, store, analytics.AggregatorConfig{Archiver: archiver})

	result, err := agg.RunMonthly(context.Background(), fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive")
	assert.Len(t, result.Written, 1)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, store.RollupCount())
}

func TestAggregator_NoAccounts(t *testing.T) {
	store := memory.NewStore()
	archiver := &fakeArchiver{}
	agg := newAggregator(store, store, analytics.AggregatorConfig{Archiver: archiver})

	result, err := agg.RunDaily(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), result.BucketStart)
	assert.Zero(t, result.Accounts)
	assert.Empty(t, archiver.calls)
}

func TestAggregator_RunWeekly(t *testing.T) {
	store := memory.NewStore()
	_, err := store.InsertRecords(context.Background(), []analytics.RawRecord{
		{AccountID: "acme", Date: day(3, 4), Revenue: 10},
		{AccountID: "acme", Date: day(3, 10), Revenue: 20},
		{AccountID: "acme", Date: day(3, 11), Revenue: 40},
	})
	require.NoError(t, err)
	agg := newAggregator(store, store, analytics.AggregatorConfig{})

	// 2024-03-15 is a Friday; the last closed week began Monday the 4th
	result, err := agg.RunWeekly(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), result.BucketStart)
	require.Len(t, result.Written, 1)
	assert.Equal(t, float64(30), result.Written[0].Metrics.TotalRevenue)
}

func TestAggregator_ListAccountsFailure(t *testing.T) {
	store := memory.NewStore()
	agg := newAggregator(unlistable{Store: store}, store, analytics.AggregatorConfig{})

	result, err := agg.Run(context.Background(), period.Daily, fixedNow)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, analytics.IsRetryable(err))
}

func TestAggregator_InvalidPeriod(t *testing.T) {
	store := memory.NewStore()
	agg := newAggregator(store, store, analytics.AggregatorConfig{})

	_, err := agg.Run(context.Background(), period.Granularity("hourly"), fixedNow)
	assert.True(t, analytics.IsInvalidParameter(err))

	_, err = agg.RunClosed(context.Background(), period.Granularity(""), fixedNow)
	assert.True(t, analytics.IsInvalidParameter(err))
}

func TestAggregator_RecordsJobMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	jobMetrics, err := observability.NewJobMetrics(provider)
	require.NoError(t, err)

	store := memory.NewStore()
	seedAccounts(t, store, "acme", "broken", "globex")
	agg := newAggregator(brokenAccount{Store: store, account: "broken"}, store, analytics.AggregatorConfig{JobMetrics: jobMetrics})

	_, err = agg.RunMonthly(context.Background(), fixedNow)
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
				values[m.Name] = sum.DataPoints[0].Value
			}
		}
	}
	assert.Equal(t, int64(1), values["tally.rollup.runs"])
	assert.Equal(t, int64(2), values["tally.rollup.written"])
	assert.Equal(t, int64(1), values["tally.rollup.accounts_failed"])
}

func TestService_GenerateAll(t *testing.T) {
	store := memory.NewStore()
	seedAccounts(t, store, "acme", "globex")
	svc := analytics.NewService(analytics.ServiceConfig{
		Records: store,
		Rollups: store,
		Logger:  observability.NopLogger(),
		Now:     clock,
	})

	result, err := svc.GenerateAll(context.Background(), period.Daily, day(2, 3))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), result.BucketStart)
	require.Len(t, result.Written, 2)
	assert.Equal(t, float64(10), result.Written[0].Metrics.TotalRevenue)
	assert.Equal(t, float64(20), result.Written[1].Metrics.TotalRevenue)
}
