package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/cache"
	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/period"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Type = "memory"
	return cfg
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, memoryConfig(), observability.NopLogger())
	require.NoError(t, err)
	defer b.Close(ctx)

	assert.NotNil(t, b.Store)
	assert.Nil(t, b.DB)
	assert.Nil(t, b.Redis)
	assert.Nil(t, b.Postgres())
	assert.IsType(t, &cache.MemoryCache{}, b.Cache)

	svc := b.Service(memoryConfig(), observability.NopLogger(), observability.NewMetrics(prometheus.NewRegistry()))
	n, err := svc.IngestRecords(ctx, "acme", []analytics.RawRecord{{Date: time.Now(), Revenue: 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rollup, err := svc.GenerateRollup(ctx, "acme", period.Daily, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10.0, rollup.Metrics.TotalRevenue)
}

func TestOpen_UnknownStorage(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Type = "cassandra"

	_, err := Open(context.Background(), cfg, observability.NopLogger())
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestOpen_CacheFailureReleasesStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisURL = "not a url"

	_, err := Open(context.Background(), cfg, observability.NopLogger())
	assert.ErrorContains(t, err, "invalid redis URL")
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		c, client, err := OpenCache(ctx, config.CacheConfig{Type: "none"}, cache.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, c)
		assert.Nil(t, client)
	})

	t.Run("memory", func(t *testing.T) {
		c, client, err := OpenCache(ctx, config.CacheConfig{Type: "memory", MaxEntries: 8, TTL: time.Minute}, cache.RedisConfig{})
		require.NoError(t, err)
		assert.IsType(t, &cache.MemoryCache{}, c)
		assert.Nil(t, client)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, client, err := OpenCache(ctx, config.CacheConfig{Type: "redis"}, cache.RedisConfig{
			URL:       "redis://" + mr.Addr() + "/0",
			KeyPrefix: "test:",
		})
		require.NoError(t, err)
		require.NotNil(t, client)
		defer client.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		assert.True(t, mr.Exists("test:k"))
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := OpenCache(ctx, config.CacheConfig{Type: "memcached"}, cache.RedisConfig{})
		assert.ErrorContains(t, err, "unknown cache type")
	})
}

func TestOpenArchiver_Disabled(t *testing.T) {
	archiver, err := OpenArchiver(context.Background(), memoryConfig(), observability.NopLogger())
	require.NoError(t, err)
	assert.Nil(t, archiver)
}

func TestAddJob(t *testing.T) {
	c := cron.New()

	ok, err := AddJob(c, "", func() {})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = AddJob(c, "5 0 * * *", func() {})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, c.Entries(), 1)

	_, err = AddJob(c, "every tuesday", func() {})
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := CronLogger(observability.NewLogger(observability.DebugLevel, &buf))

	l.Info("schedule", "entry", 1)
	l.Error(errors.New("job blew up"), "panic", "job", "daily")

	out := buf.String()
	assert.Contains(t, out, `"component":"cron"`)
	assert.Contains(t, out, `"entry":1`)
	assert.Contains(t, out, "job blew up")
	assert.Contains(t, out, `"job":"daily"`)
}

func TestNewScheduler(t *testing.T) {
	c := NewScheduler(observability.NopLogger())
	assert.Equal(t, time.UTC, c.Location())
}
