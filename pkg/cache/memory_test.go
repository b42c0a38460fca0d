package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "dashboard:acme:monthly:6")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "dashboard:acme:monthly:6", []byte(`{"a":1}`), time.Minute))

	got, ok, err := c.Get(ctx, "dashboard:acme:monthly:6")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'z'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryCache_InvalidateAll(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.InvalidateAll(ctx))
	assert.Equal(t, 0, c.Len())

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(10, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_PerEntryTTL(t *testing.T) {
	c := NewMemoryCache(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "long", []byte("v"), time.Minute))

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "short")
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, ok, err := c.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, okA, _ := c.Get(ctx, "a")
	_, okB, _ := c.Get(ctx, "b")
	assert.True(t, okA)
	assert.False(t, okB)
}

func TestMemoryCache_CancelledContext(t *testing.T) {
	c := NewMemoryCache(0, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), context.Canceled)
}
