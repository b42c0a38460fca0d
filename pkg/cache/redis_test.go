package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{
		URL:        "redis://" + mr.Addr(),
		MaxRetries: 1,
		PoolSize:   4,
	})
	require.NoError(t, err)

	c := NewRedisCache(client, "")
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{URL: "not-a-url://"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestNewRedisClient_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "trends:acme:daily:30")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "trends:acme:daily:30", []byte(`[]`), time.Minute))

	got, ok, err := c.Get(ctx, "trends:acme:daily:30")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[]`), got)

	assert.True(t, mr.Exists("tally:trends:acme:daily:30"))
	assert.Equal(t, time.Minute, mr.TTL("tally:trends:acme:daily:30"))
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_InvalidateAllKeepsForeignKeys(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("dashboard:acct%d:monthly:6", i), []byte("x"), 0))
	}
	require.NoError(t, mr.Set("other-app:session", "keep"))

	require.NoError(t, c.InvalidateAll(ctx))

	keys := mr.Keys()
	assert.Equal(t, []string{"other-app:session"}, keys)
}

func TestRedisCache_InvalidateAllEmpty(t *testing.T) {
	c, _ := setupRedisCache(t)
	assert.NoError(t, c.InvalidateAll(context.Background()))
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, mr := setupRedisCache(t)
	mr.Close()

	_, ok, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), "k", []byte("v"), 0))
}

func TestRedisCache_CustomPrefix(t *testing.T) {
	_, mr := setupRedisCache(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	c := NewRedisCache(client, "staging:")
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	assert.True(t, mr.Exists("staging:k"))
	assert.NotNil(t, c.Client())
}
