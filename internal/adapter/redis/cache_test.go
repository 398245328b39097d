package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsenotify/orchestrator/internal/port"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCacheWithClient(client), mr
}

func TestCache_SetNX(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.SetNX(ctx, "key-1", "corr-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// second writer loses the race, first correlation id stays
	ok, err = cache.SetNX(ctx, "key-1", "corr-2")
	require.NoError(t, err)
	assert.False(t, ok)

	val, found, err := cache.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "corr-1", val)

	ttl := mr.TTL("idempotency:key-1")
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestCache_Get_Miss(t *testing.T) {
	cache, _ := newTestCache(t)

	val, found, err := cache.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)
}

func TestCache_SetNX_Expiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.SetNX(ctx, "key-1", "corr-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(24*time.Hour + time.Second)

	ok, err = cache.SetNX(ctx, "key-1", "corr-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_StatusSnapshot(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	snapshot := port.StatusSnapshot{
		Status:    "queued",
		UpdatedAt: time.Now().Unix(),
	}
	require.NoError(t, cache.SetStatus(ctx, "corr-1", snapshot))

	got, err := cache.GetStatus(ctx, "corr-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snapshot, *got)

	ttl := mr.TTL("notification:status:corr-1")
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestCache_StatusSnapshot_Error(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	snapshot := port.StatusSnapshot{
		Status:    "failed",
		Error:     "TEMPLATE_FETCH_ERROR",
		UpdatedAt: time.Now().Unix(),
	}
	require.NoError(t, cache.SetStatus(ctx, "corr-2", snapshot))

	got, err := cache.GetStatus(ctx, "corr-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TEMPLATE_FETCH_ERROR", got.Error)
}

func TestCache_GetStatus_Miss(t *testing.T) {
	cache, _ := newTestCache(t)

	got, err := cache.GetStatus(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}
