package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/backend/internal/domain"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb, time.Minute), mr
}

func TestCache_MessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	msg := &domain.Message{
		ID:        "m1",
		Name:      "Ada",
		Email:     "ada@example.com",
		Message:   "Living room",
		Status:    domain.StatusUnread,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := cache.GetCachedMessage(ctx, "m1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.CacheMessage(ctx, msg))
	assert.Equal(t, time.Minute, mr.TTL(messageKeyPrefix+"m1"))

	got, err := cache.GetCachedMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Status, got.Status)
	assert.True(t, msg.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, cache.DeleteCachedMessage(ctx, "m1"))
	_, err = cache.GetCachedMessage(ctx, "m1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCache_CorruptedEntry(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set(messageKeyPrefix+"bad", "{not json"))

	_, err := cache.GetCachedMessage(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestCache_RateLimitWindow(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	for i := int64(1); i <= 3; i++ {
		count, err := cache.IncrementRateLimit(ctx, "contact:10.0.0.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	current, err := cache.GetRateLimit(ctx, "contact:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)

	// 后续计数不会延长窗口
	mr.FastForward(30 * time.Second)
	_, err = cache.IncrementRateLimit(ctx, "contact:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL(rateLimitKeyPrefix+"contact:10.0.0.1"))

	mr.FastForward(31 * time.Second)
	count, err := cache.IncrementRateLimit(ctx, "contact:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	none, err := cache.GetRateLimit(ctx, "contact:other")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestCache_RateLimitKeyAlwaysExpires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	count, err := cache.IncrementRateLimit(ctx, "contact:10.0.0.2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, mr.TTL(rateLimitKeyPrefix+"contact:10.0.0.2"))

	// Redis 不可用时不返回计数
	mr.Close()
	_, err = cache.IncrementRateLimit(ctx, "contact:10.0.0.3", time.Minute)
	assert.Error(t, err)
}

func TestCache_Ping(t *testing.T) {
	cache, mr := newTestCache(t)
	assert.NoError(t, cache.Ping(context.Background()))

	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}
