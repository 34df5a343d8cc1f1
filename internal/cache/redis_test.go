// ABOUTME: Tests for the Redis cache store against an in-process miniredis.
// ABOUTME: Covers presence reporting, TTL expiry, deletion, and key builders.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(rdb)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_GetMiss(t *testing.T) {
	store, _ := newTestStore(t)

	b, ok, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestRedisStore_SetExThenGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "k", 60, []byte("payload")))

	b, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), b)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "k", 10, []byte("v")))

	mr.FastForward(11 * time.Second)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Del(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "a", 60, []byte("1")))
	require.NoError(t, store.SetEx(ctx, "b", 60, []byte("2")))

	n, err := store.Del(ctx, "a", "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "trending-mints:one_hour:unique_wallets", TrendingKey("one_hour", "unique_wallets"))
	assert.Equal(t, "mint-detail:0xabc", MintDetailKey("0xabc"))
}
