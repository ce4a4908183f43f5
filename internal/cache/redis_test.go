package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(cache.RedisConfig{
		Address: mr.Addr(),
		Prefix:  "regcount-test:",
		TTL:     ttl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStore_RequiresAddress(t *testing.T) {
	t.Parallel()

	store, err := cache.NewRedisStore(cache.RedisConfig{})
	require.ErrorIs(t, err, cache.ErrEmptyAddress)
	assert.Nil(t, store)
}

func TestNewRedisStore_PingFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	store, err := cache.NewRedisStore(cache.RedisConfig{Address: addr})
	require.Error(t, err)
	assert.Nil(t, store)
}

func TestRedisStore_PutGet(t *testing.T) {
	t.Parallel()

	store, _ := newRedisStore(t, 0)
	ctx := context.Background()
	key := titleKey("2025-01-01")
	fetched := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := store.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, store.Put(ctx, key, cache.Entry{Key: key.String(), Value: []byte("1234"), FetchedAt: fetched}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(got.Value))
	assert.Equal(t, key.String(), got.Key)
	assert.True(t, fetched.Equal(got.FetchedAt))

	_, err = store.Get(ctx, titleKey("2024-01-01"))
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestRedisStore_TTL(t *testing.T) {
	t.Parallel()

	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()
	key := titleKey("2025-01-01")

	require.NoError(t, store.Put(ctx, key, cache.Entry{Key: key.String(), Value: []byte("7"), FetchedAt: time.Now()}))
	_, err := store.Get(ctx, key)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestRedisStore_ClearKeepsForeignKeys(t *testing.T) {
	t.Parallel()

	store, mr := newRedisStore(t, 0)
	ctx := context.Background()
	require.NoError(t, mr.Set("other-app:key", "keep"))

	for _, date := range []string{"2023-01-01", "2024-01-01", "2025-01-01"} {
		key := titleKey(date)
		require.NoError(t, store.Put(ctx, key, cache.Entry{Key: key.String(), Value: []byte("1"), FetchedAt: time.Now()}))
	}

	require.NoError(t, store.Clear(ctx))

	for _, date := range []string{"2023-01-01", "2024-01-01", "2025-01-01"} {
		_, err := store.Get(ctx, titleKey(date))
		require.ErrorIs(t, err, cache.ErrNotFound)
	}
	assert.True(t, mr.Exists("other-app:key"))
}

func TestRedisStore_BehindCache(t *testing.T) {
	t.Parallel()

	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	c := cache.New(store, logger.NewNop())
	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte("42"), nil
	}

	for range 2 {
		v, err := c.GetOrCompute(ctx, titleKey("2025-01-01"), compute)
		require.NoError(t, err)
		assert.Equal(t, "42", string(v))
	}
	assert.Equal(t, 1, calls)
	require.NoError(t, c.Clear(ctx))
}
