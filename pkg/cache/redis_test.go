package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("Failed to close redis client: %v", err)
		}
	})

	return NewRedisCache(client), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()

	err := cache.SetWithTTL(ctx, "odds:week:2024:5", []byte(`{"spread":-3.5}`), 5*time.Minute)
	require.NoError(t, err)

	data, err := cache.Get(ctx, "odds:week:2024:5")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"spread":-3.5}`), data)

	assert.Equal(t, 5*time.Minute, mr.TTL("odds:week:2024:5"))
}

func TestRedisCache_GetMissing(t *testing.T) {
	cache, _ := setupRedisCache(t)

	_, err := cache.Get(context.Background(), "missing:key")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisCache_Expiry(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetWithTTL(ctx, "news:all", []byte(`[]`), 30*time.Minute))

	mr.FastForward(31 * time.Minute)

	_, err := cache.Get(ctx, "news:all")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisCache_Delete(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetWithTTL(ctx, "teams:all", []byte(`[]`), time.Hour))
	require.NoError(t, cache.SetWithTTL(ctx, "players:all", []byte(`[]`), time.Hour))

	removed, err := cache.Delete(ctx, "teams:all", "players:all", "missing:key")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = cache.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestRedisCache_KeysMatching(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetWithTTL(ctx, "odds:week:2024:5", []byte(`{}`), time.Hour))
	require.NoError(t, cache.SetWithTTL(ctx, "odds:game:18777", []byte(`{}`), time.Hour))
	require.NoError(t, cache.SetWithTTL(ctx, "teams:all", []byte(`[]`), time.Hour))

	keys, err := cache.KeysMatching(ctx, "odds:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"odds:week:2024:5", "odds:game:18777"}, keys)

	keys, err = cache.KeysMatching(ctx, "stats:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestParseInfoField(t *testing.T) {
	section := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\nused_memory_rss:2097152\r\n"

	assert.Equal(t, "1.00M", parseInfoField(section, "used_memory_human"))
	assert.Equal(t, "1048576", parseInfoField(section, "used_memory"))
	assert.Equal(t, "", parseInfoField(section, "connected_clients"))
}
