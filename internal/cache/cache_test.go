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

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	cache, err := NewMemoryCache(Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	})
	require.NoError(t, err)

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, cache.Set("key1", "value1", 0))

		val, found, err := cache.Get("key1")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "value1", val)

		val, found, err = cache.Get("non-existent")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, val)
	})

	t.Run("expiry", func(t *testing.T) {
		require.NoError(t, cache.Set("expire-soon", "temp-value", time.Millisecond*200))
		time.Sleep(time.Millisecond * 400)

		_, found, err := cache.Get("expire-soon")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete and clear", func(t *testing.T) {
		require.NoError(t, cache.Set("to-delete", "delete-me", 0))
		require.NoError(t, cache.Delete("to-delete"))
		_, found, _ := cache.Get("to-delete")
		assert.False(t, found)

		require.NoError(t, cache.Set("a", "1", 0))
		require.NoError(t, cache.Clear())
		_, found, _ = cache.Get("a")
		assert.False(t, found)
	})
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c, err := NewCache(Config{
		Type:       "redis",
		RedisAddr:  mr.Addr(),
		KeyPrefix:  "test",
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)
	defer c.(*RedisCache).Close()

	t.Run("keys are prefixed", func(t *testing.T) {
		require.NoError(t, c.Set("k1", "v1", 0))
		assert.True(t, mr.Exists("test:k1"))
		assert.Equal(t, time.Minute, mr.TTL("test:k1"), "zero ttl should use the default")

		val, found, err := c.Get("k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "v1", val)
	})

	t.Run("missing key", func(t *testing.T) {
		_, found, err := c.Get("missing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, c.Set("short", "v", time.Second))
		mr.FastForward(2 * time.Second)
		_, found, err := c.Get("short")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("negative ttl never expires", func(t *testing.T) {
		require.NoError(t, c.Set("pinned", "v", -1))
		assert.Equal(t, time.Duration(0), mr.TTL("test:pinned"))
	})

	t.Run("clear keeps foreign keys", func(t *testing.T) {
		// 模拟与任务队列共用的Redis
		raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer raw.Close()
		require.NoError(t, raw.Set(context.Background(), "asynq:queue", "x", 0).Err())

		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, c.Set(k, k, 0))
		}
		require.NoError(t, c.Clear())

		_, found, _ := c.Get("a")
		assert.False(t, found)
		assert.True(t, mr.Exists("asynq:queue"), "keys outside the prefix must survive Clear")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set("d", "v", 0))
		require.NoError(t, c.Delete("d"))
		assert.False(t, mr.Exists("test:d"))
	})
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = NewCache(Config{Type: "unknown"})
	assert.Error(t, err)

	_, err = NewCache(Config{Type: "redis", RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestMemoryCache_NoExpiry(t *testing.T) {
	c, err := NewMemoryCache(Config{DefaultTTL: 50 * time.Millisecond})
	require.NoError(t, err)
	mem := c.(*MemoryCache)

	require.NoError(t, mem.Set("forever", "v", -1))
	require.NoError(t, mem.Set("default", "v", 0))
	assert.Equal(t, 2, mem.Len())

	time.Sleep(100 * time.Millisecond)

	_, found, err := mem.Get("forever")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = mem.Get("default")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "embedding", GenerateCacheKey("embedding"))
	assert.Equal(t, "embedding:model:abc", GenerateCacheKey("embedding", "model", "abc"))
}
