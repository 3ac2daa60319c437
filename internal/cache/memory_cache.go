package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 进程内缓存，重启后失效
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache 创建内存缓存，未设置的过期参数取默认值
func NewMemoryCache(config Config) (Cache, error) {
	defaults := DefaultConfig()
	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = defaults.DefaultTTL
	}
	cleanup := config.CleanupInterval
	if cleanup == 0 {
		cleanup = defaults.CleanupInterval
	}

	return &MemoryCache{items: gocache.New(ttl, cleanup)}, nil
}

func (m *MemoryCache) Get(key string) (string, bool, error) {
	value, found := m.items.Get(key)
	if !found {
		return "", false, nil
	}
	str, ok := value.(string)
	if !ok {
		return "", false, fmt.Errorf("cache entry %s has unexpected type %T", key, value)
	}
	return str, true, nil
}

func (m *MemoryCache) Set(key string, value string, ttl time.Duration) error {
	switch {
	case ttl == 0:
		ttl = gocache.DefaultExpiration
	case ttl < 0:
		ttl = gocache.NoExpiration
	}
	m.items.Set(key, value, ttl)
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryCache) Clear() error {
	m.items.Flush()
	return nil
}

// Len 返回当前条目数，可能包含已过期但尚未清理的条目
func (m *MemoryCache) Len() int {
	return m.items.ItemCount()
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
