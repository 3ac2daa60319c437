package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Cache 键值缓存，嵌入客户端用它保存序列化后的向量
// 读写失败不应影响调用方，调用方记录日志后直接访问底层服务
type Cache interface {
	Get(key string) (value string, found bool, err error)
	// Set ttl 为0时使用默认过期时间，小于0表示永不过期
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Config 缓存配置
type Config struct {
	Type string // memory 或 redis

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string // Clear 只删除该前缀下的键

	DefaultTTL      time.Duration
	CleanupInterval time.Duration // 仅内存缓存使用
}

// DefaultConfig 返回默认缓存配置
// 相同文本的向量不会变化，默认保留一周
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		KeyPrefix:       "docingest",
		DefaultTTL:      7 * 24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Factory 缓存工厂函数类型
type Factory func(config Config) (Cache, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewCache 按类型创建缓存，类型为空时使用内存缓存
func NewCache(config Config) (Cache, error) {
	if config.Type == "" {
		config.Type = "memory"
	}

	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
	return factory(config)
}

// GenerateCacheKey 生成以冒号分隔的缓存键
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}
