package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Client 将文本转换为向量
// 流水线逐块调用 Embed，同一实例会被多个文档并发使用，实现必须并发安全
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name 返回模型名称，也用作缓存键的一部分
	Name() string
}

// Config 嵌入客户端配置，各实现只读取自己需要的字段
type Config struct {
	APIKey     string
	BaseURL    string // 为空时使用各实现的默认地址
	Model      string
	Timeout    time.Duration // 单次HTTP请求超时
	MaxRetries int           // 服务端错误的最大重试次数，限流错误不重试
	Dimensions int           // 0 表示使用模型默认维度
}

// Option 客户端配置选项
type Option func(*Config)

func WithAPIKey(apiKey string) Option { return func(c *Config) { c.APIKey = apiKey } }

func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

func WithTimeout(timeout time.Duration) Option { return func(c *Config) { c.Timeout = timeout } }

func WithMaxRetries(retries int) Option { return func(c *Config) { c.MaxRetries = retries } }

func WithDimensions(dimensions int) Option { return func(c *Config) { c.Dimensions = dimensions } }

// NewConfig 在默认值上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Factory 按选项创建客户端
type Factory func(opts ...Option) (Client, error)

var (
	registryMu sync.RWMutex
	providers  = make(map[string]Factory)
)

// RegisterClient 以提供商名称注册工厂，重复注册会覆盖
func RegisterClient(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = factory
}

// Providers 返回已注册的提供商名称，按字母排序
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient 按提供商名称创建客户端
func NewClient(provider string, opts ...Option) (Client, error) {
	registryMu.RLock()
	factory, ok := providers[provider]
	registryMu.RUnlock()

	if !ok {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("unknown embedding provider %q (available: %s)", provider, strings.Join(Providers(), ", ")))
	}
	return factory(opts...)
}
