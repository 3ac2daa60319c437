package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fyerfyer/doc-ingest/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 相同模型和文本的向量只请求一次，缓存读写失败不影响向量化结果
type CachedClient struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 用缓存包装嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedClient{
		client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Name 返回被包装客户端的模型名称
func (c *CachedClient) Name() string {
	return c.client.Name()
}

// Embed 先查缓存，未命中时调用底层客户端并回写缓存
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if raw, found, err := c.cache.Get(key); err != nil {
		c.logger.WithError(err).Warn("Failed to read embedding cache")
	} else if found {
		var vector []float32
		if err := json.Unmarshal([]byte(raw), &vector); err == nil && len(vector) > 0 {
			return vector, nil
		}
		c.logger.WithField("key", key).Warn("Discarding malformed cached embedding")
	}

	vector, err := c.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vector); err == nil {
		if err := c.cache.Set(key, string(raw), c.ttl); err != nil {
			c.logger.WithError(err).Warn("Failed to write embedding cache")
		}
	}
	return vector, nil
}

func (c *CachedClient) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.GenerateCacheKey("embedding", c.client.Name(), hex.EncodeToString(sum[:]))
}
