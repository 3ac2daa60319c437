package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyerfyer/doc-ingest/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClient 实现了Client接口的模拟客户端
type MockClient struct {
	calls int32
	err   error
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return nil, m.err
	}
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	return []float32{float32(len(text)), 0.5, -0.5}, nil
}

func (m *MockClient) Name() string {
	return "mock-model"
}

// failingCache 所有操作都返回错误的缓存
type failingCache struct{}

func (failingCache) Get(string) (string, bool, error)         { return "", false, errors.New("cache down") }
func (failingCache) Set(string, string, time.Duration) error { return errors.New("cache down") }
func (failingCache) Delete(string) error                     { return errors.New("cache down") }
func (failingCache) Clear() error                            { return errors.New("cache down") }

// TestClientRegistry 测试客户端注册与创建
func TestClientRegistry(t *testing.T) {
	RegisterClient("mock", func(opts ...Option) (Client, error) {
		return &MockClient{}, nil
	})

	t.Run("registered client", func(t *testing.T) {
		client, err := NewClient("mock")
		require.NoError(t, err)
		assert.Equal(t, "mock-model", client.Name())
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := NewClient("nope")
		var embErr EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Equal(t, ErrCodeInvalidRequest, embErr.Code)
		assert.Contains(t, embErr.Message, "tongyi")
	})

	t.Run("builtin clients registered", func(t *testing.T) {
		assert.Subset(t, Providers(), []string{"tongyi", "openai", "ollama"})
	})

	t.Run("options", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("k"), WithModel("m"), WithBaseURL("u"),
			WithTimeout(time.Second), WithMaxRetries(5), WithDimensions(64))
		assert.Equal(t, &Config{APIKey: "k", Model: "m", BaseURL: "u",
			Timeout: time.Second, MaxRetries: 5, Dimensions: 64}, cfg)
	})
}

func TestEmbeddingError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited))
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsRateLimited(NewEmbeddingError(ErrCodeServerError, "x")))
	assert.False(t, IsRateLimited(errors.New("plain")))
	assert.Contains(t, err.Error(), "code=1004")
}

func TestCachedClient(t *testing.T) {
	ctx := context.Background()

	t.Run("second call served from cache", func(t *testing.T) {
		mem, err := cache.NewMemoryCache(cache.DefaultConfig())
		require.NoError(t, err)

		mock := &MockClient{}
		client := NewCachedClient(mock, mem, time.Minute, nil)

		v1, err := client.Embed(ctx, "hello")
		require.NoError(t, err)
		v2, err := client.Embed(ctx, "hello")
		require.NoError(t, err)

		assert.Equal(t, v1, v2)
		assert.Equal(t, int32(1), atomic.LoadInt32(&mock.calls))
		assert.Equal(t, "mock-model", client.Name())

		_, err = client.Embed(ctx, "other text")
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&mock.calls))
	})

	t.Run("cache failure falls through", func(t *testing.T) {
		mock := &MockClient{}
		client := NewCachedClient(mock, failingCache{}, time.Minute, nil)

		v, err := client.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.NotEmpty(t, v)
	})

	t.Run("provider errors are not cached", func(t *testing.T) {
		mem, err := cache.NewMemoryCache(cache.DefaultConfig())
		require.NoError(t, err)

		mock := &MockClient{err: NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)}
		client := NewCachedClient(mock, mem, time.Minute, nil)

		_, err = client.Embed(ctx, "hello")
		assert.True(t, IsRateLimited(err))

		mock.err = nil
		v, err := client.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.NotEmpty(t, v)
	})
}
