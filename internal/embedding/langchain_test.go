package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOpenAIServer 模拟OpenAI兼容的 /embeddings 接口
func newOpenAIServer(t *testing.T, status int) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "embeddings")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)

		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "Rate limit reached", "type": "requests"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  "test-embed",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float64{0.25, -0.5, 1}},
			},
			"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIClient(t *testing.T) {
	ctx := context.Background()

	t.Run("embed", func(t *testing.T) {
		server := newOpenAIServer(t, http.StatusOK)
		client, err := NewOpenAIClient(WithBaseURL(server.URL), WithModel("test-embed"), WithTimeout(5*time.Second))
		require.NoError(t, err)

		vector, err := client.Embed(ctx, "hello\nworld")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.25, -0.5, 1}, vector)
		assert.Equal(t, "test-embed", client.Name())
	})

	t.Run("provider failure", func(t *testing.T) {
		server := newOpenAIServer(t, http.StatusTooManyRequests)
		client, err := NewOpenAIClient(WithBaseURL(server.URL), WithModel("test-embed"), WithTimeout(5*time.Second))
		require.NoError(t, err)

		_, err = client.Embed(ctx, "hello")
		var embErr EmbeddingError
		require.ErrorAs(t, err, &embErr)
	})

	t.Run("empty input", func(t *testing.T) {
		client, err := NewOpenAIClient(WithBaseURL("http://127.0.0.1:1"))
		require.NoError(t, err)

		_, err = client.Embed(ctx, "  ")
		var embErr EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Equal(t, ErrCodeEmptyInput, embErr.Code)
	})
}

func TestOllamaClientDefaults(t *testing.T) {
	client, err := NewOllamaClient()
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaModel, client.Name())
}

func TestClassifyError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"rate limit status", errors.New("API returned unexpected status code: 429"), ErrCodeRateLimited},
		{"rate limit message", errors.New("Rate limit reached for requests"), ErrCodeRateLimited},
		{"unauthorized", errors.New("status code: 401: Incorrect API key provided"), ErrCodeInvalidAPIKey},
		{"other", errors.New("connection reset"), ErrCodeServerError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var embErr EmbeddingError
			require.ErrorAs(t, classifyError(ctx, tt.err), &embErr)
			assert.Equal(t, tt.code, embErr.Code)
		})
	}
}
