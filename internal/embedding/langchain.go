package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultOpenAIModel = "text-embedding-3-small"
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// LangChainClient 基于langchaingo的嵌入客户端，支持OpenAI兼容接口和Ollama
type LangChainClient struct {
	embedder embeddings.Embedder
	model    string
}

// NewOpenAIClient 创建OpenAI兼容接口的嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	token := cfg.APIKey
	if token == "" {
		// 本地OpenAI兼容服务通常不需要鉴权，但langchaingo要求token非空
		token = "none"
	}

	llmOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create openai client: %v", err))
	}
	return newLangChainClient(llm, cfg.Model)
}

// NewOllamaClient 创建Ollama嵌入客户端
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create ollama client: %v", err))
	}
	return newLangChainClient(llm, cfg.Model)
}

func newLangChainClient(client embeddings.EmbedderClient, model string) (*LangChainClient, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create embedder: %v", err))
	}
	return &LangChainClient{embedder: embedder, model: model}, nil
}

// Name 返回模型名称
func (c *LangChainClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *LangChainClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if len(vector) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}
	return vector, nil
}

// classifyError 将langchaingo返回的错误转换为EmbeddingError
// langchaingo不暴露HTTP状态码，只能从错误信息中识别限流
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, err.Error())
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "429") || strings.Contains(lower, "rate limit"):
		return NewEmbeddingError(ErrCodeRateLimited, msg)
	case strings.Contains(msg, "401") || strings.Contains(lower, "api key"):
		return NewEmbeddingError(ErrCodeInvalidAPIKey, msg)
	default:
		return NewEmbeddingError(ErrCodeServerError, msg)
	}
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("ollama", NewOllamaClient)
}
