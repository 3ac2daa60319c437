package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"
	defaultTongyiModel       = "text-embedding-v1"
	defaultTongyiDimensions  = 1024
)

// TongyiClient 通义千问DashScope嵌入客户端
type TongyiClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	maxRetries int
	dimensions int
}

// NewTongyiClient 创建通义千问嵌入客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	client := &TongyiClient{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		dimensions: cfg.Dimensions,
	}
	if client.endpoint == "" {
		client.endpoint = defaultDashScopeEndpoint
	}
	if client.model == "" {
		client.model = defaultTongyiModel
	}
	if client.dimensions == 0 {
		client.dimensions = defaultTongyiDimensions
	}
	if client.isV3Model() && !isValidDimension(client.dimensions) {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("invalid dimension: %d", client.dimensions))
	}

	return client, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if c.isV3Model() && len(texts) > 10 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "text-embedding-v3 model supports maximum 10 texts per batch")
	} else if !c.isV3Model() && len(texts) > 25 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "text-embedding-v1/v2 models support maximum 25 texts per batch")
	}

	reqData := DashScopeRequest{
		Model: c.model,
		Input: DashScopeRequestInput{Texts: texts},
	}
	if c.isV3Model() {
		reqData.Parameters = &DashScopeParameters{OutputType: "dense"}
		if c.dimensions != defaultTongyiDimensions {
			reqData.Parameters.Dimension = c.dimensions
		}
	}

	var resp DashScopeResponse
	if err := c.sendRequest(ctx, reqData, &resp); err != nil {
		return nil, err
	}

	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return nil, NewEmbeddingError(codeForStatus(resp.StatusCode),
			fmt.Sprintf("API error: %s (%s)", resp.Message, resp.Code))
	}
	if len(resp.Output.Embeddings) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embeddings returned")
	}

	// 按原始文本顺序组装结果
	result := make([][]float32, len(texts))
	for _, emb := range resp.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			continue
		}
		result[emb.TextIndex] = emb.Embedding
	}
	return result, nil
}

// sendRequest 发送请求，网络错误和5xx按指数退避重试
// 限流和其他4xx不重试，直接返回给调用方
func (c *TongyiClient) sendRequest(ctx context.Context, reqData interface{}, respObj interface{}) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		status, body, err := c.do(ctx, jsonData)
		if err != nil {
			if ctx.Err() != nil {
				return NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			}
			lastErr = NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
			continue
		}

		if status >= 500 {
			lastErr = NewEmbeddingError(ErrCodeServerError, errorMessage(status, body))
			continue
		}
		if status != http.StatusOK {
			return NewEmbeddingError(codeForStatus(status), errorMessage(status, body))
		}

		if err := json.Unmarshal(body, respObj); err != nil {
			return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
		}
		return nil
	}

	return lastErr
}

// do 发送一次HTTP请求并读取响应体
func (c *TongyiClient) do(ctx context.Context, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// errorMessage 从错误响应中提取消息
func errorMessage(status int, body []byte) string {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}
	return fmt.Sprintf("API error (status %d): %s", status, string(body))
}

func (c *TongyiClient) isV3Model() bool {
	return c.model == "text-embedding-v3"
}

// isValidDimension v3模型支持的维度
func isValidDimension(dim int) bool {
	switch dim {
	case 1024, 768, 512, 256, 128, 64:
		return true
	}
	return false
}

func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
