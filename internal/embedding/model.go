package embedding

// DashScopeRequest DashScope文本向量请求
type DashScopeRequest struct {
	Model      string                `json:"model"`
	Input      DashScopeRequestInput `json:"input"`
	Parameters *DashScopeParameters  `json:"parameters,omitempty"`
}

// DashScopeRequestInput 请求输入
type DashScopeRequestInput struct {
	Texts []string `json:"texts"`
}

// DashScopeParameters v3模型的可选参数
type DashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// DashScopeResponse DashScope文本向量响应
type DashScopeResponse struct {
	StatusCode int    `json:"status_code,omitempty"`
	RequestID  string `json:"request_id"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Output     struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}
