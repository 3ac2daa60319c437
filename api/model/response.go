package model

import (
	"time"

	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/fyerfyer/doc-ingest/pkg/taskqueue"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"filename"`
	Status     string `json:"status"`
	TaskID     string `json:"task_id,omitempty"` // 使用任务队列时返回
}

// DocumentStatusResponse 文档状态查询响应
type DocumentStatusResponse struct {
	DocumentID  string     `json:"document_id"`
	FileName    string     `json:"filename"`
	Status      string     `json:"status"`
	Stage       string     `json:"stage,omitempty"`
	Progress    int        `json:"progress"`
	ChunkCount  int        `json:"chunk_count"`
	Error       string     `json:"error,omitempty"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// NewDocumentStatusResponse 从文档记录构造状态响应
func NewDocumentStatusResponse(doc *models.Document) *DocumentStatusResponse {
	return &DocumentStatusResponse{
		DocumentID:  doc.ID,
		FileName:    doc.FileName,
		Status:      string(doc.Status),
		Stage:       string(doc.CurrentStage),
		Progress:    doc.Progress,
		ChunkCount:  doc.ChunkCount,
		Error:       doc.Error,
		UploadedAt:  doc.UploadedAt,
		UpdatedAt:   doc.UpdatedAt,
		ProcessedAt: doc.ProcessedAt,
	}
}

// DocumentTasksResponse 文档相关任务列表
type DocumentTasksResponse struct {
	DocumentID string                `json:"document_id"`
	Tasks      []*taskqueue.TaskInfo `json:"tasks"`
}
