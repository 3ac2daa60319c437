package repository

import (
	"context"

	"github.com/fyerfyer/doc-ingest/internal/models"
)

// DocumentRepository 文档仓储接口
// 负责文档元数据和分块的存储与检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(ctx context.Context, doc *models.Document) error

	// GetByID 根据ID获取文档，不存在时返回 models.ErrDocumentNotFound
	GetByID(ctx context.Context, id string) (*models.Document, error)

	// Delete 删除文档及其分块
	Delete(ctx context.Context, id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, errorMsg string) error

	// UpdateProgress 更新处理进度与阶段
	UpdateProgress(ctx context.Context, id string, stage models.ProcessStage, progress int) error

	// MarkReady 将文档标记为就绪并记录分块数量
	MarkReady(ctx context.Context, id string, chunkCount int) error

	// InsertChunk 插入一个分块，同一文档的分块序号重复时返回错误
	InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error

	// ListChunks 按序号列出文档的分块
	ListChunks(ctx context.Context, docID string) ([]*models.DocumentChunk, error)

	// CountChunks 统计文档的分块数量
	CountChunks(ctx context.Context, docID string) (int, error)

	// DeleteChunks 删除文档的所有分块，返回删除条数
	DeleteChunks(ctx context.Context, docID string) (int64, error)
}
