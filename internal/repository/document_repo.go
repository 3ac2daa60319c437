package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/doc-ingest/internal/database"
	"github.com/fyerfyer/doc-ingest/internal/models"
	"gorm.io/gorm"
)

// docRepository 文档仓储实现
type docRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 使用全局数据库连接创建文档仓储
func NewDocumentRepository() DocumentRepository {
	return &docRepository{db: database.MustDB()}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建文档仓储
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{db: db}
}

// Create 创建文档记录
func (r *docRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetByID 根据ID获取文档
func (r *docRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// Delete 删除文档记录及其分块
func (r *docRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Document{}).Error
	})
}

// UpdateStatus 更新文档状态
func (r *docRepository) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"error":      errorMsg,
		"updated_at": time.Now(),
	}

	switch status {
	case models.DocStatusReady, models.DocStatusFailed:
		now := time.Now()
		updates["processed_at"] = &now
	case models.DocStatusProcessing:
		// 重新处理时清空上一次的结果
		updates["processed_at"] = nil
		updates["progress"] = 0
		updates["chunk_count"] = 0
		updates["current_stage"] = ""
	}

	return r.updates(ctx, id, updates)
}

// UpdateProgress 更新文档处理进度
func (r *docRepository) UpdateProgress(ctx context.Context, id string, stage models.ProcessStage, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return r.updates(ctx, id, map[string]interface{}{
		"progress":      progress,
		"current_stage": stage,
		"updated_at":    time.Now(),
	})
}

// MarkReady 标记文档就绪
func (r *docRepository) MarkReady(ctx context.Context, id string, chunkCount int) error {
	now := time.Now()
	return r.updates(ctx, id, map[string]interface{}{
		"status":        models.DocStatusReady,
		"chunk_count":   chunkCount,
		"progress":      100,
		"current_stage": models.StageCompleted,
		"error":         "",
		"processed_at":  &now,
		"updated_at":    now,
	})
}

// updates 按ID更新字段，文档不存在时返回 ErrDocumentNotFound
func (r *docRepository) updates(ctx context.Context, id string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return nil
}

// InsertChunk 插入分块
func (r *docRepository) InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error {
	if chunk.DocumentID == "" {
		return errors.New("chunk document ID cannot be empty")
	}
	return r.db.WithContext(ctx).Create(chunk).Error
}

// ListChunks 获取文档的所有分块
func (r *docRepository) ListChunks(ctx context.Context, docID string) ([]*models.DocumentChunk, error) {
	var chunks []*models.DocumentChunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// CountChunks 统计文档的分块数量
func (r *docRepository) CountChunks(ctx context.Context, docID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DocumentChunk{}).
		Where("document_id = ?", docID).
		Count(&count).Error
	return int(count), err
}

// DeleteChunks 删除文档的所有分块
func (r *docRepository) DeleteChunks(ctx context.Context, docID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Delete(&models.DocumentChunk{})
	return result.RowsAffected, result.Error
}
