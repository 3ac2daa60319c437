package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/fyerfyer/doc-ingest/internal/repository"
	"github.com/sirupsen/logrus"
)

// validTransitions 允许的状态转换
// ready 与 failed 都可以重新进入 processing，由重新处理流程触发
var validTransitions = map[models.DocumentStatus][]models.DocumentStatus{
	models.DocStatusProcessing: {models.DocStatusReady, models.DocStatusFailed},
	models.DocStatusReady:      {models.DocStatusProcessing},
	models.DocStatusFailed:     {models.DocStatusProcessing},
}

// DocumentStatusManager 文档状态管理器
// 负责管理文档处理的生命周期状态
type DocumentStatusManager struct {
	repo   repository.DocumentRepository
	logger *logrus.Logger
	mu     sync.Mutex // 保证“读取-校验-写入”的原子性
}

// NewDocumentStatusManager 创建文档状态管理器
func NewDocumentStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *DocumentStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &DocumentStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// Register 以 processing 状态创建文档记录
func (m *DocumentStatusManager) Register(ctx context.Context, doc *models.Document) error {
	doc.Status = models.DocStatusProcessing
	doc.Progress = 0

	m.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"filename": doc.FileName,
	}).Info("Registering document for processing")

	if err := m.repo.Create(ctx, doc); err != nil {
		return fmt.Errorf("%w: create document: %w", models.ErrPersistence, err)
	}
	return nil
}

// MarkAsProcessing 将 ready 或 failed 的文档重新置为 processing
func (m *DocumentStatusManager) MarkAsProcessing(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}

	if err := m.ValidateStateTransition(doc.Status, models.DocStatusProcessing); err != nil {
		return fmt.Errorf("document %s: %w", docID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"from":   doc.Status,
	}).Info("Marking document as processing")

	return m.repo.UpdateStatus(ctx, docID, models.DocStatusProcessing, "")
}

// MarkAsReady 将文档标记为就绪
// 流水线运行期间独占文档状态，这里只要求文档仍然存在
func (m *DocumentStatusManager) MarkAsReady(ctx context.Context, docID string, chunkCount int) error {
	m.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"chunk_count": chunkCount,
	}).Info("Marking document as ready")

	return m.repo.MarkReady(ctx, docID, chunkCount)
}

// MarkAsFailed 将文档标记为处理失败
func (m *DocumentStatusManager) MarkAsFailed(ctx context.Context, docID string, errorMsg string) error {
	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"error":  errorMsg,
	}).Error("Marking document as failed")

	return m.repo.UpdateStatus(ctx, docID, models.DocStatusFailed, errorMsg)
}

// UpdateProgress 更新文档处理进度
func (m *DocumentStatusManager) UpdateProgress(ctx context.Context, docID string, stage models.ProcessStage, progress int) error {
	m.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"stage":    stage,
		"progress": progress,
	}).Debug("Updating document progress")

	return m.repo.UpdateProgress(ctx, docID, stage, progress)
}

// GetStatus 获取文档当前状态
func (m *DocumentStatusManager) GetStatus(ctx context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := m.repo.GetByID(ctx, docID)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

// GetDocument 获取完整的文档对象
func (m *DocumentStatusManager) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return m.repo.GetByID(ctx, docID)
}

// ValidateStateTransition 验证状态转换的有效性
func (m *DocumentStatusManager) ValidateStateTransition(from, to models.DocumentStatus) error {
	for _, validTo := range validTransitions[from] {
		if validTo == to {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %q to %q", models.ErrInvalidDocumentStatus, from, to)
}
