package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/doc-ingest/api/middleware"
	"github.com/fyerfyer/doc-ingest/api/model"
	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/fyerfyer/doc-ingest/internal/services"
	"github.com/fyerfyer/doc-ingest/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DefaultMaxUploadSize 默认上传文件大小上限
const DefaultMaxUploadSize = 50 << 20

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	status        *services.DocumentStatusManager
	fileStorage   storage.Storage
	dispatcher    Dispatcher
	maxUploadSize int64
	logger        *logrus.Logger
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(status *services.DocumentStatusManager, fileStorage storage.Storage, dispatcher Dispatcher, maxUploadSize int64) *DocumentHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &DocumentHandler{
		status:        status,
		fileStorage:   fileStorage,
		dispatcher:    dispatcher,
		maxUploadSize: maxUploadSize,
		logger:        middleware.GetLogger(),
	}
}

// UploadDocument 上传PDF并开始处理
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("未提供文件", err.Error()))
		return
	}

	filename := filepath.Base(req.File.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		middleware.HandleError(c, middleware.NewValidationError("不支持的文件类型，仅支持 .pdf"))
		return
	}
	if req.File.Size == 0 {
		middleware.HandleError(c, middleware.NewValidationError("文件为空"))
		return
	}
	if req.File.Size > h.maxUploadSize {
		middleware.HandleError(c, middleware.NewValidationError("文件过大"))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("无法打开上传的文件", err.Error()))
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	fileInfo, err := h.fileStorage.Save(ctx, file, filename)
	if err != nil {
		middleware.HandleError(c, middleware.NewUnavailableError("保存文件失败", err.Error()))
		return
	}

	doc := &models.Document{
		ID:       fileInfo.ID,
		FileName: filename,
		FilePath: fileInfo.Path,
		FileSize: fileInfo.Size,
	}
	if err := h.status.Register(ctx, doc); err != nil {
		h.removeFile(fileInfo.Path)
		middleware.HandleError(c, err)
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"filename": filename,
		"size":     fileInfo.Size,
	})
	log.Info("Document uploaded")

	taskID, err := h.dispatcher.Dispatch(ctx, doc.ID, false)
	if err != nil {
		log.WithError(err).Error("Failed to dispatch document")
		if markErr := h.status.MarkAsFailed(context.WithoutCancel(ctx), doc.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("Failed to mark document as failed")
		}
		middleware.HandleError(c, middleware.NewUnavailableError("无法提交处理任务", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.DocumentUploadResponse{
		DocumentID: doc.ID,
		FileName:   filename,
		Status:     string(models.DocStatusProcessing),
		TaskID:     taskID,
	}))
}

// GetDocumentStatus 获取文档处理状态
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的文档ID", err.Error()))
		return
	}

	doc, err := h.status.GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewDocumentStatusResponse(doc)))
}

// ReprocessDocument 重新处理 ready 或 failed 的文档
// POST /api/documents/:id/reprocess
func (h *DocumentHandler) ReprocessDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的文档ID", err.Error()))
		return
	}

	ctx := c.Request.Context()
	doc, err := h.status.GetDocument(ctx, req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	// 提前拒绝处理中的文档，真正的状态切换在流水线中完成
	if err := h.status.ValidateStateTransition(doc.Status, models.DocStatusProcessing); err != nil {
		middleware.HandleError(c, err)
		return
	}

	taskID, err := h.dispatcher.Dispatch(ctx, doc.ID, true)
	if err != nil {
		middleware.HandleError(c, middleware.NewUnavailableError("无法提交处理任务", err.Error()))
		return
	}

	h.logger.WithField("doc_id", doc.ID).Info("Document queued for reprocessing")
	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.DocumentUploadResponse{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Status:     string(models.DocStatusProcessing),
		TaskID:     taskID,
	}))
}

// removeFile 登记失败时清理已保存的文件
func (h *DocumentHandler) removeFile(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.fileStorage.Delete(ctx, path); err != nil {
		h.logger.WithError(err).WithField("path", path).Warn("Failed to remove orphaned file")
	}
}
