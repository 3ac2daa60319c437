package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// IngestRunner 执行文档向量化
type IngestRunner interface {
	Run(ctx context.Context, docID string) error
	Reprocess(ctx context.Context, docID string) error
}

// IngestHandler 处理文档向量化任务
type IngestHandler struct {
	runner IngestRunner
	logger *logrus.Logger
}

// NewIngestHandler 创建文档向量化任务处理器
func NewIngestHandler(runner IngestRunner, logger *logrus.Logger) *IngestHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &IngestHandler{runner: runner, logger: logger}
}

// GetTaskTypes 实现Handler接口
func (h *IngestHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskIngestDocument}
}

// ProcessTask 实现Handler接口
func (h *IngestHandler) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	var payload IngestPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, err
	}
	if payload.DocumentID == "" {
		payload.DocumentID = task.DocumentID
	}
	if payload.DocumentID == "" {
		return nil, fmt.Errorf("%w: missing document id", ErrInvalidPayload)
	}

	log := h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": payload.DocumentID,
		"reprocess":   payload.Reprocess,
	})
	log.Info("Processing ingest task")

	start := time.Now()
	var err error
	if payload.Reprocess {
		err = h.runner.Reprocess(ctx, payload.DocumentID)
	} else {
		err = h.runner.Run(ctx, payload.DocumentID)
	}

	result := IngestResult{
		DocumentID: payload.DocumentID,
		Reprocess:  payload.Reprocess,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		log.WithError(err).Error("Ingest task failed")
		return result, err
	}

	log.WithField("duration_ms", result.DurationMs).Info("Ingest task completed")
	return result, nil
}
