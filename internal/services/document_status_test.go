package services

import (
	"context"
	"testing"

	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/fyerfyer/doc-ingest/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDocumentStatusManager_BasicFlow 测试文档状态管理基本流程
func TestDocumentStatusManager_BasicFlow(t *testing.T) {
	repo := repository.NewDocumentRepositoryWithDB(setupTestDB(t))

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	statusManager := NewDocumentStatusManager(repo, logger)

	ctx := context.Background()
	docID := "test-doc-1"

	t.Run("register", func(t *testing.T) {
		doc := &models.Document{
			ID:       docID,
			FileName: "test.pdf",
			FilePath: "2025/01/01/test.pdf",
			FileSize: 1024,
			Status:   models.DocStatusReady, // 会被覆盖
		}
		require.NoError(t, statusManager.Register(ctx, doc))

		status, err := statusManager.GetStatus(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusProcessing, status)
	})

	t.Run("register duplicate", func(t *testing.T) {
		err := statusManager.Register(ctx, &models.Document{ID: docID, FileName: "x.pdf", FilePath: "x"})
		assert.ErrorIs(t, err, models.ErrPersistence)
	})

	t.Run("update progress", func(t *testing.T) {
		require.NoError(t, statusManager.UpdateProgress(ctx, docID, models.StageEmbedding, 50))

		doc, err := statusManager.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, 50, doc.Progress)
		assert.Equal(t, models.StageEmbedding, doc.CurrentStage)
	})

	t.Run("mark as ready", func(t *testing.T) {
		require.NoError(t, statusManager.MarkAsReady(ctx, docID, 7))

		doc, err := statusManager.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusReady, doc.Status)
		assert.Equal(t, 7, doc.ChunkCount)
		assert.Equal(t, 100, doc.Progress)
		assert.NotNil(t, doc.ProcessedAt)
	})

	t.Run("back to processing", func(t *testing.T) {
		require.NoError(t, statusManager.MarkAsProcessing(ctx, docID))

		doc, err := statusManager.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusProcessing, doc.Status)
		assert.Zero(t, doc.Progress)
		assert.Zero(t, doc.ChunkCount)
		assert.Nil(t, doc.ProcessedAt)
	})

	t.Run("processing twice is rejected", func(t *testing.T) {
		err := statusManager.MarkAsProcessing(ctx, docID)
		assert.ErrorIs(t, err, models.ErrInvalidDocumentStatus)
	})

	t.Run("mark as failed", func(t *testing.T) {
		require.NoError(t, statusManager.MarkAsFailed(ctx, docID, "something broke"))

		doc, err := statusManager.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusFailed, doc.Status)
		assert.Equal(t, "something broke", doc.Error)

		require.NoError(t, statusManager.MarkAsProcessing(ctx, docID))
		doc, err = statusManager.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Empty(t, doc.Error, "error is cleared when processing restarts")
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := statusManager.GetStatus(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)

		assert.ErrorIs(t, statusManager.MarkAsProcessing(ctx, "missing"), models.ErrDocumentNotFound)
		assert.ErrorIs(t, statusManager.MarkAsFailed(ctx, "missing", "x"), models.ErrDocumentNotFound)
	})
}

// TestDocumentStatusManager_ValidateStateTransition 测试状态转换规则
func TestDocumentStatusManager_ValidateStateTransition(t *testing.T) {
	m := NewDocumentStatusManager(nil, nil)

	tests := []struct {
		from, to models.DocumentStatus
		valid    bool
	}{
		{models.DocStatusProcessing, models.DocStatusReady, true},
		{models.DocStatusProcessing, models.DocStatusFailed, true},
		{models.DocStatusFailed, models.DocStatusProcessing, true},
		{models.DocStatusReady, models.DocStatusProcessing, true},
		{models.DocStatusProcessing, models.DocStatusProcessing, false},
		{models.DocStatusReady, models.DocStatusFailed, false},
		{models.DocStatusFailed, models.DocStatusReady, false},
		{models.DocumentStatus("unknown"), models.DocStatusReady, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := m.ValidateStateTransition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidDocumentStatus)
			}
		})
	}
}
