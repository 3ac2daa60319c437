package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/doc-ingest/internal/database"
	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")

	// 替换全局DB为测试DB
	originalDB := database.DB
	database.DB = db

	cleanup := func() {
		database.DB = originalDB
	}
	return db, cleanup
}

func createDoc(t *testing.T, repo DocumentRepository, id string) *models.Document {
	doc := &models.Document{
		ID:       id,
		FileName: "test.pdf",
		FilePath: "2025/01/01/" + id + ".pdf",
		FileSize: 1024,
		Status:   models.DocStatusProcessing,
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	return doc
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		doc := createDoc(t, repo, "doc-1")

		saved, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.FileName, saved.FileName)
		assert.Equal(t, models.DocStatusProcessing, saved.Status)
		assert.False(t, saved.UploadedAt.IsZero(), "UploadedAt should be set by hook")
	})

	t.Run("empty id rejected", func(t *testing.T) {
		err := repo.Create(ctx, &models.Document{FileName: "x.pdf"})
		assert.Error(t, err)
	})

	t.Run("missing document", func(t *testing.T) {
		doc, err := repo.GetByID(ctx, "non-existing")
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)
		assert.Nil(t, doc)
	})
}

func TestDocumentRepository_StatusUpdates(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	ctx := context.Background()
	createDoc(t, repo, "doc-status")

	// 更新进度
	require.NoError(t, repo.UpdateProgress(ctx, "doc-status", models.StageEmbedding, 150))
	doc, err := repo.GetByID(ctx, "doc-status")
	require.NoError(t, err)
	assert.Equal(t, 100, doc.Progress, "progress should be clamped")
	assert.Equal(t, models.StageEmbedding, doc.CurrentStage)

	// 失败状态
	require.NoError(t, repo.UpdateStatus(ctx, "doc-status", models.DocStatusFailed, "boom"))
	doc, err = repo.GetByID(ctx, "doc-status")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.Equal(t, "boom", doc.Error)
	assert.NotNil(t, doc.ProcessedAt)

	// 重新进入处理中会清空上一次结果
	require.NoError(t, repo.UpdateStatus(ctx, "doc-status", models.DocStatusProcessing, ""))
	doc, err = repo.GetByID(ctx, "doc-status")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, doc.Status)
	assert.Empty(t, doc.Error)
	assert.Nil(t, doc.ProcessedAt)
	assert.Equal(t, 0, doc.Progress)

	// 就绪
	require.NoError(t, repo.MarkReady(ctx, "doc-status", 7))
	doc, err = repo.GetByID(ctx, "doc-status")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusReady, doc.Status)
	assert.Equal(t, 7, doc.ChunkCount)
	assert.Equal(t, 100, doc.Progress)

	// 更新不存在的文档
	err = repo.UpdateStatus(ctx, "missing", models.DocStatusFailed, "x")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestDocumentRepository_Chunks(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	ctx := context.Background()
	createDoc(t, repo, "doc-chunks")

	for i := 2; i >= 0; i-- {
		err := repo.InsertChunk(ctx, &models.DocumentChunk{
			DocumentID: "doc-chunks",
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk %d", i),
			PageNumber: models.PageNumberFor(i * 1500),
			Embedding:  pgvector.NewVector([]float32{float32(i), 0.5, -1}),
			Metadata:   models.NewChunkMetadata(i*1500, i*1500+100, 25),
		})
		require.NoError(t, err)
	}

	t.Run("list ordered by index", func(t *testing.T) {
		chunks, err := repo.ListChunks(ctx, "doc-chunks")
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, []float32{float32(i), 0.5, -1}, c.Embedding.Slice())

			meta, err := c.ParseMetadata()
			require.NoError(t, err)
			assert.Equal(t, i*1500, meta.CharStart)
			assert.Equal(t, i*1500+100, meta.CharEnd)
		}
		assert.Equal(t, 0, chunks[0].PageNumber)
		assert.Equal(t, 1, chunks[2].PageNumber)
	})

	t.Run("duplicate index rejected", func(t *testing.T) {
		err := repo.InsertChunk(ctx, &models.DocumentChunk{
			DocumentID: "doc-chunks",
			ChunkIndex: 1,
			Content:    "dup",
			Embedding:  pgvector.NewVector([]float32{1}),
		})
		assert.Error(t, err)
	})

	t.Run("count and delete", func(t *testing.T) {
		n, err := repo.CountChunks(ctx, "doc-chunks")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		deleted, err := repo.DeleteChunks(ctx, "doc-chunks")
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)

		n, err = repo.CountChunks(ctx, "doc-chunks")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("delete document removes chunks", func(t *testing.T) {
		createDoc(t, repo, "doc-del")
		require.NoError(t, repo.InsertChunk(ctx, &models.DocumentChunk{
			DocumentID: "doc-del", ChunkIndex: 0, Content: "x",
			Embedding: pgvector.NewVector([]float32{1}),
		}))

		require.NoError(t, repo.Delete(ctx, "doc-del"))
		_, err := repo.GetByID(ctx, "doc-del")
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)
		n, err := repo.CountChunks(ctx, "doc-del")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
