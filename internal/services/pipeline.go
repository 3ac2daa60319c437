package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/doc-ingest/internal/document"
	"github.com/fyerfyer/doc-ingest/internal/embedding"
	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/fyerfyer/doc-ingest/internal/repository"
	"github.com/fyerfyer/doc-ingest/pkg/storage"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
)

// 进度区间：前置阶段占 0-10，向量化占 10-95
const (
	progressExtracting   = 5
	progressChunking     = 10
	progressEmbeddingEnd = 95
)

// failTimeout 标记失败时使用的超时时间
const failTimeout = 5 * time.Second

// Progress 单个文档的处理进度
type Progress struct {
	DocumentID  string
	Stage       models.ProcessStage
	ChunksDone  int
	ChunksTotal int
	Percent     int
}

// EmbeddingPipeline 文档向量化流水线
// 下载 -> 提取 -> 分块 -> 逐块向量化并保存 -> 标记就绪
type EmbeddingPipeline struct {
	repo       repository.DocumentRepository
	storage    storage.Storage
	extractor  document.Extractor
	embedder   embedding.Client
	status     *DocumentStatusManager
	chunker    *document.Chunker
	pacer      Pacer
	onProgress func(Progress)
	logger     *logrus.Logger
}

// PipelineOption 流水线配置选项
type PipelineOption func(*EmbeddingPipeline)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) PipelineOption {
	return func(p *EmbeddingPipeline) {
		p.logger = logger
	}
}

// WithPacer 设置向量化请求的节奏控制
func WithPacer(pacer Pacer) PipelineOption {
	return func(p *EmbeddingPipeline) {
		p.pacer = pacer
	}
}

// WithChunkOptions 设置分块参数
func WithChunkOptions(opts document.ChunkOptions) PipelineOption {
	return func(p *EmbeddingPipeline) {
		p.chunker = document.NewChunker(opts)
	}
}

// WithProgressCallback 设置进度回调
func WithProgressCallback(fn func(Progress)) PipelineOption {
	return func(p *EmbeddingPipeline) {
		p.onProgress = fn
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(status *DocumentStatusManager) PipelineOption {
	return func(p *EmbeddingPipeline) {
		p.status = status
	}
}

// NewEmbeddingPipeline 创建向量化流水线
func NewEmbeddingPipeline(
	repo repository.DocumentRepository,
	store storage.Storage,
	extractor document.Extractor,
	embedder embedding.Client,
	opts ...PipelineOption,
) *EmbeddingPipeline {
	p := &EmbeddingPipeline{
		repo:      repo,
		storage:   store,
		extractor: extractor,
		embedder:  embedder,
		chunker:   document.NewChunker(document.DefaultChunkOptions()),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logrus.New()
		p.logger.SetLevel(logrus.InfoLevel)
	}
	if p.pacer == nil {
		p.pacer = NewRatePacer(DefaultPaceInterval, 1)
	}
	if p.status == nil {
		p.status = NewDocumentStatusManager(repo, p.logger)
	}

	return p
}

// StatusManager 返回流水线使用的状态管理器
func (p *EmbeddingPipeline) StatusManager() *DocumentStatusManager {
	return p.status
}

// Run 处理一个处于 processing 状态的文档
// 任一步骤失败时尽力将文档标记为 failed，并返回带分类的原始错误
// 已保存的分块不会回滚，重新处理请使用 Reprocess
func (p *EmbeddingPipeline) Run(ctx context.Context, docID string) error {
	log := p.logger.WithField("doc_id", docID)
	start := time.Now()

	doc, err := p.repo.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			// 文档不存在时没有可标记的记录
			log.Warn("Document not found, nothing to process")
			return err
		}
		return p.fail(ctx, docID, fmt.Errorf("%w: load document: %w", models.ErrPersistence, err))
	}

	log = log.WithField("file", doc.FileName)
	log.Info("Starting document processing")

	p.report(ctx, Progress{DocumentID: docID, Stage: models.StageDownloading})
	data, err := p.download(ctx, doc.FilePath)
	if err != nil {
		return p.fail(ctx, docID, err)
	}
	log.WithField("bytes", len(data)).Debug("Document downloaded")

	p.report(ctx, Progress{DocumentID: docID, Stage: models.StageExtracting, Percent: progressExtracting})
	text, err := p.extractor.Extract(ctx, data)
	if err != nil {
		if !errors.Is(err, models.ErrExtraction) {
			err = fmt.Errorf("%w: %w", models.ErrExtraction, err)
		}
		return p.fail(ctx, docID, err)
	}
	log.WithField("chars", len(text)).Debug("Text extracted")

	p.report(ctx, Progress{DocumentID: docID, Stage: models.StageChunking, Percent: progressChunking})
	chunks := p.chunker.Chunk(text)
	log.WithField("chunks", len(chunks)).Info("Document chunked")

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, docID, fmt.Errorf("processing cancelled at chunk %d: %w", i, err))
		}

		if err := p.pacer.Wait(ctx); err != nil {
			return p.fail(ctx, docID, fmt.Errorf("processing cancelled at chunk %d: %w", i, err))
		}

		vector, err := p.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			if embedding.IsRateLimited(err) {
				if r, ok := p.pacer.(RateLimitRecorder); ok {
					r.RecordRateLimit(0)
				}
			}
			return p.fail(ctx, docID, fmt.Errorf("%w: chunk %d: %w", models.ErrEmbeddingProvider, i, err))
		}

		record := &models.DocumentChunk{
			DocumentID: docID,
			ChunkIndex: i,
			Content:    chunk.Content,
			PageNumber: models.PageNumberFor(chunk.CharStart),
			Embedding:  pgvector.NewVector(vector),
			Metadata:   models.NewChunkMetadata(chunk.CharStart, chunk.CharEnd, chunk.TokenCount),
		}
		if err := p.repo.InsertChunk(ctx, record); err != nil {
			return p.fail(ctx, docID, fmt.Errorf("%w: chunk %d: %w", models.ErrPersistence, i, err))
		}

		p.report(ctx, Progress{
			DocumentID:  docID,
			Stage:       models.StageEmbedding,
			ChunksDone:  i + 1,
			ChunksTotal: len(chunks),
			Percent:     embeddingPercent(i+1, len(chunks)),
		})
	}

	if err := p.status.MarkAsReady(ctx, docID, len(chunks)); err != nil {
		return p.fail(ctx, docID, fmt.Errorf("%w: mark ready: %w", models.ErrPersistence, err))
	}
	if p.onProgress != nil {
		p.onProgress(Progress{
			DocumentID:  docID,
			Stage:       models.StageCompleted,
			ChunksDone:  len(chunks),
			ChunksTotal: len(chunks),
			Percent:     100,
		})
	}

	log.WithFields(logrus.Fields{
		"chunks":   len(chunks),
		"duration": time.Since(start).String(),
	}).Info("Document processing completed")
	return nil
}

// Reprocess 清除已有分块后重新处理文档
// 只允许 ready 或 failed 的文档重新处理
func (p *EmbeddingPipeline) Reprocess(ctx context.Context, docID string) error {
	if err := p.status.MarkAsProcessing(ctx, docID); err != nil {
		return err
	}

	deleted, err := p.repo.DeleteChunks(ctx, docID)
	if err != nil {
		return p.fail(ctx, docID, fmt.Errorf("%w: delete chunks: %w", models.ErrPersistence, err))
	}

	p.logger.WithFields(logrus.Fields{
		"doc_id":         docID,
		"deleted_chunks": deleted,
	}).Info("Reprocessing document")

	return p.Run(ctx, docID)
}

// download 读取文档的原始内容，空内容也视为存储错误
func (p *EmbeddingPipeline) download(ctx context.Context, path string) ([]byte, error) {
	reader, err := p.storage.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", models.ErrStorage, path, err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrStorage, path, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", models.ErrStorage, path)
	}
	return buf.Bytes(), nil
}

// fail 尽力标记文档失败并返回原始错误
// 标记失败只记录日志，不会覆盖原始错误
func (p *EmbeddingPipeline) fail(ctx context.Context, docID string, cause error) error {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()

	if err := p.status.MarkAsFailed(markCtx, docID, cause.Error()); err != nil {
		p.logger.WithFields(logrus.Fields{
			"doc_id": docID,
			"cause":  cause.Error(),
		}).WithError(err).Error("Failed to mark document as failed")
	}
	return cause
}

// report 记录进度，写库失败不影响处理
func (p *EmbeddingPipeline) report(ctx context.Context, progress Progress) {
	if err := p.status.UpdateProgress(ctx, progress.DocumentID, progress.Stage, progress.Percent); err != nil {
		p.logger.WithField("doc_id", progress.DocumentID).WithError(err).Warn("Failed to update progress")
	}
	if p.onProgress != nil {
		p.onProgress(progress)
	}
}

func embeddingPercent(done, total int) int {
	if total == 0 {
		return progressEmbeddingEnd
	}
	return progressChunking + done*(progressEmbeddingEnd-progressChunking)/total
}
