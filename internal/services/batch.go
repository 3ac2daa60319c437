package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// DefaultBatchWorkers 默认并发处理的文档数
const DefaultBatchWorkers = 4

// Runner 处理单个文档
type Runner interface {
	Run(ctx context.Context, docID string) error
}

// Reprocessor 清除旧结果后重新处理文档
type Reprocessor interface {
	Reprocess(ctx context.Context, docID string) error
}

// BatchResult 单个文档的处理结果
type BatchResult struct {
	DocumentID string
	Err        error
}

// BatchRunner 使用协程池并发处理多个文档
// 每个文档内部仍然逐块顺序处理
type BatchRunner struct {
	runner Runner
	pool   *ants.Pool
	logger *logrus.Logger
}

// NewBatchRunner 创建批量处理器，workers 为同时处理的文档上限
func NewBatchRunner(runner Runner, workers int, logger *logrus.Logger) (*BatchRunner, error) {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	if logger == nil {
		logger = logrus.New()
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &BatchRunner{
		runner: runner,
		pool:   pool,
		logger: logger,
	}, nil
}

// RunAll 处理所有文档并按输入顺序返回结果
// 某个文档失败不影响其他文档
func (b *BatchRunner) RunAll(ctx context.Context, docIDs []string) []BatchResult {
	results := make([]BatchResult, len(docIDs))
	var wg sync.WaitGroup

	for i, id := range docIDs {
		results[i].DocumentID = id
		wg.Add(1)

		i, id := i, id
		if err := b.pool.Submit(func() {
			defer wg.Done()
			results[i].Err = b.runner.Run(ctx, id)
		}); err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("submit document %s: %w", id, err)
		}
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	b.logger.WithFields(logrus.Fields{
		"total":  len(docIDs),
		"failed": failed,
	}).Info("Batch processing finished")

	return results
}

// Submit 在后台处理单个文档，done 可以为 nil
func (b *BatchRunner) Submit(ctx context.Context, docID string, done func(error)) error {
	return b.submit(docID, func() error { return b.runner.Run(ctx, docID) }, done)
}

// SubmitReprocess 在后台重新处理单个文档
func (b *BatchRunner) SubmitReprocess(ctx context.Context, docID string, done func(error)) error {
	r, ok := b.runner.(Reprocessor)
	if !ok {
		return fmt.Errorf("runner %T does not support reprocessing", b.runner)
	}
	return b.submit(docID, func() error { return r.Reprocess(ctx, docID) }, done)
}

func (b *BatchRunner) submit(docID string, fn func() error, done func(error)) error {
	return b.pool.Submit(func() {
		err := fn()
		if err != nil {
			b.logger.WithField("doc_id", docID).WithError(err).Warn("Background processing failed")
		}
		if done != nil {
			done(err)
		}
	})
}

// Running 返回正在处理的文档数
func (b *BatchRunner) Running() int {
	return b.pool.Running()
}

// Release 释放协程池
func (b *BatchRunner) Release() {
	b.pool.Release()
}
