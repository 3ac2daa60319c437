package handler

import (
	"context"

	"github.com/fyerfyer/doc-ingest/internal/services"
	"github.com/fyerfyer/doc-ingest/pkg/taskqueue"
)

// Dispatcher 将文档交给流水线处理
type Dispatcher interface {
	// Dispatch 提交处理请求，使用任务队列时返回任务ID
	Dispatch(ctx context.Context, docID string, reprocess bool) (string, error)
}

// QueueDispatcher 通过任务队列异步处理
type QueueDispatcher struct {
	queue taskqueue.Queue
}

// NewQueueDispatcher 创建基于任务队列的分发器
func NewQueueDispatcher(queue taskqueue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

// Dispatch 实现Dispatcher接口
func (d *QueueDispatcher) Dispatch(ctx context.Context, docID string, reprocess bool) (string, error) {
	return d.queue.Enqueue(ctx, taskqueue.TaskIngestDocument, docID, taskqueue.IngestPayload{
		DocumentID: docID,
		Reprocess:  reprocess,
	})
}

// PoolDispatcher 在本进程的协程池中处理
type PoolDispatcher struct {
	batch *services.BatchRunner
}

// NewPoolDispatcher 创建基于协程池的分发器
func NewPoolDispatcher(batch *services.BatchRunner) *PoolDispatcher {
	return &PoolDispatcher{batch: batch}
}

// Dispatch 实现Dispatcher接口
// 处理在请求结束后继续进行，因此不继承请求的取消信号
func (d *PoolDispatcher) Dispatch(ctx context.Context, docID string, reprocess bool) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if reprocess {
		return "", d.batch.SubmitReprocess(ctx, docID, nil)
	}
	return "", d.batch.Submit(ctx, docID, nil)
}
