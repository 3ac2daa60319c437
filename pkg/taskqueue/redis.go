package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// 任务键前缀
	taskKeyPrefix = "task:"
	// 文档任务集合键前缀
	documentTasksKeyPrefix = "document_tasks:"
	// 任务状态变更的发布频道前缀
	taskStatusChannelPrefix = "task_status:"
	// 默认任务过期时间（7天）
	defaultTaskExpiry = 7 * 24 * time.Hour
	// WaitForTask 的轮询间隔，防止错过发布消息
	waitPollInterval = time.Second
)

// RedisQueue 基于asynq的任务队列
// 任务记录单独保存在Redis中，asynq只负责投递
type RedisQueue struct {
	client      *asynq.Client    // 用于添加任务
	inspector   *asynq.Inspector // 用于从队列中删除任务
	redisClient *redis.Client    // 任务记录存储
	cfg         *Config
	logger      *logrus.Logger
}

// NewRedisQueue 创建Redis任务队列实例
func NewRedisQueue(cfg *Config) (*RedisQueue, error) {
	return NewRedisQueueWithLogger(cfg, nil)
}

// NewRedisQueueWithLogger 使用指定日志记录器创建队列
func NewRedisQueueWithLogger(cfg *Config, logger *logrus.Logger) (*RedisQueue, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	opt := redisOpt(cfg)
	return &RedisQueue{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

func redisOpt(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Enqueue 将任务加入队列
// 向量化失败时文档已被标记为 failed，重试只会重复写入分块，因此任务不重试
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		DocumentID: documentID,
		Status:     StatusPending,
		Payload:    payloadBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := q.saveTask(ctx, task); err != nil {
		return "", err
	}

	_, err = q.client.EnqueueContext(ctx,
		asynq.NewTask(string(taskType), []byte(task.ID)),
		asynq.TaskID(task.ID),
		asynq.Queue(q.cfg.Queue),
		asynq.MaxRetry(0),
	)
	if err != nil {
		q.removeTask(ctx, task)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   taskType,
		"document_id": documentID,
	}).Info("Task enqueued successfully")

	return task.ID, nil
}

// GetTask 获取任务信息
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}
	return &task, nil
}

// GetTasksByDocument 获取文档相关的所有任务
func (q *RedisQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	taskIDs, err := q.redisClient.SMembers(ctx, documentTasksKeyPrefix+documentID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				// 任务可能已过期
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// WaitForTask 等待任务结束
// 订阅状态频道，同时定期轮询
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pubsub := q.redisClient.Subscribe(ctx, taskStatusChannelPrefix+taskID)
	defer pubsub.Close()
	updates := pubsub.Channel()

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrTaskTimeout
			}
			return nil, err
		}
		if task.Done() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-updates:
		case <-ticker.C:
		}
	}
}

// UpdateTaskStatus 更新任务状态并发布通知
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	switch status {
	case StatusProcessing:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case StatusCompleted, StatusFailed:
		task.CompletedAt = &now
	}

	if result != nil {
		resultBytes, err := MarshalPayload(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = resultBytes
	}
	if errMsg != "" {
		task.Error = errMsg
	}

	if err := q.saveTask(ctx, task); err != nil {
		return err
	}

	if err := q.redisClient.Publish(ctx, taskStatusChannelPrefix+taskID, string(status)).Err(); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to publish task update")
	}
	return nil
}

// DeleteTask 删除任务记录，尚未执行的任务同时从队列中移除
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := q.removeTask(ctx, task); err != nil {
		return err
	}

	if task.Status == StatusPending {
		if err := q.inspector.DeleteTask(q.cfg.Queue, taskID); err != nil {
			q.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to delete task from asynq queue")
		}
	}
	return nil
}

// Ping 检查Redis连接，用于健康检查
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.redisClient.Ping(ctx).Err()
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redisClient.Close())
}

// saveTask 保存任务记录并加入文档任务集合
func (q *RedisQueue) saveTask(ctx context.Context, task *Task) error {
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	docKey := documentTasksKeyPrefix + task.DocumentID
	_, err = q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKeyPrefix+task.ID, taskData, defaultTaskExpiry)
		if task.DocumentID != "" {
			pipe.SAdd(ctx, docKey, task.ID)
			pipe.Expire(ctx, docKey, defaultTaskExpiry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task data: %w", err)
	}
	return nil
}

func (q *RedisQueue) removeTask(ctx context.Context, task *Task) error {
	_, err := q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if task.DocumentID != "" {
			pipe.SRem(ctx, documentTasksKeyPrefix+task.DocumentID, task.ID)
		}
		pipe.Del(ctx, taskKeyPrefix+task.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

var (
	_ Queue  = (*RedisQueue)(nil)
	_ Worker = (*RedisWorker)(nil)
)

// RedisWorker 基于asynq服务端的工作者
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建Redis工作者
func NewRedisWorker(queue *RedisQueue, cfg *Config) *RedisWorker {
	if cfg == nil {
		cfg = queue.cfg
	}
	cfg = cfg.withDefaults()

	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		Logger:      queue.logger,
	})

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 按处理器声明的类型注册
func (w *RedisWorker) RegisterHandler(handler Handler) {
	for _, taskType := range handler.GetTaskTypes() {
		w.handlers[taskType] = handler
	}
}

// Start 启动工作者
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()
	for taskType, handler := range w.handlers {
		mux.HandleFunc(string(taskType), w.handlerFunc(handler))
		w.logger.WithField("task_type", taskType).Info("Registered handler for task type")
	}
	return w.server.Start(mux)
}

// Stop 停止工作者，等待正在执行的任务结束
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// handlerFunc 将Handler包装为asynq处理函数，并维护任务记录的状态
func (w *RedisWorker) handlerFunc(h Handler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		taskID := string(t.Payload())
		log := w.logger.WithField("task_id", taskID)

		task, err := w.queue.GetTask(ctx, taskID)
		if err != nil {
			log.WithError(err).Error("Failed to get task info")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
			log.WithError(err).Error("Failed to update task status to processing")
		}

		result, err := h.ProcessTask(ctx, task)

		// 任务上下文可能已取消，状态仍需写回
		updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err != nil {
			if updateErr := w.queue.UpdateTaskStatus(updateCtx, taskID, StatusFailed, result, err.Error()); updateErr != nil {
				log.WithError(updateErr).Error("Failed to update task status after failure")
			}
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		if err := w.queue.UpdateTaskStatus(updateCtx, taskID, StatusCompleted, result, ""); err != nil {
			log.WithError(err).Error("Failed to update task status after completion")
		}
		return nil
	}
}

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		q, err := NewRedisQueue(cfg)
		if err != nil {
			return nil, err
		}
		return q, nil
	})
}
