package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Queue 文档处理任务队列
// 任务记录与投递分开保存，记录在任务结束后仍可查询
type Queue interface {
	// Enqueue 投递任务并返回任务ID
	Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error)

	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetTasksByDocument 按创建时间升序返回文档的任务
	GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error)

	// WaitForTask 阻塞到任务结束，timeout为0表示只受ctx约束
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// DeleteTask 删除任务记录，尚未执行的任务同时从队列中撤回
	DeleteTask(ctx context.Context, taskID string) error

	// Ping 检查后端连接
	Ping(ctx context.Context) error

	Close() error
}

// Handler 处理某几类任务，返回值序列化后写入任务结果
type Handler interface {
	ProcessTask(ctx context.Context, task *Task) (interface{}, error)
	GetTaskTypes() []TaskType
}

// Worker 消费队列并把任务分发给已注册的Handler
type Worker interface {
	RegisterHandler(handler Handler)
	Start() error
	// Stop 等待执行中的任务结束后返回
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int            // worker 同时执行的任务数
	Queue         string         // 入队使用的队列名
	Queues        map[string]int // worker 消费的队列及其优先级，为空时只消费 Queue
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		Concurrency: 4,
		Queue:       "default",
	}
}

// withDefaults 返回补全默认值后的副本，不修改调用方的配置
func (c *Config) withDefaults() *Config {
	defaults := DefaultConfig()
	if c == nil {
		return defaults
	}

	cfg := *c
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = defaults.RedisAddr
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Queue == "" {
		cfg.Queue = defaults.Queue
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = map[string]int{cfg.Queue: 1}
	}
	return &cfg
}

// TaskInfo 返回给客户端的任务信息，不含载荷
type TaskInfo struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	DocumentID  string     `json:"document_id"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"` // 开始到结束的耗时，任务未结束时为0
}

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	info := &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		DocumentID:  task.DocumentID,
		Status:      task.Status,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
	}
	if task.StartedAt != nil && task.CompletedAt != nil {
		info.DurationMs = task.CompletedAt.Sub(*task.StartedAt).Milliseconds()
	}
	return info
}

// TaskError 任务错误类型
type TaskError string

func (e TaskError) Error() string {
	return string(e)
}

const (
	ErrTaskNotFound   = TaskError("task not found")
	ErrTaskTimeout    = TaskError("task timed out")
	ErrInvalidPayload = TaskError("invalid task payload")
)

// MarshalPayload 将任务载荷序列化为JSON，nil 序列化为空对象
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 解析任务载荷，失败时返回包装了 ErrInvalidPayload 的错误
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// Factory 队列工厂函数类型
type Factory func(cfg *Config) (Queue, error)

var (
	factoriesMu    sync.RWMutex
	queueFactories = make(map[string]Factory)
)

// RegisterQueueFactory 注册队列实现
func RegisterQueueFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	queueFactories[name] = factory
}

// NewQueue 根据名称创建队列实例
func NewQueue(name string, cfg *Config) (Queue, error) {
	factoriesMu.RLock()
	factory, ok := queueFactories[name]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	return factory(cfg)
}
