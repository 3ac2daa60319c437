package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fyerfyer/doc-ingest/api/middleware"
	"github.com/fyerfyer/doc-ingest/api/model"
	"github.com/fyerfyer/doc-ingest/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理任务相关的API请求
type TaskHandler struct {
	queue  taskqueue.Queue
	logger *logrus.Logger
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// taskDetail 任务详情，附带解析后的结果
type taskDetail struct {
	*taskqueue.TaskInfo
	Result json.RawMessage `json:"result,omitempty"`
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	var req model.TaskIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的任务ID", err.Error()))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(taskDetail{
		TaskInfo: taskqueue.NewTaskInfo(task),
		Result:   task.Result,
	}))
}

// GetDocumentTasks 获取文档相关的所有任务
// GET /api/documents/:id/tasks
func (h *TaskHandler) GetDocumentTasks(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的文档ID", err.Error()))
		return
	}

	tasks, err := h.queue.GetTasksByDocument(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("document_id", req.ID).Error("Failed to get document tasks")
		middleware.HandleError(c, err)
		return
	}

	infos := make([]*taskqueue.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = taskqueue.NewTaskInfo(task)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentTasksResponse{
		DocumentID: req.ID,
		Tasks:      infos,
	}))
}
