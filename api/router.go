package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fyerfyer/doc-ingest/api/handler"
	"github.com/fyerfyer/doc-ingest/api/middleware"
	"github.com/gin-gonic/gin"
)

// HealthCheck 检查单个依赖是否可用
type HealthCheck func(ctx context.Context) error

// healthTimeout 单次健康检查的超时时间
const healthTimeout = 2 * time.Second

// SetupRouter 设置API路由
// taskHandler 为nil时不注册任务查询接口
func SetupRouter(
	docHandler *handler.DocumentHandler,
	taskHandler *handler.TaskHandler,
	checks map[string]HealthCheck,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.RequestBodyLog())

	api := router.Group("/api")
	{
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档状态 - GET /api/documents/:id/status
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)

			// 重新处理文档 - POST /api/documents/:id/reprocess
			docGroup.POST("/:id/reprocess", docHandler.ReprocessDocument)

			if taskHandler != nil {
				// 文档的任务列表 - GET /api/documents/:id/tasks
				docGroup.GET("/:id/tasks", taskHandler.GetDocumentTasks)
			}
		}

		if taskHandler != nil {
			// 任务状态 - GET /api/tasks/:id
			api.GET("/tasks/:id", taskHandler.GetTaskStatus)
		}

		// 健康检查 - GET /api/health
		api.GET("/health", healthHandler(checks))
	}

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))

		for name, check := range checks {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			err := check(ctx)
			cancel()

			if err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status": overall,
			"checks": results,
		})
	}
}
