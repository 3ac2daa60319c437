package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/doc-ingest/api"
	"github.com/fyerfyer/doc-ingest/api/handler"
	"github.com/fyerfyer/doc-ingest/api/middleware"
	ingestconfig "github.com/fyerfyer/doc-ingest/config"
	"github.com/fyerfyer/doc-ingest/internal/cache"
	"github.com/fyerfyer/doc-ingest/internal/database"
	"github.com/fyerfyer/doc-ingest/internal/document"
	"github.com/fyerfyer/doc-ingest/internal/embedding"
	"github.com/fyerfyer/doc-ingest/internal/repository"
	"github.com/fyerfyer/doc-ingest/internal/services"
	"github.com/fyerfyer/doc-ingest/pkg/storage"
	"github.com/fyerfyer/doc-ingest/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 进程角色
const (
	roleAll    = "all"    // HTTP服务和队列工作者
	roleAPI    = "api"    // 只提供HTTP服务
	roleWorker = "worker" // 只消费队列任务
)

// flags 命令行参数，非零值覆盖配置文件
type flags struct {
	ConfigFile string
	Role       string
	Port       int
	Mode       string
	LogLevel   string
}

func main() {
	f := parseFlags()

	cfg, err := ingestconfig.Load(f.ConfigFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, f)

	gin.SetMode(cfg.Server.Mode)

	logger := setupLogger(cfg.Log)
	logger.WithField("role", f.Role).Info("Starting document ingestion service...")

	// 初始化数据库
	if err := database.Setup(databaseConfig(cfg.Database), logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 创建文件存储服务
	fileStorage, err := storage.NewStorage(storageConfig(cfg.Storage))
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建嵌入客户端
	embedder, closeCache, err := setupEmbedding(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}
	defer closeCache()

	repo := repository.NewDocumentRepositoryWithDB(database.MustDB())

	// 同一进程内所有文档共享同一个限速器
	pipeline := services.NewEmbeddingPipeline(
		repo,
		fileStorage,
		document.NewPDFExtractor(logger),
		embedder,
		services.WithLogger(logger),
		services.WithPacer(services.NewRatePacer(cfg.Pipeline.PaceInterval, cfg.Pipeline.PaceBurst)),
		services.WithChunkOptions(document.ChunkOptions{
			MaxTokens:     cfg.Pipeline.MaxTokens,
			OverlapTokens: cfg.Pipeline.OverlapTokens,
		}),
	)

	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := database.MustDB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	// 初始化任务队列（如果启用）
	var queue *taskqueue.RedisQueue
	if cfg.Queue.Enable {
		queueCfg := queueConfig(cfg.Queue)
		queue, err = taskqueue.NewRedisQueueWithLogger(queueCfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		checks["queue"] = queue.Ping
		logger.Info("Task queue initialized successfully")

		if f.Role != roleAPI {
			worker := taskqueue.NewRedisWorker(queue, queueCfg)
			worker.RegisterHandler(taskqueue.NewIngestHandler(pipeline, logger))
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start queue worker: %v", err)
			}
			defer worker.Stop()
			logger.WithField("concurrency", queueCfg.Concurrency).Info("Queue worker started")
		}
	} else if f.Role == roleWorker {
		logger.Fatal("Worker role requires queue.enable")
	}

	var srv *http.Server
	if f.Role != roleWorker {
		var dispatcher handler.Dispatcher
		var taskHandler *handler.TaskHandler
		if queue != nil {
			dispatcher = handler.NewQueueDispatcher(queue)
			taskHandler = handler.NewTaskHandler(queue)
			logger.Info("Document processing will use async task queue")
		} else {
			batch, err := services.NewBatchRunner(pipeline, cfg.Pipeline.Concurrency, logger)
			if err != nil {
				logger.Fatalf("Failed to create worker pool: %v", err)
			}
			defer batch.Release()
			dispatcher = handler.NewPoolDispatcher(batch)
			logger.WithField("workers", cfg.Pipeline.Concurrency).Info("Document processing will use in-process worker pool")
		}

		docHandler := handler.NewDocumentHandler(pipeline.StatusManager(), fileStorage, dispatcher, cfg.Pipeline.MaxUploadSize)
		r := api.SetupRouter(docHandler, taskHandler, checks)

		srv = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      r,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		go func() {
			logger.Infof("Server is running on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("Failed to start server: %v", err)
			}
		}()
	}

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Server forced to shutdown")
		}
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	f := flags{}

	flag.StringVar(&f.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.StringVar(&f.Role, "role", roleAll, "Process role (all/api/worker)")
	flag.IntVar(&f.Port, "port", 0, "Server port, overrides server.port")
	flag.StringVar(&f.Mode, "mode", "", "Run mode (debug/release), overrides server.mode")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug/info/warn/error), overrides log.level")

	flag.Parse()

	switch f.Role {
	case roleAll, roleAPI, roleWorker:
	default:
		logrus.Fatalf("Unknown role %q", f.Role)
	}
	return f
}

// applyFlags 用命令行上明确设置的参数覆盖配置文件
func applyFlags(cfg *ingestconfig.Config, f flags) {
	if f.Port > 0 {
		cfg.Server.Port = f.Port
	}
	if f.Mode != "" {
		cfg.Server.Mode = f.Mode
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
}

// setupLogger 设置日志系统，配置了文件时同时写入按大小轮转的日志文件
func setupLogger(cfg ingestconfig.LogConfig) *logrus.Logger {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	if cfg.File != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}))
	}

	return logger
}

// setupEmbedding 创建嵌入客户端，启用缓存时包装一层缓存
// 返回的关闭函数释放缓存持有的连接
func setupEmbedding(cfg *ingestconfig.Config, logger *logrus.Logger) (embedding.Client, func(), error) {
	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithTimeout(cfg.Embed.Timeout),
		embedding.WithMaxRetries(cfg.Embed.MaxRetries),
		embedding.WithDimensions(cfg.Embed.Dimensions),
	}
	if cfg.Embed.Endpoint != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.Embed.Endpoint))
	}

	client, err := embedding.NewClient(cfg.Embed.Provider, opts...)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Cache.Enable {
		return client, func() {}, nil
	}

	c, err := cache.NewCache(cacheConfig(cfg.Cache))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	logger.WithField("type", cfg.Cache.Type).Info("Embedding cache enabled")

	closeFn := func() {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close cache")
			}
		}
	}
	return embedding.NewCachedClient(client, c, cfg.Cache.TTL, logger), closeFn, nil
}

func databaseConfig(cfg ingestconfig.DatabaseConfig) *database.Config {
	return &database.Config{
		Type:         cfg.Type,
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		MaxLifetime:  cfg.MaxLifetime,
	}
}

func storageConfig(cfg ingestconfig.StorageConfig) storage.Config {
	return storage.Config{
		Type:  cfg.Type,
		Local: storage.LocalConfig{Path: cfg.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		},
	}
}

func cacheConfig(cfg ingestconfig.CacheConfig) cache.Config {
	c := cache.DefaultConfig()
	c.Type = cfg.Type
	c.RedisAddr = cfg.Address
	c.RedisPassword = cfg.Password
	c.RedisDB = cfg.DB
	if cfg.TTL > 0 {
		c.DefaultTTL = cfg.TTL
	}
	return c
}

func queueConfig(cfg ingestconfig.QueueConfig) *taskqueue.Config {
	c := taskqueue.DefaultConfig()
	c.RedisAddr = cfg.RedisAddr
	c.RedisPassword = cfg.RedisPassword
	c.RedisDB = cfg.RedisDB
	c.Concurrency = cfg.Concurrency
	c.Queue = cfg.Name
	c.Queues = map[string]int{cfg.Name: 1}
	return c
}
