package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin 运行模式
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig 日志配置，File 为空时只输出到标准输出
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型：local 或 minio
	Path      string `mapstructure:"path" validate:"required_if=Type local"`
	Bucket    string `mapstructure:"bucket" validate:"required_if=Type minio"`
	Endpoint  string `mapstructure:"endpoint" validate:"required_if=Type minio"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type         string        `mapstructure:"type" validate:"oneof=sqlite"`
	DSN          string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns int           `mapstructure:"max_idle_conns" validate:"min=0"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"oneof=tongyi openai ollama"`
	Model      string        `mapstructure:"model" validate:"required"`
	APIKey     string        `mapstructure:"api_key" validate:"required_unless=Provider ollama"` // 支持 ${ENV} 形式
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0"`
	Dimensions int           `mapstructure:"dimensions" validate:"min=0"`
}

// CacheConfig 嵌入结果缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Type     string        `mapstructure:"type" validate:"oneof=memory redis"`
	Address  string        `mapstructure:"address" validate:"required_if=Type redis"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// QueueConfig 任务队列配置，未启用时在进程内协程池中处理
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Enable true"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`
	Concurrency   int    `mapstructure:"concurrency" validate:"min=1"`
	Name          string `mapstructure:"name" validate:"required"`
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	MaxTokens     int           `mapstructure:"max_tokens" validate:"min=1"`
	OverlapTokens int           `mapstructure:"overlap_tokens" validate:"min=0,ltfield=MaxTokens"`
	PaceInterval  time.Duration `mapstructure:"pace_interval" validate:"min=0"` // 相邻两次嵌入调用的最小间隔，0 表示不限速
	PaceBurst     int           `mapstructure:"pace_burst" validate:"min=1"`
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"` // 进程内同时处理的文档数
	MaxUploadSize int64         `mapstructure:"max_upload_size" validate:"min=1"`
}

var validate = validator.New()

// Load 从文件和环境变量加载配置
// 配置文件不存在时使用默认值，环境变量以 SECTION_KEY 的形式覆盖配置项
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.WithField("path", v.ConfigFileUsed()).Info("Using config file")
	} else if errors.Is(err, fs.ErrNotExist) {
		logrus.WithField("path", configPath).Warn("Config file not found, using defaults")
	} else {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置项
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// processEnvironmentVariables 展开密钥类配置中的 ${ENV} 引用
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	} {
		*field = expandEnvRef(*field)
	}
}

// expandEnvRef 将 "${NAME}" 替换为环境变量的值，变量未设置时保持原样
func expandEnvRef(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// 存储
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "docingest")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)

	// 数据库
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/ingest.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "1h")

	// Embedding
	v.SetDefault("embed.provider", "tongyi")
	v.SetDefault("embed.model", "text-embedding-v3")
	v.SetDefault("embed.api_key", "${DASHSCOPE_API_KEY}")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 3)
	v.SetDefault("embed.dimensions", 1024)

	// 缓存
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "168h")

	// 队列
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.name", "default")

	// 流水线
	v.SetDefault("pipeline.max_tokens", 500)
	v.SetDefault("pipeline.overlap_tokens", 50)
	v.SetDefault("pipeline.pace_interval", "100ms")
	v.SetDefault("pipeline.pace_burst", 1)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_upload_size", 50<<20)
}
