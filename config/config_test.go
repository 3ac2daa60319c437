package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "tongyi", cfg.Embed.Provider)
	assert.Equal(t, "sk-test", cfg.Embed.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Embed.Timeout)
	assert.Equal(t, 500, cfg.Pipeline.MaxTokens)
	assert.Equal(t, 50, cfg.Pipeline.OverlapTokens)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.PaceInterval)
	assert.Equal(t, int64(50<<20), cfg.Pipeline.MaxUploadSize)
	assert.Equal(t, 168*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Queue.Enable)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("MY_EMBED_KEY", "sk-from-env")

	path := writeConfig(t, `
server:
  port: 9090
  mode: debug
log:
  level: debug
  file: logs/ingest.log
embed:
  provider: openai
  model: text-embedding-3-small
  api_key: ${MY_EMBED_KEY}
queue:
  enable: true
  redis_addr: redis:6379
  concurrency: 8
pipeline:
  max_tokens: 200
  overlap_tokens: 20
  pace_interval: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "logs/ingest.log", cfg.Log.File)
	assert.Equal(t, "openai", cfg.Embed.Provider)
	assert.Equal(t, "sk-from-env", cfg.Embed.APIKey)
	assert.True(t, cfg.Queue.Enable)
	assert.Equal(t, "redis:6379", cfg.Queue.RedisAddr)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.Equal(t, 200, cfg.Pipeline.MaxTokens)
	assert.Equal(t, 20, cfg.Pipeline.OverlapTokens)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.PaceInterval)
	// 未出现在文件中的项保留默认值
	assert.Equal(t, "local", cfg.Storage.Type)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	t.Setenv("PIPELINE_MAX_TOKENS", "300")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Pipeline.MaxTokens)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "overlap not below max tokens",
			content: `
pipeline:
  max_tokens: 50
  overlap_tokens: 50
`,
			want: "OverlapTokens",
		},
		{
			name: "unknown storage type",
			content: `
storage:
  type: s3
`,
			want: "Storage.Type",
		},
		{
			name: "minio without endpoint",
			content: `
storage:
  type: minio
`,
			want: "Storage.Endpoint",
		},
		{
			name: "unknown embed provider",
			content: `
embed:
  provider: unknown
`,
			want: "Embed.Provider",
		},
		{
			name:    "malformed yaml",
			content: "server: [",
			want:    "failed to read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_APIKey(t *testing.T) {
	t.Run("ollama needs no key", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
embed:
  provider: ollama
  model: nomic-embed-text
  api_key: ""
`))
		require.NoError(t, err)
		assert.Empty(t, cfg.Embed.APIKey)
	})

	t.Run("openai requires key", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
embed:
  provider: openai
  api_key: ""
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Embed.APIKey")
	})
}

func TestExpandEnvRef(t *testing.T) {
	t.Setenv("SOME_SECRET", "value")

	assert.Equal(t, "value", expandEnvRef("${SOME_SECRET}"))
	assert.Equal(t, "${UNSET_SECRET_FOR_TEST}", expandEnvRef("${UNSET_SECRET_FOR_TEST}"))
	assert.Equal(t, "plain", expandEnvRef("plain"))
}
