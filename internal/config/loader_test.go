package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 10*time.Second, cfg.Retrieval.Timeout.Duration())
	assert.Equal(t, "deepseek-chat", cfg.Generation.Model)
	assert.Equal(t, 0.3, cfg.Generation.Temperature)
	assert.Equal(t, "BAAI/bge-small-zh-v1.5", cfg.Embeddings.Model)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9191
retrieval:
  top_k: 8
  timeout: 2s
session:
  backend: redis
  ttl: 30m
  redis:
    addr: localhost:6379
generation:
  api_key: sk-test
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.Timeout.Duration())
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL.Duration())
	assert.Equal(t, "localhost:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Generation.APIKey.String())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  top_k: 8\n", 0o600)
	t.Setenv("HEALTHQA_RETRIEVAL_TOP_K", "3")
	t.Setenv("HEALTHQA_GENERATION_BASE_URL", "http://llm.local/v1")
	t.Setenv("HEALTHQA_SESSION_REDIS__PREFIX", "test:")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "http://llm.local/v1", cfg.Generation.BaseURL)
	assert.Equal(t, "test:", cfg.Session.Redis.Prefix)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9000\n", 0o644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad provider", "vectorstore:\n  provider: milvus\n", "vectorstore.provider"},
		{"redis without addr", "session:\n  backend: redis\n", "session.redis.addr"},
		{"bad temperature", "generation:\n  temperature: 3.5\n", "generation.temperature"},
		{"events without url", "events:\n  enabled: true\n", "events.url"},
		{"history shorter than a pair", "session:\n  max_history_turns: 1\n", "session.max_history_turns"},
		{"negative history", "session:\n  max_history_turns: -4\n", "session.max_history_turns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body, 0o600))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("HEALTHQA_SERVER_HTTP_PORT"))
	assert.Equal(t, "generation.api_key", envKey("HEALTHQA_GENERATION_API_KEY"))
	assert.Equal(t, "vectorstore.chromem.path", envKey("HEALTHQA_VECTORSTORE_CHROMEM__PATH"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/kb")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "kb"), got)

	got, err = ExpandPath("/var/lib/kb")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/kb", got)
}
