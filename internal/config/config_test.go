package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8501, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 744*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "bedrock", cfg.LLM.DefaultProvider)
	assert.Equal(t, 20, cfg.LLM.MaxHistoryTurns)
	assert.Equal(t, 1, cfg.Stream.ChunkSize)
	assert.Equal(t, 20*time.Millisecond, cfg.Stream.Delay)
	assert.Equal(t, ".md", cfg.Storage.AllowedExtension)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Auth.Scopes)
	assert.Equal(t, 5*time.Second, cfg.Notify.Timeout)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
session:
  backend: redis
  ttl: 2h
llm:
  max_history_turns: 5
auth:
  issuer: https://issuer.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("KNOWLEDGE_BASE_ID", "KB123")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.LLM.MaxHistoryTurns)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	assert.Equal(t, "KB123", cfg.LLM.Bedrock.KnowledgeBaseID)
	assert.Equal(t, "42", cfg.Notify.TelegramChatID)
	assert.Equal(t, "https://issuer.example.com/.well-known/jwks.json", cfg.Auth.JWKS())
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "kb", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/kb?sslmode=disable", cfg.DSN())
}
