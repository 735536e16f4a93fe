package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "studynotes", cfg.App.Name)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 1536, cfg.LLM.EmbeddingDim)
	assert.Equal(t, "note.reindex", cfg.RabbitMQ.ReindexQueue)
	assert.Equal(t, 10, cfg.RAG.TopK)
	assert.Equal(t, 3, cfg.RAG.ReindexAttempts)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 9090

[rag]
top_k = 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 25, cfg.RAG.TopK)
	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "7070")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("LLM_EMBEDDING_DIM", "768")
	t.Setenv("RAG_REINDEX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 768, cfg.LLM.EmbeddingDim)
	assert.Equal(t, 5, cfg.RAG.ReindexAttempts)
}

func TestInvalidIntEnvFallsBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestPostgresDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.Postgres.Password = "secret"

	dsn := cfg.PostgresDSN()
	assert.Contains(t, dsn, "host=127.0.0.1")
	assert.Contains(t, dsn, "dbname=studynotes")
	assert.Contains(t, dsn, "password=secret")
	assert.Contains(t, dsn, "sslmode=disable")
}
