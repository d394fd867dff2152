package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config.yaml present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ingest.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "data", cfg.Storage.Root)
	assert.Equal(t, "产品详情", cfg.Import.SheetName)
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
	assert.Equal(t, 60, cfg.Extraction.TimeoutSecs)
	assert.Equal(t, 4, cfg.Worker.PoolSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.TestMode)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INGEST_STORE_DRIVER", "postgres")
	t.Setenv("INGEST_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.Validate())

	cfg.Catalog.Key = "ck"
	require.Error(t, cfg.Validate(), "llm key still missing")

	cfg.LLM.Key = "lk"
	require.NoError(t, cfg.Validate())

	// Test mode needs no keys.
	empty := &Config{TestMode: true}
	require.NoError(t, empty.Validate())
}
