package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "ENGIGEN_PORT", "ENGIGEN_LOG_LEVEL", "ENGIGEN_API_KEY", "GEMINI_API_KEY",
		"ENGIGEN_GCP_PROJECT", "ENGIGEN_GCP_LOCATION", "ENGIGEN_MODEL_NAME",
		"ENGIGEN_STREAM_TIMEOUT", "ENGIGEN_STORAGE_BACKEND", "ENGIGEN_STATE_PATH",
		"ENGIGEN_SQLITE_PATH", "ENGIGEN_REDIS_URL", "ENGIGEN_USE_MOCK_LLM", "ENGIGEN_CONFIG_FILE",
	} {
		t.Setenv(k, "")
	}
	// Keep a stray .env in the package dir from leaking into the test.
	t.Chdir(t.TempDir())
}

func TestLoadDefaultsToMock(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeMock, cfg.Mode)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageFile, cfg.StorageBackend)
	assert.Equal(t, 2*time.Minute, cfg.StreamTimeout)
	assert.Equal(t, "gemini-2.5-flash", cfg.ModelName)
}

func TestLoadGeminiWithAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("ENGIGEN_STREAM_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeGemini, cfg.Mode)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 45*time.Second, cfg.StreamTimeout)
}

func TestLoadVertexWithProject(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGIGEN_GCP_PROJECT", "my-project")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeVertex, cfg.Mode)
}

func TestLoadForcedMockOverridesKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGIGEN_API_KEY", "secret")
	t.Setenv("ENGIGEN_USE_MOCK_LLM", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeMock, cfg.Mode)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGIGEN_STORAGE_BACKEND", "firestore")
	_, err := Load()
	assert.ErrorContains(t, err, "unknown storage backend")

	clearEnv(t)
	t.Setenv("ENGIGEN_STORAGE_BACKEND", "redis")
	_, err = Load()
	assert.ErrorContains(t, err, "ENGIGEN_REDIS_URL")

	clearEnv(t)
	t.Setenv("ENGIGEN_STREAM_TIMEOUT", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "ENGIGEN_STREAM_TIMEOUT")
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "engigen.toml")
	content := `
[model]
name = "gemini-2.5-pro"
stream_timeout = "90s"

[persona]
template = "You are an expert in {{.Domain}}."

[storage]
backend = "sqlite"
sqlite_path = "/tmp/engigen-test.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("ENGIGEN_CONFIG_FILE", path)
	t.Setenv("ENGIGEN_MODEL_NAME", "gemini-2.5-flash-lite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash-lite", cfg.ModelName, "env wins over file")
	assert.Equal(t, 90*time.Second, cfg.StreamTimeout)
	assert.Equal(t, "You are an expert in {{.Domain}}.", cfg.PersonaTemplate)
	assert.Equal(t, StorageSQLite, cfg.StorageBackend)
	assert.Equal(t, "/tmp/engigen-test.db", cfg.SQLitePath)
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGIGEN_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))

	_, err := Load()
	assert.ErrorContains(t, err, "reading config file")
}
