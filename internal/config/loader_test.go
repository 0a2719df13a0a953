package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "kalku.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "kalku-calc", cfg.Server.Command)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kalku.json")
	content := `{
		"ai": {"provider": "openai", "model": "gpt-4o", "max_tokens": 2048},
		"server": {"command": "/usr/local/bin/kalku-calc", "args": ["--verbose"]},
		"agent": {"max_rounds": 5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, 2048, cfg.AI.MaxTokens)
	assert.Equal(t, "/usr/local/bin/kalku-calc", cfg.Server.Command)
	assert.Equal(t, []string{"--verbose"}, cfg.Server.Args)
	assert.Equal(t, 5, cfg.Agent.MaxRounds)

	// Fields the file omits keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.CallTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kalku.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0644))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KALKU_API_KEY", "sk-ant-from-env")
	t.Setenv("KALKU_PROVIDER", "anthropic")
	t.Setenv("KALKU_MODEL", "claude-3-opus-20240229")

	loader := NewLoader(filepath.Join(t.TempDir(), "kalku.json"))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-from-env", cfg.AI.APIKey)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "claude-3-opus-20240229", cfg.AI.Model)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kalku.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.AI.Model = "claude-3-haiku-20240307"
	cfg.Agent.MaxRounds = 3
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku-20240307", loaded.AI.Model)
	assert.Equal(t, 3, loaded.Agent.MaxRounds)
}
