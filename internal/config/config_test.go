package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, names := range providerKeyEnv {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
	t.Setenv("RELAY_PROVIDER_API_KEY", "")
	t.Setenv("RELAY_IMAGE_API_KEY", "")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
	assert.Equal(t, 200, cfg.Provider.MaxTokens)
	assert.InDelta(t, 0.8, cfg.Provider.Temperature, 1e-6)
	assert.Equal(t, 20, cfg.Relay.MaxHistory)
	assert.Equal(t, 60*time.Second, cfg.Relay.StreamTimeout)
	assert.Equal(t, 1500, cfg.World.OverviewLimit)
	assert.False(t, cfg.Image.Enabled)
	assert.Equal(t, "dall-e-3", cfg.Image.Model)
	assert.Empty(t, cfg.Image.APIKey)
	assert.False(t, cfg.HasCredential())
}

func TestLoadFromFile(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
provider:
  name: gemini
  api_key: file-key
  model: gemini-2.0-flash
relay:
  stream_timeout: 5s
  max_history: 10
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "file-key", cfg.Provider.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Relay.StreamTimeout)
	assert.Equal(t, 10, cfg.Relay.MaxHistory)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.HasCredential())
}

func TestLoadProviderKeyFromEnvironment(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Provider.APIKey)
	assert.Equal(t, "env-key", cfg.Image.APIKey)
}

func TestLoadAnthropicFromEnvironment(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("RELAY_PROVIDER_NAME", "anthropic")
	t.Setenv("RELAY_PROVIDER_MODEL", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "sk-ant-env", cfg.Provider.APIKey)
	assert.Equal(t, "claude-3-5-haiku-20241022", cfg.Provider.Model)
	assert.Equal(t, 200, cfg.Provider.MaxTokens)
	assert.InDelta(t, 0.8, cfg.Provider.Temperature, 1e-6)
}

func TestLoadFileKeyWinsOverEnvironment(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  api_key: file-key\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Provider.APIKey)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
