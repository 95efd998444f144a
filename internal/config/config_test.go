package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 18990, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
provider:
  name: claude
  apiKey: test-key
  model: claude-sonnet-4-5
agents:
  writing:
    instructions: "You are an expert writing assistant."
research:
  poolSize: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.Provider.Name)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Provider.Model)
	assert.Equal(t, "You are an expert writing assistant.", cfg.Agents.Writing.Instructions)
	assert.Equal(t, 4, cfg.Research.PoolSize)
	// Unset fields keep defaults
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 120, cfg.Agents.Defaults.TimeoutSeconds)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("QUILL_TEST_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
provider:
  name: claude
  apiKey: ${QUILL_TEST_SECRET}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Provider.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUILL_PORT", "7777")
	t.Setenv("QUILL_PROVIDER", "claude")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.Provider.Name)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Nil(t, Validate(&cfg))

	cfg.Server.Port = 99999
	cfg.Server.Bind = "everywhere"
	cfg.Provider.Name = "hal9000"
	cfg.Research.PoolSize = 0

	issues := Validate(&cfg)
	require.Len(t, issues, 4)
	paths := make([]string, len(issues))
	for i, issue := range issues {
		paths[i] = issue.Path
	}
	assert.Contains(t, paths, "server.port")
	assert.Contains(t, paths, "server.bind")
	assert.Contains(t, paths, "provider.name")
	assert.Contains(t, paths, "research.poolSize")
}

func TestValidateClaudeRequiresKey(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.Name = "claude"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "provider.apiKey", issues[0].Path)
}

func TestResolvePathsHonorsHomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUILL_HOME", dir)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(dir, "data", "quill.db"), p.DatabasePath(StorageConfig{}))
	assert.Equal(t, "/tmp/x.db", p.DatabasePath(StorageConfig{Path: "/tmp/x.db"}))
}
