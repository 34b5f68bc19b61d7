package config

import (
	"os"
	"path/filepath"
	"testing"

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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "8090", cfg.Stubs.Port)
	assert.Equal(t, DefaultBodySizeLimit, cfg.Server.BodySizeLimit)
	assert.Equal(t, []string{"fraud"}, cfg.Fraud.Names)
	assert.True(t, cfg.Contracts.Builtin)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "${TEST_PORT_CONTRACTKIT:-9999}"
stubs:
  journal: memory
  journal_max_entries: 50
fraud:
  names: [fraud, mallory]
log:
  format: pretty
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Stubs.JournalMaxEntries)
	assert.Equal(t, []string{"fraud", "mallory"}, cfg.Fraud.Names)
	assert.Equal(t, "pretty", cfg.Log.Format)
	assert.Equal(t, "8090", cfg.Stubs.Port, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"${TEST_PORT_CONTRACTKIT:-9999}\"\n")
	t.Setenv("TEST_PORT_CONTRACTKIT", "1111")
	t.Setenv("STUB_PORT", "2222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1111", cfg.Server.Port)
	assert.Equal(t, "2222", cfg.Stubs.Port)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MASTER_KEY=from-dotenv\n"), 0o644))
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("MASTER_KEY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Server.MasterKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("redis journal without url", func(t *testing.T) {
		_, err := Load(writeConfig(t, "stubs:\n  journal: redis\n"))
		assert.ErrorContains(t, err, "redis_url")
	})

	t.Run("unknown journal", func(t *testing.T) {
		_, err := Load(writeConfig(t, "stubs:\n  journal: kafka\n"))
		assert.ErrorContains(t, err, "unknown stubs.journal")
	})
}
