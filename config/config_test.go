package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 60, cfg.Jobs.EnvironmentAttempts)
	assert.Equal(t, "codespace", cfg.SSH.ScaffoldUser)
	assert.False(t, cfg.Simulate)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
jobs:
  poll_interval: 2s
  max_poll_failures: 3
dev:
  simulate: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("CC_GITHUB_TOKEN", "ghp_test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 2*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 3, cfg.Jobs.MaxPollFailures)
	assert.True(t, cfg.Simulate)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
}

func TestLoadRejectsBadPollInterval(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CC_JOBS_POLL_INTERVAL", "0s")

	_, err := Load("")
	assert.Error(t, err)
}
