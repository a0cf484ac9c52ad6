package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestAuthStatusReadsEnvAndCredentialFile(t *testing.T) {
	t.Setenv("CC_GITHUB_TOKEN", "ghp_example")
	t.Setenv("CC_AGENT_TOKEN", "")
	t.Setenv("CC_AUTH_FILE", "")

	out := execute(t, "auth-status")
	assert.Contains(t, out, "github: authenticated")
	assert.Contains(t, out, "agent:  not authenticated")

	credFile := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(credFile, []byte(`{"google_refresh_token":"1//refresh"}`), 0o600))
	t.Setenv("CC_AUTH_FILE", credFile)

	out = execute(t, "auth-status")
	assert.Contains(t, out, "agent:  authenticated")
}

func TestRecipesCommandListsCatalog(t *testing.T) {
	out := execute(t, "recipes")
	assert.Contains(t, out, "nextjs-app")
	assert.Contains(t, out, "tauri-rust-v2")
}

func TestRunCommandInSimulation(t *testing.T) {
	t.Setenv("CC_DEV_SIMULATE", "true")
	t.Setenv("CC_JOBS_POLL_INTERVAL", "1ms")
	t.Setenv("CC_DATABASE_URL", "")

	specFile := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(specFile, []byte("job:\n  variant: uplink\n  repo_url: acct/app\n  context: Try it\n"), 0o600))

	execute(t, "run", specFile)
}
