package spec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"command-center/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScaffoldSpec(t *testing.T) {
	sub, err := ParseJobSpec(`
job:
  variant: scaffold
  name: demo
  recipe: nextjs-app
  context: |
    Build a landing page.
  mode: interactive
`)
	require.NoError(t, err)
	assert.Equal(t, models.VariantScaffold, sub.Variant)
	require.NotNil(t, sub.Scaffold)
	assert.Equal(t, "demo", sub.Scaffold.Name)
	assert.Equal(t, "nextjs-app", sub.Scaffold.RecipeID)
	assert.Equal(t, "Build a landing page.\n", sub.Scaffold.Context)
	assert.Equal(t, models.AgentModeInteractive, sub.Scaffold.Mode)
	assert.Nil(t, sub.Uplink)
	assert.Nil(t, sub.Remote)
}

func TestParseUplinkSpecDefaultsToAuto(t *testing.T) {
	sub, err := ParseJobSpec(`
job:
  variant: uplink
  repo_url: https://github.com/acct/demo
`)
	require.NoError(t, err)
	require.NotNil(t, sub.Uplink)
	assert.Equal(t, models.AgentModeAuto, sub.Uplink.Mode)
}

func TestParseRemoteSpec(t *testing.T) {
	sub, err := ParseJobSpec(`
job:
  variant: remote
  repo_url: https://github.com/acct/demo
  remote:
    host: i-0123456789abcdef0
    username: ubuntu
    private_key: KEY
`)
	require.NoError(t, err)
	require.NotNil(t, sub.Remote)
	assert.Equal(t, 22, sub.Remote.Port)
	assert.Equal(t, "i-0123456789abcdef0", sub.Remote.Host)
}

func TestParseJobSpecRejects(t *testing.T) {
	cases := map[string]string{
		"unknown variant": "job:\n  variant: deploy\n",
		"unknown mode":    "job:\n  variant: uplink\n  repo_url: x/y\n  mode: yolo\n",
		"unknown field":   "job:\n  variant: uplink\n  repo_url: x/y\n  gpus: 8\n",
		"missing recipe":  "job:\n  variant: scaffold\n  name: demo\n",
		"missing host":    "job:\n  variant: remote\n  remote:\n    username: u\n    private_key: k\n",
		"not yaml":        "job: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJobSpec(doc)
			assert.Error(t, err)
		})
	}
}

func TestDefaultRecipes(t *testing.T) {
	catalog := DefaultRecipes()

	u, err := catalog.Resolve("nextjs-app")
	require.NoError(t, err)
	assert.Equal(t, "https://raw.githubusercontent.com/mock-org/recipes/main/nextjs.sh", u)

	u, err = catalog.Resolve("tauri-rust-v2")
	require.NoError(t, err)
	assert.Equal(t, "https://raw.githubusercontent.com/mock-org/recipes/main/tauri-v2.sh", u)

	_, err = catalog.Resolve("rails")
	assert.True(t, errors.Is(err, ErrUnknownRecipe))

	assert.Len(t, catalog.List(), 2)
	assert.Equal(t, "nextjs-app", catalog.List()[0].ID)
}

func TestLoadRecipes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recipes:
  - id: go-service
    script_url: https://example.com/go.sh
`), 0600))

	catalog, err := LoadRecipes(path)
	require.NoError(t, err)
	u, err := catalog.Resolve("go-service")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/go.sh", u)

	_, err = NewRecipeCatalog([]Recipe{{ID: "a", ScriptURL: "ftp://x/y"}})
	assert.Error(t, err)
	_, err = NewRecipeCatalog([]Recipe{{ID: "a", ScriptURL: "https://x/y"}, {ID: "a", ScriptURL: "https://x/z"}})
	assert.Error(t, err)
}
