package spec

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownRecipe is returned for a recipe id outside the catalog
var ErrUnknownRecipe = errors.New("unknown recipe")

// Recipe is a named setup script for new projects
type Recipe struct {
	ID          string `yaml:"id" json:"id"`
	ScriptURL   string `yaml:"script_url" json:"scriptUrl"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// RecipeCatalog maps recipe ids to setup scripts
type RecipeCatalog struct {
	recipes map[string]Recipe
}

var defaultRecipes = []Recipe{
	{
		ID:          "tauri-rust-v2",
		ScriptURL:   "https://raw.githubusercontent.com/mock-org/recipes/main/tauri-v2.sh",
		Description: "Tauri v2 desktop app with a Rust backend",
	},
	{
		ID:          "nextjs-app",
		ScriptURL:   "https://raw.githubusercontent.com/mock-org/recipes/main/nextjs.sh",
		Description: "Next.js web app",
	},
}

// DefaultRecipes returns the built-in catalog
func DefaultRecipes() *RecipeCatalog {
	catalog, _ := NewRecipeCatalog(defaultRecipes)
	return catalog
}

// NewRecipeCatalog validates recipes and builds a catalog from them
func NewRecipeCatalog(recipes []Recipe) (*RecipeCatalog, error) {
	catalog := &RecipeCatalog{recipes: make(map[string]Recipe, len(recipes))}
	for _, r := range recipes {
		if r.ID == "" {
			return nil, fmt.Errorf("recipe with script %q has no id", r.ScriptURL)
		}
		if _, dup := catalog.recipes[r.ID]; dup {
			return nil, fmt.Errorf("duplicate recipe id %q", r.ID)
		}
		u, err := url.Parse(r.ScriptURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, fmt.Errorf("recipe %q has invalid script url %q", r.ID, r.ScriptURL)
		}
		catalog.recipes[r.ID] = r
	}
	return catalog, nil
}

type recipeFile struct {
	Recipes []Recipe `yaml:"recipes"`
}

// LoadRecipes reads a catalog from a YAML file of the form
//
//	recipes:
//	  - id: nextjs-app
//	    script_url: https://example.com/nextjs.sh
func LoadRecipes(path string) (*RecipeCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe catalog: %w", err)
	}
	var file recipeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse recipe catalog: %w", err)
	}
	if len(file.Recipes) == 0 {
		return nil, fmt.Errorf("recipe catalog %s is empty", path)
	}
	return NewRecipeCatalog(file.Recipes)
}

// Resolve returns the script URL for id
func (c *RecipeCatalog) Resolve(id string) (string, error) {
	r, ok := c.recipes[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecipe, id)
	}
	return r.ScriptURL, nil
}

// List returns the catalog sorted by id
func (c *RecipeCatalog) List() []Recipe {
	out := make([]Recipe, 0, len(c.recipes))
	for _, r := range c.recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
