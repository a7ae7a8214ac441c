// Package config reads the .transkit.yaml configuration file.
//
// Every field is optional. A missing file, or a missing field, falls back to
// the defaults for Burd's Survival Journals; environment variables (also read
// from a .env file next to the config) override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bsj-tools/transkit/category"
	"github.com/bsj-tools/transkit/export"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .transkit.yaml structure.
type File struct {
	Repo Repo `yaml:"repo,omitempty"`
	// Layouts are the parallel directory trees the tables live in. The first
	// one is read from; all of them are exported and committed to.
	Layouts []export.Layout `yaml:"layouts,omitempty"`
	// Categories is the table list, in export order.
	Categories []string `yaml:"categories,omitempty"`
	// Reference is the source language code (default "EN").
	Reference string `yaml:"reference,omitempty"`
	// ModName is the display name used in generated files.
	ModName string `yaml:"mod_name,omitempty"`
	OAuth   OAuth  `yaml:"oauth,omitempty"`
	Proxy   Proxy  `yaml:"proxy,omitempty"`
	// AutosaveDelay debounces edits before they are persisted.
	AutosaveDelay time.Duration `yaml:"autosave_delay,omitempty"`
	// DataDir overrides the local data directory.
	DataDir string `yaml:"data_dir,omitempty"`
}

// Repo identifies the upstream repository.
type Repo struct {
	Owner   string `yaml:"owner,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Branch  string `yaml:"branch,omitempty"`
	RawBase string `yaml:"raw_base,omitempty"`
	APIBase string `yaml:"api_base,omitempty"`
}

// OAuth configures sign-in.
type OAuth struct {
	ClientID string   `yaml:"client_id,omitempty"`
	ProxyURL string   `yaml:"proxy_url,omitempty"`
	Scopes   []string `yaml:"scopes,omitempty"`
}

// Proxy configures the token exchange proxy. The client secret is only
// read from the environment.
type Proxy struct {
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	ClientSecret   string   `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".transkit.yaml"

// LoadFile reads .transkit.yaml from dir. Returns nil if no file exists.
func LoadFile(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks a fully defaulted configuration.
func (f *File) Validate() error {
	if f.Repo.Owner == "" || f.Repo.Name == "" || f.Repo.Branch == "" {
		return fmt.Errorf("repo: owner, name and branch are required")
	}
	if len(f.Layouts) == 0 {
		return fmt.Errorf("at least one layout is required")
	}
	for i, l := range f.Layouts {
		if l.Name == "" || l.Path == "" {
			return fmt.Errorf("layout #%d: name and path are required", i+1)
		}
	}
	for _, c := range f.Categories {
		if !category.IsKnown(c) {
			return fmt.Errorf("unknown category %q (valid: %v)", c, category.Categories)
		}
	}
	if f.Reference == "" {
		return fmt.Errorf("reference language is required")
	}
	if f.AutosaveDelay < 0 {
		return fmt.Errorf("autosave_delay must not be negative")
	}
	return nil
}

// Marshal renders f as YAML, for `transkit config`.
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}
