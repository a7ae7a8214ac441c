package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bsj-tools/transkit/category"
	"github.com/bsj-tools/transkit/export"
)

// ---------------------------------------------------------------------------
// Defaults (Burd's Survival Journals)
// ---------------------------------------------------------------------------

const (
	DefaultOwner         = "TheBurd"
	DefaultRepo          = "PZ-BurdSurvivalJournals"
	DefaultBranch        = "master"
	DefaultRawBase       = "https://raw.githubusercontent.com"
	DefaultAPIBase       = "https://api.github.com"
	DefaultReference     = "EN"
	DefaultModName       = "Burd's Survival Journals"
	DefaultClientID      = "Ov23liUhJDO8dqrWN0rs"
	DefaultProxyURL      = "https://bsj-oauth.burdsurvivaljournals.workers.dev"
	DefaultProxyPort     = 8787
	DefaultAllowedOrigin = "https://theburd.github.io"
	DefaultAutosaveDelay = 500 * time.Millisecond
)

// DefaultLayouts are the Build 42 and Build 41 install trees.
var DefaultLayouts = []export.Layout{
	{Name: "build42", Path: "Contents/mods/BurdSurvivalJournals/42/media/lua/shared/Translate"},
	{Name: "build41", Path: "Contents/mods/BurdSurvivalJournals/common/media/lua/shared/Translate"},
}

// DefaultScopes is the OAuth scope needed to fork and open pull requests.
var DefaultScopes = []string{"public_repo"}

// Config is the resolved configuration: file values over defaults, with
// environment overrides applied.
type Config struct {
	File
	// Path is the config file that was read, or "" when none exists.
	Path string
	// LogLevel is the zerolog level name from TRANSKIT_LOG_LEVEL.
	LogLevel string
}

// RepoURL is the upstream repository's web URL.
func (c *Config) RepoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", c.Repo.Owner, c.Repo.Name)
}

// Load resolves the configuration for dir. A .env file in dir is loaded into
// the process environment first; variables already set are kept.
func Load(dir string) (*Config, error) {
	envPath := filepath.Join(dir, ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading %s: %w", envPath, err)
	}

	f, err := LoadFile(dir)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if f != nil {
		cfg.File = *f
		cfg.Path = filepath.Join(dir, FileName)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		if cfg.Path != "" {
			return nil, fmt.Errorf("%s: %w", cfg.Path, err)
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Repo.Owner, DefaultOwner)
	setDefault(&c.Repo.Name, DefaultRepo)
	setDefault(&c.Repo.Branch, DefaultBranch)
	setDefault(&c.Repo.RawBase, DefaultRawBase)
	setDefault(&c.Repo.APIBase, DefaultAPIBase)
	setDefault(&c.Reference, DefaultReference)
	setDefault(&c.ModName, DefaultModName)
	setDefault(&c.OAuth.ClientID, DefaultClientID)
	setDefault(&c.OAuth.ProxyURL, DefaultProxyURL)
	if len(c.Layouts) == 0 {
		c.Layouts = append([]export.Layout(nil), DefaultLayouts...)
	}
	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), category.Categories...)
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = DefaultProxyPort
	}
	if len(c.Proxy.AllowedOrigins) == 0 {
		c.Proxy.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if c.AutosaveDelay == 0 {
		c.AutosaveDelay = DefaultAutosaveDelay
	}
}

func (c *Config) applyEnv() error {
	c.Repo.Owner = getEnv("TRANSKIT_REPO_OWNER", c.Repo.Owner)
	c.Repo.Name = getEnv("TRANSKIT_REPO", c.Repo.Name)
	c.Repo.Branch = getEnv("TRANSKIT_BRANCH", c.Repo.Branch)
	c.Repo.RawBase = getEnv("TRANSKIT_RAW_BASE", c.Repo.RawBase)
	c.Repo.APIBase = getEnv("TRANSKIT_API_BASE", c.Repo.APIBase)
	c.Reference = strings.ToUpper(getEnv("TRANSKIT_REFERENCE", c.Reference))
	c.OAuth.ProxyURL = getEnv("TRANSKIT_PROXY_URL", c.OAuth.ProxyURL)
	c.OAuth.ClientID = getEnv("GITHUB_CLIENT_ID", c.OAuth.ClientID)
	c.Proxy.ClientSecret = getEnv("GITHUB_CLIENT_SECRET", c.Proxy.ClientSecret)
	c.DataDir = getEnv("TRANSKIT_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("TRANSKIT_LOG_LEVEL", "info")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Proxy.AllowedOrigins = origins
	}

	port, err := getEnvInt("PORT", c.Proxy.Port)
	if err != nil {
		return err
	}
	c.Proxy.Port = port

	if v := os.Getenv("TRANSKIT_AUTOSAVE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TRANSKIT_AUTOSAVE_DELAY: %w", err)
		}
		c.AutosaveDelay = d
	}
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}
