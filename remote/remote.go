// Package remote reads translation content from the hosted mod repository.
//
// Files are fetched from the raw content host by coordinate:
//
//	<RawBase>/<Owner>/<Repo>/<Branch>/<Layout>/<LANG>/<Category>_<LANG>.txt
//
// Language discovery lists the layout directory through the GitHub contents
// API, and the optional language manifest lives at docs/languages.json.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bsj-tools/transkit/langmeta"
	"github.com/bsj-tools/transkit/luatable"
	"github.com/bsj-tools/transkit/mapping"
)

// ErrNotFound reports a 404 from the content host: the language or category
// does not exist remotely.
var ErrNotFound = errors.New("file not found")

const (
	DefaultRawBase = "https://raw.githubusercontent.com"
	DefaultAPIBase = "https://api.github.com"
	manifestPath   = "docs/languages.json"
	userAgent      = "transkit"
)

// langDirPattern matches language folder names in the repository.
var langDirPattern = regexp.MustCompile(`^[A-Z]{2,4}$`)

// Fetcher is the read side of the content host used by the session.
type Fetcher interface {
	FetchManifest(ctx context.Context) (*Manifest, error)
	DiscoverLanguages(ctx context.Context) ([]string, error)
	FetchLanguage(ctx context.Context, lang string) *LanguageResult
}

// Manifest is the optional docs/languages.json document.
type Manifest struct {
	ZomboidLanguages []langmeta.Language `json:"zomboidLanguages"`
}

// Client fetches from GitHub. The zero value is not usable; see New.
type Client struct {
	HTTP       *http.Client
	RawBase    string
	APIBase    string
	Owner      string
	Repo       string
	Branch     string
	Layout     string
	Categories []string
	Log        zerolog.Logger
}

// New returns a Client for owner/repo@branch reading files under layout.
func New(owner, repo, branch, layout string, categories []string) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		RawBase:    DefaultRawBase,
		APIBase:    DefaultAPIBase,
		Owner:      owner,
		Repo:       repo,
		Branch:     branch,
		Layout:     layout,
		Categories: categories,
		Log:        zerolog.Nop(),
	}
}

// RawURL returns the raw content URL of one translation file.
func (c *Client) RawURL(lang, category string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s",
		strings.TrimRight(c.RawBase, "/"), c.Owner, c.Repo, c.Branch,
		strings.Trim(c.Layout, "/"), lang, luatable.FileName(category, lang))
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}

// ---------------------------------------------------------------------------
// Translation files
// ---------------------------------------------------------------------------

// FetchFile downloads and parses one category file. Parse diagnostics are
// logged, not returned.
func (c *Client) FetchFile(ctx context.Context, lang, category string) (*mapping.Mapping, error) {
	data, err := c.get(ctx, c.RawURL(lang, category), "")
	if err != nil {
		return nil, err
	}
	res := luatable.ParseBytes(data, category)
	if len(res.Errors) > 0 {
		c.Log.Warn().Str("lang", lang).Str("category", category).Strs("errors", res.Errors).Msg("parse warnings")
	}
	return res.Translations, nil
}

// CategoryStatus reports the outcome for one category of a language.
type CategoryStatus struct {
	KeyCount int    `json:"keyCount"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// LanguageResult is the merged content of every category of a language.
type LanguageResult struct {
	Lang         string
	Translations *mapping.Mapping
	Categories   map[string]CategoryStatus
	Errors       []string
	TotalKeys    int
}

// AllFailed reports whether no category could be loaded.
func (r *LanguageResult) AllFailed() bool {
	return len(r.Categories) > 0 && len(r.Errors) == len(r.Categories)
}

// FetchLanguage fetches all categories of lang concurrently. A failing
// category contributes no keys and one "<Category>: <reason>" error; it never
// cancels its siblings. Keys are merged in category order.
func (c *Client) FetchLanguage(ctx context.Context, lang string) *LanguageResult {
	type outcome struct {
		m   *mapping.Mapping
		err error
	}
	outcomes := make([]outcome, len(c.Categories))

	var g errgroup.Group
	for i, cat := range c.Categories {
		i, cat := i, cat
		g.Go(func() error {
			m, err := c.FetchFile(ctx, lang, cat)
			outcomes[i] = outcome{m: m, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := &LanguageResult{
		Lang:         lang,
		Translations: mapping.New(),
		Categories:   make(map[string]CategoryStatus, len(c.Categories)),
	}
	for i, cat := range c.Categories {
		o := outcomes[i]
		if o.err != nil {
			res.Categories[cat] = CategoryStatus{Status: "error", Error: o.err.Error()}
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", cat, o.err))
			continue
		}
		res.Categories[cat] = CategoryStatus{KeyCount: o.m.Len(), Status: "loaded"}
		res.Translations.Assign(o.m)
		res.TotalKeys += o.m.Len()
	}

	c.Log.Debug().Str("lang", lang).Int("keys", res.TotalKeys).Int("errors", len(res.Errors)).Msg("language fetched")
	return res
}

// FetchLanguages fetches several languages concurrently.
func (c *Client) FetchLanguages(ctx context.Context, langs []string) map[string]*LanguageResult {
	var (
		mu  sync.Mutex
		out = make(map[string]*LanguageResult, len(langs))
		g   errgroup.Group
	)
	for _, lang := range langs {
		lang := lang
		g.Go(func() error {
			r := c.FetchLanguage(ctx, lang)
			mu.Lock()
			out[lang] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// LanguageExists probes the UI table of lang.
func (c *Client) LanguageExists(ctx context.Context, lang string) bool {
	_, err := c.FetchFile(ctx, lang, "UI")
	return err == nil
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

type contentEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DiscoverLanguages lists the language folders of the layout directory.
func (c *Client) DiscoverLanguages(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		strings.TrimRight(c.APIBase, "/"), c.Owner, c.Repo, strings.Trim(c.Layout, "/"), c.Branch)
	data, err := c.get(ctx, url, "application/vnd.github.v3+json")
	if err != nil {
		return nil, fmt.Errorf("listing languages: %w", err)
	}

	var entries []contentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding language listing: %w", err)
	}

	var langs []string
	for _, e := range entries {
		if e.Type == "dir" && langDirPattern.MatchString(e.Name) {
			langs = append(langs, e.Name)
		}
	}
	return langs, nil
}

// FetchManifest downloads docs/languages.json.
func (c *Client) FetchManifest(ctx context.Context) (*Manifest, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s", strings.TrimRight(c.RawBase, "/"), c.Owner, c.Repo, c.Branch, manifestPath)
	data, err := c.get(ctx, url, "")
	if err != nil {
		return nil, fmt.Errorf("fetching language manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding language manifest: %w", err)
	}
	return &m, nil
}
