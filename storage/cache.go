package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/bsj-tools/transkit/mapping"
)

// Entry is the persisted work for one language.
type Entry struct {
	Translations *mapping.Mapping `json:"translations"`
	LastModified time.Time        `json:"lastModified"`
}

// Meta describes a persisted language without its values.
type Meta struct {
	LastModified time.Time
	KeyCount     int
}

// baselineVersion guards the cached baseline against tool upgrades.
type baselineVersion struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache is the typed layer over a Store.
type Cache struct {
	store   Store
	version string
	log     zerolog.Logger

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// NewCache returns a Cache over store. version is the tool version the
// baseline cache is keyed on.
func NewCache(store Store, version string, log zerolog.Logger) *Cache {
	return &Cache{store: store, version: version, log: log, Now: time.Now}
}

// Store returns the underlying store.
func (c *Cache) Store() Store { return c.store }

// ---------------------------------------------------------------------------
// Working translations
// ---------------------------------------------------------------------------

// All returns every persisted language. A corrupt record is logged and
// treated as empty.
func (c *Cache) All() map[string]Entry {
	all := make(map[string]Entry)
	raw, ok, err := c.store.Get(KeyTranslations)
	if err != nil {
		c.log.Error().Err(err).Msg("reading stored translations")
		return all
	}
	if !ok {
		return all
	}
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		c.log.Error().Err(err).Msg("parsing stored translations")
		return make(map[string]Entry)
	}
	return all
}

func (c *Cache) saveAll(all map[string]Entry) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshaling translations: %w", err)
	}
	return c.store.Set(KeyTranslations, string(data))
}

// Translations returns the persisted mapping for lang, or nil.
func (c *Cache) Translations(lang string) *mapping.Mapping {
	e, ok := c.All()[lang]
	if !ok || e.Translations == nil {
		return nil
	}
	return e.Translations
}

// Metadata returns the last-modified time and key count for lang.
func (c *Cache) Metadata(lang string) (Meta, bool) {
	e, ok := c.All()[lang]
	if !ok {
		return Meta{}, false
	}
	return Meta{LastModified: e.LastModified, KeyCount: e.Translations.Len()}, true
}

// SaveTranslations persists m for lang, stamping the modification time.
func (c *Cache) SaveTranslations(lang string, m *mapping.Mapping) error {
	all := c.All()
	all[lang] = Entry{Translations: m.Clone(), LastModified: c.Now().UTC()}
	if err := c.saveAll(all); err != nil {
		return fmt.Errorf("saving %s translations: %w", lang, err)
	}
	c.log.Debug().Str("lang", lang).Int("keys", m.Len()).Msg("translations saved")
	return nil
}

// DeleteTranslations drops the persisted work for lang.
func (c *Cache) DeleteTranslations(lang string) error {
	all := c.All()
	if _, ok := all[lang]; !ok {
		return nil
	}
	delete(all, lang)
	return c.saveAll(all)
}

// ClearTranslations drops the persisted work for every language.
func (c *Cache) ClearTranslations() error {
	return c.store.Delete(KeyTranslations)
}

// SavedLanguages returns the languages with persisted work, sorted.
func (c *Cache) SavedLanguages() []string {
	all := c.All()
	langs := make([]string, 0, len(all))
	for l := range all {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// HasUnsavedChanges reports whether current differs from what is persisted
// for lang.
func (c *Cache) HasUnsavedChanges(lang string, current *mapping.Mapping) bool {
	saved := c.Translations(lang)
	if saved == nil {
		return current.Len() > 0
	}
	return !saved.Equal(current)
}

// ---------------------------------------------------------------------------
// Baseline cache
// ---------------------------------------------------------------------------

// SaveBaseline caches the reference mapping under the current tool version.
// When the store is full the cached baseline is evicted and nil is returned:
// the baseline can always be refetched.
func (c *Cache) SaveBaseline(m *mapping.Mapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling baseline: %w", err)
	}
	ver, err := json.Marshal(baselineVersion{Version: c.version, Timestamp: c.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling baseline version: %w", err)
	}

	err = c.store.Set(KeyBaseline, string(data))
	if err == nil {
		err = c.store.Set(KeyBaselineVersion, string(ver))
	}
	if errors.Is(err, ErrQuotaExceeded) {
		c.log.Warn().Err(err).Msg("baseline cache does not fit, evicting")
		_ = c.store.Delete(KeyBaseline)
		return nil
	}
	if err != nil {
		return fmt.Errorf("caching baseline: %w", err)
	}
	return nil
}

// Baseline returns the cached reference mapping if it was written by the
// current tool version.
func (c *Cache) Baseline() (*mapping.Mapping, bool) {
	rawVer, ok, err := c.store.Get(KeyBaselineVersion)
	if err != nil || !ok {
		return nil, false
	}
	var ver baselineVersion
	if err := json.Unmarshal([]byte(rawVer), &ver); err != nil || ver.Version != c.version {
		return nil, false
	}
	raw, ok, err := c.store.Get(KeyBaseline)
	if err != nil || !ok {
		return nil, false
	}
	m := mapping.New()
	if err := json.Unmarshal([]byte(raw), m); err != nil {
		c.log.Error().Err(err).Msg("parsing cached baseline")
		return nil, false
	}
	return m, true
}

// ClearBaseline drops the cached baseline and its version record.
func (c *Cache) ClearBaseline() error {
	if err := c.store.Delete(KeyBaseline); err != nil {
		return err
	}
	return c.store.Delete(KeyBaselineVersion)
}

// ---------------------------------------------------------------------------
// Token and sync time
// ---------------------------------------------------------------------------

// SaveToken stores the GitHub access token.
func (c *Cache) SaveToken(token string) error {
	return c.store.Set(KeyToken, token)
}

// Token returns the stored GitHub access token or "".
func (c *Cache) Token() string {
	v, _, _ := c.store.Get(KeyToken)
	return v
}

// ClearToken removes the stored GitHub access token.
func (c *Cache) ClearToken() error {
	return c.store.Delete(KeyToken)
}

// IsAuthenticated reports whether a token is stored.
func (c *Cache) IsAuthenticated() bool {
	return c.Token() != ""
}

// TouchLastSync records the current time as the last successful sync.
func (c *Cache) TouchLastSync() error {
	return c.store.Set(KeyLastSync, c.Now().UTC().Format(time.RFC3339))
}

// LastSync returns the last successful sync time.
func (c *Cache) LastSync() (time.Time, bool) {
	v, ok, err := c.store.Get(KeyLastSync)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ---------------------------------------------------------------------------
// User data backup
// ---------------------------------------------------------------------------

// UserData is a full backup of the user's persisted work.
type UserData struct {
	Version      string           `json:"version"`
	ExportedAt   time.Time        `json:"exportedAt"`
	Translations map[string]Entry `json:"translations"`
	LastSync     *time.Time       `json:"lastSync,omitempty"`
}

// ExportUserData collects everything the user created locally.
func (c *Cache) ExportUserData() UserData {
	d := UserData{
		Version:      c.version,
		ExportedAt:   c.Now().UTC(),
		Translations: c.All(),
	}
	if t, ok := c.LastSync(); ok {
		d.LastSync = &t
	}
	return d
}

// ImportUserData replaces the persisted work with a backup.
func (c *Cache) ImportUserData(d UserData) error {
	if d.Translations != nil {
		if err := c.saveAll(d.Translations); err != nil {
			return fmt.Errorf("restoring translations: %w", err)
		}
	}
	if d.LastSync != nil {
		if err := c.store.Set(KeyLastSync, d.LastSync.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("restoring last sync: %w", err)
		}
	}
	return nil
}

// Usage reports the stored size in bytes.
type Usage struct {
	Translations int
	Baseline     int
	Total        int
}

// Usage measures the two large records.
func (c *Cache) Usage() Usage {
	var u Usage
	if v, ok, _ := c.store.Get(KeyTranslations); ok {
		u.Translations = len(v)
	}
	if v, ok, _ := c.store.Get(KeyBaseline); ok {
		u.Baseline = len(v)
	}
	u.Total = u.Translations + u.Baseline
	return u
}
