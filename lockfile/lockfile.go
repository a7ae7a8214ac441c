// Package lockfile remembers which reference text each translation was
// written against. When the English baseline later changes a string, the
// translations made for the old text are reported as outdated.
//
// The lock is a YAML document kept in the transkit data store under the
// "source_lock" key:
//
//	version: 1
//	checksums:
//	  FR:
//	    UI_BSJ_Title: 5d41402abc4b2a76b9719d911017c592
package lockfile

import (
	"crypto/md5"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bsj-tools/transkit/mapping"
	"github.com/bsj-tools/transkit/storage"
)

// StoreKey is the storage key of the lock document.
const StoreKey = "source_lock"

// Version is the lock format version.
const Version = 1

// LockFile maps language → key → MD5 of the reference text the translation
// was made for.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"`

	mu    sync.Mutex    `yaml:"-"`
	store storage.Store `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the lock from store. A missing document yields an empty lock.
func Load(store storage.Store) (*LockFile, error) {
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		store:     store,
	}

	raw, ok, err := store.Get(StoreKey)
	if err != nil {
		return nil, fmt.Errorf("reading source lock: %w", err)
	}
	if !ok {
		return lf, nil
	}
	if err := yaml.Unmarshal([]byte(raw), lf); err != nil {
		return nil, fmt.Errorf("parsing source lock: %w", err)
	}
	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[string]string)
	}
	return lf, nil
}

// Save writes the lock back to its store.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling source lock: %w", err)
	}
	if err := lf.store.Set(StoreKey, string(data)); err != nil {
		return fmt.Errorf("writing source lock: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Checksums
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of s.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

func (lf *LockFile) set(lang, key, source string) {
	if lf.Checksums[lang] == nil {
		lf.Checksums[lang] = make(map[string]string)
	}
	lf.Checksums[lang][key] = Hash(source)
}

// Record notes that key of lang now translates source.
func (lf *LockFile) Record(lang, key, source string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.set(lang, key, source)
}

// RecordAll records every non-blank key of translations that exists in
// reference.
func (lf *LockFile) RecordAll(lang string, translations, reference *mapping.Mapping) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	translations.Range(func(key, value string) bool {
		if source, ok := reference.Get(key); ok && !mapping.IsBlank(value) {
			lf.set(lang, key, source)
		}
		return true
	})
}

// RecordMissing records keys of translations that have no checksum yet.
// Content fetched from the repository is assumed to match the current
// reference.
func (lf *LockFile) RecordMissing(lang string, translations, reference *mapping.Mapping) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	translations.Range(func(key, value string) bool {
		if _, ok := lf.Checksums[lang][key]; ok || mapping.IsBlank(value) {
			return true
		}
		if source, ok := reference.Get(key); ok {
			lf.set(lang, key, source)
		}
		return true
	})
}

// Outdated returns the translated keys of lang whose reference text changed
// since they were recorded, in reference order. Keys never recorded are not
// reported.
func (lf *LockFile) Outdated(lang string, translations, reference *mapping.Mapping) []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	sums := lf.Checksums[lang]
	var out []string
	reference.Range(func(key, source string) bool {
		old, ok := sums[key]
		if ok && !mapping.IsBlank(translations.Value(key)) && old != Hash(source) {
			out = append(out, key)
		}
		return true
	})
	return out
}

// Clean drops checksums of keys that are no longer in reference.
func (lf *LockFile) Clean(lang string, reference *mapping.Mapping) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	for key := range lf.Checksums[lang] {
		if !reference.Has(key) {
			delete(lf.Checksums[lang], key)
		}
	}
}

// Forget removes every checksum of lang.
func (lf *LockFile) Forget(lang string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Checksums, lang)
}

// ForgetAll empties the lock.
func (lf *LockFile) ForgetAll() {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.Checksums = make(map[string]map[string]string)
}

// Languages returns the languages with checksums, sorted.
func (lf *LockFile) Languages() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	langs := make([]string, 0, len(lf.Checksums))
	for l := range lf.Checksums {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}
