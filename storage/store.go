// Package storage provides the local key-value persistence transkit keeps
// between runs: working translations per language, the cached reference
// baseline, the GitHub token and the last sync time.
//
// All data is stored in the XDG data directory:
//
//	$XDG_DATA_HOME/transkit/  (default: ~/.local/share/transkit/)
//
// Each key is a separate file named after the key. Files are written with
// 0600 permissions, the directory with 0700.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"syscall"
)

const dataDirName = "transkit"

// Storage keys.
const (
	KeyTranslations    = "translations"
	KeyBaseline        = "cached_english"
	KeyBaselineVersion = "cached_english_version"
	KeyToken           = "github_token"
	KeyLastSync        = "last_sync"
)

// ErrQuotaExceeded is returned when a write does not fit in the store.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is a string key-value store. Get reports absence with ok == false
// rather than an error.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// ---------------------------------------------------------------------------
// Data directory
// ---------------------------------------------------------------------------

// DataDir returns the transkit data directory.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

// ---------------------------------------------------------------------------
// FileStore
// ---------------------------------------------------------------------------

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// FileStore keeps one file per key in a directory.
type FileStore struct {
	dir string
	// MaxValueBytes rejects larger values with ErrQuotaExceeded (0 = no limit).
	MaxValueBytes int
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// OpenDefault returns a FileStore in DataDir.
func OpenDefault() (*FileStore, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, err
	}
	return NewFileStore(dir), nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Get reads key. A missing file is reported as absent.
func (s *FileStore) Get(key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes key. A full disk is reported as ErrQuotaExceeded.
func (s *FileStore) Set(key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if s.MaxValueBytes > 0 && len(value) > s.MaxValueBytes {
		return fmt.Errorf("writing %s (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(value), 0600); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return fmt.Errorf("writing %s: %w", key, ErrQuotaExceeded)
		}
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Removing an absent key is not an error.
func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// MemStore
// ---------------------------------------------------------------------------

// MemStore is an in-memory Store, safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	values map[string]string
	// Limit caps the total size of all values in bytes (0 = no limit).
	Limit int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if s.Limit > 0 {
		used := len(value)
		for k, v := range s.values {
			if k != key {
				used += len(v)
			}
		}
		if used > s.Limit {
			return fmt.Errorf("writing %s: %w", key, ErrQuotaExceeded)
		}
	}
	s.values[key] = value
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Keys returns the stored keys, sorted.
func (s *MemStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskKey returns a masked version of a token for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
