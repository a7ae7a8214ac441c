package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDataDirUsesXDGDataHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error: %v", err)
	}
	if want := filepath.Join(tmp, "transkit"); dir != want {
		t.Fatalf("DataDir() = %q, want %q", dir, want)
	}
}

func TestFileStoreLifecycle(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	s, err := OpenDefault()
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.Get(KeyToken); ok || err != nil {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}
	if err := s.Set(KeyToken, "gho_secret"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	info, err := os.Stat(filepath.Join(s.Dir(), KeyToken))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("token mode = %o, want 600", info.Mode().Perm())
	}

	if v, ok, _ := s.Get(KeyToken); !ok || v != "gho_secret" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}
	if err := s.Delete(KeyToken); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete(KeyToken); err != nil {
		t.Fatalf("second Delete() error: %v", err)
	}
	if _, ok, _ := s.Get(KeyToken); ok {
		t.Fatal("token still present after Delete")
	}
}

func TestFileStoreRejectsBadKeys(t *testing.T) {
	s := NewFileStore(t.TempDir())
	if err := s.Set("../escape", "x"); err == nil {
		t.Fatal("expected error for path-like key")
	}
}

func TestFileStoreQuota(t *testing.T) {
	s := NewFileStore(t.TempDir())
	s.MaxValueBytes = 4
	err := s.Set(KeyBaseline, "too long")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set() error = %v, want ErrQuotaExceeded", err)
	}
}

func TestMemStoreLimit(t *testing.T) {
	s := NewMemStore()
	s.Limit = 10
	if err := s.Set("a", "12345"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("a", "1234567890"); err != nil {
		t.Fatalf("replacing a value should only count once: %v", err)
	}
	if err := s.Set("b", "1"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set(b) error = %v, want ErrQuotaExceeded", err)
	}
	if got := strings.Join(s.Keys(), ","); got != "a" {
		t.Fatalf("Keys() = %s", got)
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("short"); got != "****" {
		t.Errorf("MaskKey(short) = %q", got)
	}
	if got := MaskKey("gho_1234567890abcd"); got != "gho_...abcd" {
		t.Errorf("MaskKey(long) = %q", got)
	}
}
