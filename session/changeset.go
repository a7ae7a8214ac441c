package session

import (
	"fmt"

	"github.com/bsj-tools/transkit/mapping"
)

// ComputeChangeSet returns, per language, the keys whose persisted value is
// non-blank and either absent from that language's remote snapshot or
// different from it.
//
// The active language is flushed first. Languages without a snapshot in this
// session are skipped, as are languages whose change-set is empty.
func (s *Session) ComputeChangeSet() (map[string]*mapping.Mapping, error) {
	if s.Working().Len() > 0 {
		if err := s.Flush(); err != nil {
			return nil, fmt.Errorf("saving current work: %w", err)
		}
	}

	out := make(map[string]*mapping.Mapping)
	for lang, entry := range s.cache.All() {
		if entry.Translations.Len() == 0 {
			continue
		}
		snapshot, ok := s.Snapshot(lang)
		if !ok {
			s.log.Debug().Str("lang", lang).Msg("no remote snapshot, skipping")
			continue
		}
		if changes := Diff(entry.Translations, snapshot); changes.Len() > 0 {
			out[lang] = changes
		}
	}
	return out, nil
}

// Diff returns the non-blank entries of working that are new or changed
// relative to snapshot, in working order.
func Diff(working, snapshot *mapping.Mapping) *mapping.Mapping {
	changes := mapping.New()
	working.Range(func(k, v string) bool {
		if mapping.IsBlank(v) {
			return true
		}
		if old, ok := snapshot.Get(k); !ok || old != v {
			changes.Set(k, v)
		}
		return true
	})
	return changes
}
