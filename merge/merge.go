// Package merge combines imported translations with existing ones.
package merge

import (
	"fmt"
	"strings"

	"github.com/bsj-tools/transkit/mapping"
)

// Mode selects how an imported value competes with an existing one.
type Mode int

const (
	// ModeFill adds imported values for keys that are absent or blank.
	ModeFill Mode = iota
	// ModeOverwrite always takes the imported value.
	ModeOverwrite
	// ModeSkip adds imported values only for keys that are absent.
	ModeSkip
)

// String returns the name used on the command line.
func (m Mode) String() string {
	switch m {
	case ModeOverwrite:
		return "overwrite"
	case ModeSkip:
		return "skip"
	default:
		return "fill"
	}
}

// ParseMode parses a mode name. The empty string selects ModeFill.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fill":
		return ModeFill, nil
	case "overwrite":
		return ModeOverwrite, nil
	case "skip":
		return ModeSkip, nil
	default:
		return ModeFill, fmt.Errorf("unknown merge mode %q (want fill, overwrite or skip)", s)
	}
}

// Merge returns existing updated with imported according to mode. Neither
// input is modified. Existing keys keep their position; new keys are
// appended in imported order.
func Merge(existing, imported *mapping.Mapping, mode Mode) *mapping.Mapping {
	result := existing.Clone()

	imported.Range(func(key, value string) bool {
		current, ok := result.Get(key)
		switch mode {
		case ModeOverwrite:
			result.Set(key, value)
		case ModeSkip:
			if !ok {
				result.Set(key, value)
			}
		default:
			if !ok || mapping.IsBlank(current) {
				result.Set(key, value)
			}
		}
		return true
	})

	return result
}

// Counts reports how many imported keys a merge would add, replace or leave
// untouched. It is used for the summary line printed after an import.
type Counts struct {
	Added     int
	Replaced  int
	Unchanged int
}

// Count computes Counts for merging imported into existing with mode.
func Count(existing, imported *mapping.Mapping, mode Mode) Counts {
	var c Counts
	merged := Merge(existing, imported, mode)
	imported.Range(func(key, _ string) bool {
		before, had := existing.Get(key)
		after := merged.Value(key)
		switch {
		case !had:
			c.Added++
		case before != after:
			c.Replaced++
		default:
			c.Unchanged++
		}
		return true
	})
	return c
}
