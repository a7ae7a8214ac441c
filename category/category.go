// Package category classifies translation keys into the fixed set of
// Translate tables by key prefix.
//
// The rule table below is the only place prefixes are listed; filtering,
// export grouping and completion statistics all go through GetCategory.
package category

import (
	"math"
	"strings"

	"github.com/bsj-tools/transkit/mapping"
)

// Categories is the fixed list of table names, in export order.
var Categories = []string{
	"ContextMenu",
	"IG_UI",
	"ItemName",
	"Recipes",
	"Sandbox",
	"Tooltip",
	"UI",
}

// rule maps a key prefix to a category. Rules are checked in order, most
// specific first.
type rule struct {
	prefix   string
	category string
}

var rules = []rule{
	{"IG_UI_", "IG_UI"},
	{"ContextMenu_", "ContextMenu"},
	{"ItemName_", "ItemName"},
	{"Recipes_", "Recipes"},
	{"Recipe_", "Recipes"},
	{"Sandbox_", "Sandbox"},
	{"Tooltip_", "Tooltip"},
	{"UI_", "UI"},
}

// GetCategory returns the category a key belongs to. The second result is
// false for keys with no recognised prefix.
func GetCategory(key string) (string, bool) {
	for _, r := range rules {
		if strings.HasPrefix(key, r.prefix) {
			return r.category, true
		}
	}
	return "", false
}

// IsKnown reports whether name is one of Categories.
func IsKnown(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Categorize splits m into one mapping per category. Every category is
// present in the result, possibly empty; unclassified keys are dropped.
func Categorize(m *mapping.Mapping) map[string]*mapping.Mapping {
	out := make(map[string]*mapping.Mapping, len(Categories))
	for _, c := range Categories {
		out[c] = mapping.New()
	}
	m.Range(func(k, v string) bool {
		if c, ok := GetCategory(k); ok {
			out[c].Set(k, v)
		}
		return true
	})
	return out
}

// Filter returns the keys of m that belong to category, in m's order.
func Filter(m *mapping.Mapping, category string) *mapping.Mapping {
	out := mapping.New()
	m.Range(func(k, v string) bool {
		if c, ok := GetCategory(k); ok && c == category {
			out.Set(k, v)
		}
		return true
	})
	return out
}

// ---------------------------------------------------------------------------
// Completion statistics
// ---------------------------------------------------------------------------

// Stats summarises how much of a reference key set a language covers.
type Stats struct {
	Total      int `json:"total"`
	Translated int `json:"translated"`
	Empty      int `json:"empty"`
	Missing    int `json:"missing"`
	Percentage int `json:"percentage"`
}

// Completion counts, for every key of reference, whether lang has a
// non-blank value (translated), a blank value (empty) or none (missing).
// Keys only present in lang do not count.
func Completion(lang, reference *mapping.Mapping) Stats {
	var s Stats
	reference.Range(func(k, _ string) bool {
		v, ok := lang.Get(k)
		switch {
		case !ok:
			s.Missing++
		case mapping.IsBlank(v):
			s.Empty++
		default:
			s.Translated++
		}
		return true
	})
	s.Total = reference.Len()
	if s.Total > 0 {
		s.Percentage = int(math.Round(float64(s.Translated) / float64(s.Total) * 100))
	}
	return s
}

// CompletionByCategory computes Completion per category of the reference.
func CompletionByCategory(lang, reference *mapping.Mapping) map[string]Stats {
	refs := Categorize(reference)
	out := make(map[string]Stats, len(Categories))
	for _, c := range Categories {
		out[c] = Completion(lang, refs[c])
	}
	return out
}
