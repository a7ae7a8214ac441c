// Package placeholder checks that translations keep the format placeholders
// of their reference string.
//
// Recognised tokens are %s, %d and numbered %0..%9. Only set membership is
// compared: a placeholder used twice in the reference and once in the
// translation is not reported.
package placeholder

import (
	"regexp"

	"github.com/bsj-tools/transkit/mapping"
)

var pattern = regexp.MustCompile(`%[sd\d]`)

// Warning texts.
const (
	WarnEmpty   = "Translation is empty"
	WarnMissing = "Missing placeholder: "
	WarnExtra   = "Extra placeholder: "
)

// Result is the outcome of Validate.
type Result struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings,omitempty"`
}

// Extract returns the placeholders of s in order of appearance, duplicates
// included.
func Extract(s string) []string {
	return pattern.FindAllString(s, -1)
}

// Validate compares the placeholders of translated against reference. A
// blank translation short-circuits with a single "empty" warning. The key is
// accepted for symmetry with callers iterating a mapping; it does not affect
// the outcome.
func Validate(key, translated, reference string) Result {
	if mapping.IsBlank(translated) {
		return Result{Warnings: []string{WarnEmpty}}
	}

	refs := unique(Extract(reference))
	got := unique(Extract(translated))
	inRef := toSet(refs)
	inGot := toSet(got)

	var warnings []string
	for _, ph := range refs {
		if !inGot[ph] {
			warnings = append(warnings, WarnMissing+ph)
		}
	}
	for _, ph := range got {
		if !inRef[ph] {
			warnings = append(warnings, WarnExtra+ph)
		}
	}
	return Result{Valid: len(warnings) == 0, Warnings: warnings}
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func toSet(in []string) map[string]bool {
	set := make(map[string]bool, len(in))
	for _, s := range in {
		set[s] = true
	}
	return set
}
