package importer

import (
	"github.com/bsj-tools/transkit/mapping"
	"github.com/bsj-tools/transkit/placeholder"
)

// Issue lists the placeholder warnings for one key.
type Issue struct {
	Key      string   `json:"key"`
	Warnings []string `json:"warnings"`
}

// Validation compares imported keys against the reference language.
type Validation struct {
	Valid             []string `json:"valid"`
	Missing           []string `json:"missing"`
	Extra             []string `json:"extra"`
	PlaceholderIssues []Issue  `json:"placeholderIssues"`
}

// ValidateAgainst checks imported against reference. Imported keys unknown to
// the reference are Extra; reference keys absent from imported are Missing.
// Known keys are checked with placeholder.Validate, so blank values are
// reported as issues too.
func ValidateAgainst(imported, reference *mapping.Mapping) Validation {
	var v Validation
	imported.Range(func(key, value string) bool {
		ref, ok := reference.Get(key)
		if !ok {
			v.Extra = append(v.Extra, key)
			return true
		}
		if r := placeholder.Validate(key, value, ref); r.Valid {
			v.Valid = append(v.Valid, key)
		} else {
			v.PlaceholderIssues = append(v.PlaceholderIssues, Issue{Key: key, Warnings: r.Warnings})
		}
		return true
	})
	reference.Range(func(key, _ string) bool {
		if !imported.Has(key) {
			v.Missing = append(v.Missing, key)
		}
		return true
	})
	return v
}

// Summary condenses an import and its validation for display.
type Summary struct {
	Format            Format   `json:"format"`
	LangCode          string   `json:"langCode"`
	TotalKeys         int      `json:"totalKeys"`
	ValidKeys         int      `json:"validKeys"`
	MissingKeys       int      `json:"missingKeys"`
	ExtraKeys         int      `json:"extraKeys"`
	PlaceholderIssues int      `json:"placeholderIssues"`
	HasErrors         bool     `json:"hasErrors"`
	Errors            []string `json:"errors,omitempty"`
}

// Summarize builds a Summary.
func Summarize(res *Result, v Validation) Summary {
	return Summary{
		Format:            res.Format,
		LangCode:          res.LangCode,
		TotalKeys:         res.Translations.Len(),
		ValidKeys:         len(v.Valid),
		MissingKeys:       len(v.Missing),
		ExtraKeys:         len(v.Extra),
		PlaceholderIssues: len(v.PlaceholderIssues),
		HasErrors:         len(res.Errors) > 0,
		Errors:            res.Errors,
	}
}
