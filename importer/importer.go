// Package importer reads translations from user-supplied files.
//
// Three sources are understood: JSON backups (single- or multi-language, plus
// the legacy flat object), individual Lua-table .txt files, and zip archives
// containing any number of .txt files. Every entry point reports problems in
// the result instead of failing, so a partially readable file still yields
// the keys it contains.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bsj-tools/transkit/luatable"
	"github.com/bsj-tools/transkit/mapping"
)

// Format identifies the kind of an imported file.
type Format string

const (
	FormatJSON    Format = "json"
	FormatText    Format = "text"
	FormatArchive Format = "zip"
	FormatUnknown Format = "unknown"
)

// Error messages shared with callers and tests.
const (
	ErrInvalidStructure = "Invalid JSON structure"
	ErrNoArchiveFiles   = "No translation files (.txt) found in ZIP"
	ErrUnknownFormat    = "Unknown file format"
)

var (
	// tablePattern recognises Lua-table content: an identifier followed by "= {".
	tablePattern = regexp.MustCompile(`(?m)^\w+\s*=\s*\{`)

	// fileNamePattern extracts the category from a <Category>_<Lang>.txt name.
	fileNamePattern = regexp.MustCompile(`(?i)^(\w+)_\w+\.txt$`)
)

// ---------------------------------------------------------------------------
// Format detection
// ---------------------------------------------------------------------------

// DetectFormat decides how content should be parsed. The file extension wins;
// without a known extension, valid JSON is tried before the Lua-table
// declaration pattern.
func DetectFormat(content, filename string) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON
	case strings.HasSuffix(lower, ".txt"):
		return FormatText
	case strings.HasSuffix(lower, ".zip"):
		return FormatArchive
	}

	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return FormatJSON
		}
	}
	if tablePattern.MatchString(trimmed) {
		return FormatText
	}
	return FormatUnknown
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// StructuredResult is the outcome of ParseStructured.
type StructuredResult struct {
	Success         bool
	Translations    *mapping.Mapping
	Languages       map[string]*mapping.Mapping
	Metadata        map[string]any
	LangCode        string
	IsMultiLanguage bool
	Errors          []string
	Warnings        []string
}

// metadataKeys are top-level keys of the legacy flat shape kept as metadata.
var metadataKeys = map[string]bool{"_meta": true, "langCode": true, "langName": true}

// ParseStructured parses a JSON document in one of three shapes:
//
//	{"_meta": {...}, "translations": {key: value}}
//	{"_meta": {...}, "languages": {lang: {key: value}}}
//	{key: value, "langCode": "FR"}                      (legacy)
//
// Key order inside each mapping follows the document.
func ParseStructured(content string) *StructuredResult {
	res := &StructuredResult{
		Translations: mapping.New(),
		Metadata:     map[string]any{},
	}

	var probe any
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		res.Errors = append(res.Errors, "JSON parse error: "+err.Error())
		return res
	}
	if probe == nil {
		res.Errors = append(res.Errors, "JSON parse error: document is null")
		return res
	}
	if _, ok := probe.(map[string]any); !ok {
		res.Errors = append(res.Errors, ErrInvalidStructure)
		return res
	}

	fields, err := decodeObject([]byte(content))
	if err != nil {
		res.Errors = append(res.Errors, "JSON parse error: "+err.Error())
		return res
	}
	top := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		top[f.key] = f.raw
	}
	meta := decodeMeta(top["_meta"])

	switch {
	case isObject(top["translations"]):
		res.Translations = stringMapping(top["translations"])
		res.Metadata = meta
		res.LangCode = metaString(meta, "langCode")

	case isObject(top["languages"]):
		langs, _ := decodeObject(top["languages"])
		res.Languages = make(map[string]*mapping.Mapping, len(langs))
		for _, l := range langs {
			if !isObject(l.raw) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("language %s: not an object, skipped", l.key))
				continue
			}
			res.Languages[l.key] = stringMapping(l.raw)
		}
		res.Metadata = meta
		res.IsMultiLanguage = true

	default:
		for _, f := range fields {
			var s string
			isString := json.Unmarshal(f.raw, &s) == nil && !bytes.Equal(bytes.TrimSpace(f.raw), []byte("null"))
			switch {
			case metadataKeys[f.key]:
				var v any
				_ = json.Unmarshal(f.raw, &v)
				res.Metadata[f.key] = v
			case !strings.HasPrefix(f.key, "_") && isString:
				res.Translations.Set(f.key, s)
			}
		}
		res.LangCode = metaString(res.Metadata, "langCode")
		if res.LangCode == "" {
			if m, ok := res.Metadata["_meta"].(map[string]any); ok {
				res.LangCode = metaString(m, "langCode")
			}
		}
	}

	res.Success = true
	return res
}

// field is one member of a JSON object, in document order.
type field struct {
	key string
	raw json.RawMessage
}

// decodeObject returns the members of a JSON object in document order.
func decodeObject(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object")
	}
	var out []field
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, field{key: key, raw: raw})
	}
	return out, nil
}

// stringMapping keeps the string-valued members of a JSON object.
func stringMapping(raw json.RawMessage) *mapping.Mapping {
	m := mapping.New()
	fields, err := decodeObject(raw)
	if err != nil {
		return m
	}
	for _, f := range fields {
		var s string
		if json.Unmarshal(f.raw, &s) == nil && !bytes.Equal(bytes.TrimSpace(f.raw), []byte("null")) {
			m.Set(f.key, s)
		}
	}
	return m
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func decodeMeta(raw json.RawMessage) map[string]any {
	meta := map[string]any{}
	if isObject(raw) {
		_ = json.Unmarshal(raw, &meta)
	}
	return meta
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

// ---------------------------------------------------------------------------
// Lua-table text
// ---------------------------------------------------------------------------

// TextResult is the outcome of ParseText.
type TextResult struct {
	Success      bool
	Translations *mapping.Mapping
	LangCode     string
	Category     string
	Errors       []string
}

// CategoryFromFileName returns the category encoded in a <Category>_<Lang>.txt
// file name, or "" when the name does not follow that pattern.
func CategoryFromFileName(name string) string {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseText parses one Lua-table file. The expected category comes from the
// file name. The parse counts as successful when it produced no errors or at
// least one key.
func ParseText(content, filename string) *TextResult {
	parsed := luatable.Parse(content, CategoryFromFileName(filename))
	return &TextResult{
		Success:      len(parsed.Errors) == 0 || parsed.Translations.Len() > 0,
		Translations: parsed.Translations,
		LangCode:     parsed.LangCode,
		Category:     parsed.TableName,
		Errors:       parsed.Errors,
	}
}

// ---------------------------------------------------------------------------
// File dispatch
// ---------------------------------------------------------------------------

// Result is the normalised outcome of ImportFile.
type Result struct {
	Format          Format
	Translations    *mapping.Mapping
	Languages       map[string]*mapping.Mapping
	LangCode        string
	Files           []FileInfo
	Errors          []string
	Warnings        []string
	Success         bool
	IsMultiLanguage bool
}

// ReadFile imports a file from disk.
func ReadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ImportFile(filepath.Base(path), data), nil
}

// ImportFile imports data named name. Archives are read as binary; all other
// files are decoded to text (see luatable.Decode) and routed by DetectFormat.
func ImportFile(name string, data []byte) *Result {
	res := &Result{Format: FormatUnknown, Translations: mapping.New()}

	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		ar := ParseArchive(data)
		res.Format = FormatArchive
		res.Translations = ar.Translations
		res.LangCode = ar.LangCode
		if ar.IsMultiLanguage {
			res.Languages = ar.Languages
			res.IsMultiLanguage = true
		}
		res.Files = ar.Files
		res.Errors = ar.Errors
		res.Success = ar.Success
		return res
	}

	content := luatable.Decode(data)
	res.Format = DetectFormat(content, name)

	switch res.Format {
	case FormatJSON:
		sr := ParseStructured(content)
		res.Translations = sr.Translations
		res.Languages = sr.Languages
		res.LangCode = sr.LangCode
		res.IsMultiLanguage = sr.IsMultiLanguage
		res.Errors = sr.Errors
		res.Warnings = sr.Warnings
		res.Success = sr.Success
	case FormatText:
		tr := ParseText(content, name)
		res.Translations = tr.Translations
		res.LangCode = tr.LangCode
		res.Errors = tr.Errors
		res.Success = tr.Success
	default:
		res.Errors = append(res.Errors, ErrUnknownFormat)
	}
	return res
}
