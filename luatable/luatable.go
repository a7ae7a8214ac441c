// Package luatable implements reading and writing of the Lua-table
// translation files used by Project Zomboid mods.
//
// Format: a single table declaration named <Category>_<LangCode>, one
// key = "value" pair per line, optional trailing commas and "--" comments:
//
//	UI_EN = {
//	    -- journal window
//	    UI_BSJ_Title = "Survival Journal",
//	    UI_BSJ_Pages = "Pages: %1",
//	}
//
// File naming convention: each (category, language) pair is stored as a
// separate file named after its table:
//
//	Translate/EN/UI_EN.txt      (source)
//	Translate/FR/UI_FR.txt      (translation)
//
// Parsing never fails outright. Problems are reported in Result.Errors so
// callers can show partial success; a missing declaration or missing braces
// is fatal for the file and yields an empty mapping.
package luatable

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/bsj-tools/transkit/mapping"
)

// ---------------------------------------------------------------------------
// Parse result
// ---------------------------------------------------------------------------

// Comment is a "--" comment line found inside the table body.
type Comment struct {
	// Line is the 1-based line number within the table body.
	Line int
	// Text is the comment without its marker, trimmed.
	Text string
}

// Result holds the outcome of parsing one file.
type Result struct {
	// TableName is the category part of the declaration (e.g. "UI").
	TableName string
	// LangCode is the language part of the declaration (e.g. "EN").
	LangCode string
	// Translations holds key → unescaped value in file order.
	Translations *mapping.Mapping
	// Comments lists body comments in file order.
	Comments []Comment
	// Errors lists fatal and non-fatal diagnostics.
	Errors []string
	// Fatal is set when the declaration or braces are missing.
	Fatal bool
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

var (
	// declPattern matches the table declaration, e.g. "IG_UI_EN = {".
	// The first group is greedy, so the language code is the last segment.
	declPattern = regexp.MustCompile(`(?m)^(\w+)_(\w+)\s*=\s*\{`)

	// kvPattern matches a trimmed key = "value" line with an optional
	// trailing comma and same-line comment.
	kvPattern = regexp.MustCompile(`^([\w.]+)\s*=\s*"((?:[^"\\]|\\.)*)"\s*,?\s*(?:--.*)?$`)
)

const commentMarker = "--"

// errorSnippetLen is how much of an unparseable line is echoed back.
const errorSnippetLen = 50

// ParseFile reads and parses a translation file from disk, sniffing its
// encoding first. The expected category is taken from the caller.
func ParseFile(path, expectedCategory string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseBytes(data, expectedCategory), nil
}

// ParseBytes decodes raw file bytes (see Decode) and parses the text.
func ParseBytes(data []byte, expectedCategory string) *Result {
	return Parse(Decode(data), expectedCategory)
}

// Parse parses translation file content. If expectedCategory is non-empty
// and differs from the declared table name, a non-fatal error is recorded.
func Parse(content, expectedCategory string) *Result {
	res := &Result{Translations: mapping.New()}

	if content == "" {
		res.Errors = append(res.Errors, "Invalid content: expected string")
		res.Fatal = true
		return res
	}

	decl := declPattern.FindStringSubmatch(content)
	if decl == nil {
		res.Errors = append(res.Errors, "Invalid format: No table declaration found (expected format: TableName_XX = {)")
		res.Fatal = true
		return res
	}
	res.TableName = decl[1]
	res.LangCode = decl[2]

	if expectedCategory != "" && res.TableName != expectedCategory {
		res.Errors = append(res.Errors, fmt.Sprintf("Category mismatch: expected %s, found %s", expectedCategory, res.TableName))
	}

	open := strings.Index(content, "{")
	closing := strings.LastIndex(content, "}")
	if open == -1 || closing == -1 || closing <= open {
		res.Errors = append(res.Errors, "Invalid format: Could not find matching braces")
		res.Fatal = true
		return res
	}

	body := content[open+1 : closing]
	for i, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, commentMarker) {
			res.Comments = append(res.Comments, Comment{
				Line: i + 1,
				Text: strings.TrimSpace(trimmed[len(commentMarker):]),
			})
			continue
		}

		if m := kvPattern.FindStringSubmatch(trimmed); m != nil {
			// Duplicate keys: last value wins, first position is kept.
			res.Translations.Set(m[1], Unescape(m[2]))
			continue
		}

		if strings.Contains(trimmed, "=") && strings.Contains(trimmed, `"`) {
			res.Errors = append(res.Errors, fmt.Sprintf("Line %d: Could not parse: %s...", i+1, snippet(trimmed, errorSnippetLen)))
		}
	}

	return res
}

// snippet returns at most n runes of s.
func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ---------------------------------------------------------------------------
// Encoding detection
// ---------------------------------------------------------------------------

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
)

// Decode converts raw file bytes to text. UTF-16 LE/BE and UTF-8 byte-order
// marks are honoured; anything else is read as UTF-8. A leading U+FEFF that
// survives decoding is stripped.
func Decode(data []byte) string {
	var enc encoding.Encoding
	switch {
	case bytes.HasPrefix(data, bomUTF16LE):
		enc = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case bytes.HasPrefix(data, bomUTF16BE):
		enc = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case bytes.HasPrefix(data, bomUTF8):
		enc = unicode.UTF8BOM
	default:
		enc = unicode.UTF8
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		out = data
	}
	return strings.TrimPrefix(string(out), "\ufeff")
}

// ---------------------------------------------------------------------------
// Escaping
// ---------------------------------------------------------------------------

// Unescape resolves \n, \r, \t, \" and \\ in a quoted value. Any other
// backslash sequence is kept literally.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i+1])
		}
		i++
	}
	return b.String()
}

// Escape is the inverse of Unescape. The backslash goes first so later
// substitutions are not escaped twice.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Options controls Serialize.
type Options struct {
	// IncludeComments inserts a blank line between key groups (keys whose
	// first two underscore segments differ). Only applies with Reference.
	IncludeComments bool
	// SortKeys orders keys lexicographically. Takes precedence over Reference.
	SortKeys bool
	// Reference supplies the canonical key order; keys missing from it are
	// appended in their own order.
	Reference *mapping.Mapping
}

// Serialize renders m as a translation table named <category>_<lang>.
func Serialize(category, lang string, m *mapping.Mapping, opts Options) string {
	lines := []string{fmt.Sprintf("%s_%s = {", category, lang)}

	group := ""
	for _, key := range orderKeys(m, opts) {
		if opts.IncludeComments && opts.Reference != nil {
			if prefix := groupPrefix(key); prefix != group {
				group = prefix
				if len(lines) > 1 {
					lines = append(lines, "")
				}
			}
		}
		lines = append(lines, fmt.Sprintf(`    %s = "%s",`, key, Escape(m.Value(key))))
	}

	lines = append(lines, "}", "")
	return strings.Join(lines, "\n")
}

// orderKeys decides the emission order for Serialize.
func orderKeys(m *mapping.Mapping, opts Options) []string {
	keys := m.Keys()
	switch {
	case opts.SortKeys:
		sort.Strings(keys)
		return keys
	case opts.Reference != nil:
		ordered := make([]string, 0, len(keys))
		for _, k := range opts.Reference.Keys() {
			if m.Has(k) {
				ordered = append(ordered, k)
			}
		}
		for _, k := range keys {
			if !opts.Reference.Has(k) {
				ordered = append(ordered, k)
			}
		}
		return ordered
	default:
		return keys
	}
}

// groupPrefix returns the first two underscore-delimited segments of key.
func groupPrefix(key string) string {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "_")
}

// FileName returns the conventional file name for a table.
func FileName(category, lang string) string {
	return category + "_" + lang + ".txt"
}
