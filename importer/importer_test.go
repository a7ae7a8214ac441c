package importer

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bsj-tools/transkit/mapping"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		content, name string
		want          Format
	}{
		{"anything", "a.JSON", FormatJSON},
		{"anything", "UI_FR.txt", FormatText},
		{"", "pack.Zip", FormatArchive},
		{` {"a": "b"} `, "", FormatJSON},
		{`["x"]`, "paste", FormatJSON},
		{`{ broken`, "", FormatUnknown},
		{"UI_FR = {\n}", "", FormatText},
		{"-- header\nUI_FR = {\n}", "", FormatText},
		{"hello", "", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.content, tt.name); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %s, want %s", tt.content, tt.name, got, tt.want)
		}
	}
}

func TestParseStructured_Translations(t *testing.T) {
	res := ParseStructured(`{"_meta":{"langCode":"FR","keyCount":2},"translations":{"UI_B":"b","UI_A":"a","UI_N":3}}`)
	if !res.Success {
		t.Fatalf("errors: %v", res.Errors)
	}
	if res.LangCode != "FR" {
		t.Errorf("LangCode = %q, want FR", res.LangCode)
	}
	if got := res.Translations.Keys(); !reflect.DeepEqual(got, []string{"UI_B", "UI_A"}) {
		t.Errorf("Keys() = %v, want document order without non-strings", got)
	}
	if res.Metadata["keyCount"] != float64(2) {
		t.Errorf("Metadata = %v", res.Metadata)
	}
}

func TestParseStructured_Languages(t *testing.T) {
	res := ParseStructured(`{"_meta":{"version":"3.0.0"},"languages":{"FR":{"UI_A":"a"},"DE":{"UI_A":"x"},"BAD":5}}`)
	if !res.Success || !res.IsMultiLanguage {
		t.Fatalf("res = %+v", res)
	}
	if len(res.Languages) != 2 || res.Languages["DE"].Value("UI_A") != "x" {
		t.Errorf("Languages = %v", res.Languages)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one for BAD", res.Warnings)
	}
}

func TestParseStructured_Legacy(t *testing.T) {
	res := ParseStructured(`{"langCode":"PL","langName":"Polish","_private":"x","UI_A":"a","UI_B":null,"Sandbox_C":"c"}`)
	if !res.Success {
		t.Fatalf("errors: %v", res.Errors)
	}
	if res.LangCode != "PL" {
		t.Errorf("LangCode = %q, want PL", res.LangCode)
	}
	want := map[string]string{"UI_A": "a", "Sandbox_C": "c"}
	if !reflect.DeepEqual(res.Translations.Map(), want) {
		t.Errorf("Translations = %v, want %v", res.Translations.Map(), want)
	}
	if res.Metadata["langName"] != "Polish" {
		t.Errorf("Metadata = %v", res.Metadata)
	}
}

func TestParseStructured_LegacyMetaLangCode(t *testing.T) {
	res := ParseStructured(`{"_meta":{"langCode":"RU"},"UI_A":"a"}`)
	if res.LangCode != "RU" {
		t.Fatalf("LangCode = %q, want RU", res.LangCode)
	}
}

func TestParseStructured_Errors(t *testing.T) {
	if res := ParseStructured(`["a"]`); res.Success || res.Errors[0] != ErrInvalidStructure {
		t.Errorf("array: %+v", res)
	}
	if res := ParseStructured(" null "); res.Success || res.Errors[0] != "JSON parse error: document is null" {
		t.Errorf("null document: %+v", res)
	}
	if res := ParseStructured(`{"a":`); res.Success || !strings.HasPrefix(res.Errors[0], "JSON parse error: ") {
		t.Errorf("truncated: %+v", res)
	}
}

func TestParseText_CategoryFromFileName(t *testing.T) {
	res := ParseText("Sandbox_FR = {\n Sandbox_A = \"a\",\n}\n", "ui_fr.TXT")
	if !res.Success {
		t.Fatal("parse with keys should succeed despite mismatch")
	}
	if len(res.Errors) != 1 || res.Errors[0] != "Category mismatch: expected ui, found Sandbox" {
		t.Fatalf("Errors = %v", res.Errors)
	}
	if res.Category != "Sandbox" || res.LangCode != "FR" {
		t.Errorf("Category/LangCode = %s/%s", res.Category, res.LangCode)
	}
}

func TestParseText_FatalFails(t *testing.T) {
	if res := ParseText("nothing here", "x.txt"); res.Success {
		t.Fatal("expected failure")
	}
}

type member struct{ name, body string }

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(m.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseArchive(t *testing.T) {
	data := buildZip(t,
		member{"README.md", "ignored"},
		member{"42/Translate/FR/", ""},
		member{"42/Translate/FR/UI_FR.txt", "UI_FR = {\n UI_A = \"first\",\n UI_B = \"b\",\n}\n"},
		member{"41/Translate/FR/UI_FR.txt", "UI_FR = {\n UI_A = \"second\",\n}\n"},
		member{"41/Translate/FR/Tooltip_FR.txt", "broken"},
	)
	res := ParseArchive(data)
	if !res.Success {
		t.Fatalf("errors: %v", res.Errors)
	}
	if got := res.Translations.Value("UI_A"); got != "second" {
		t.Errorf("UI_A = %q, want last file to win", got)
	}
	if res.LangCode != "FR" {
		t.Errorf("LangCode = %q", res.LangCode)
	}
	if len(res.Files) != 2 || res.Files[0].KeyCount != 2 || res.Files[0].Category != "UI" {
		t.Errorf("Files = %+v", res.Files)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "41/Translate/FR/Tooltip_FR.txt: ") {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestParseArchive_SeveralLanguages(t *testing.T) {
	data := buildZip(t,
		member{"42/Translate/FR/UI_FR.txt", "UI_FR = {\n UI_A = \"fr\",\n}\n"},
		member{"42/Translate/DE/UI_DE.txt", "UI_DE = {\n UI_A = \"de\",\n UI_B = \"b\",\n}\n"},
	)
	res := ParseArchive(data)
	if !res.Success || !res.IsMultiLanguage {
		t.Fatalf("res = %+v", res)
	}
	if len(res.Languages) != 2 {
		t.Fatalf("Languages = %v", res.Languages)
	}
	if got := res.Languages["FR"].Value("UI_A"); got != "fr" {
		t.Errorf("FR UI_A = %q", got)
	}
	if got := res.Languages["DE"].Len(); got != 2 {
		t.Errorf("DE keys = %d, want 2", got)
	}

	imported := ImportFile("pack.zip", data)
	if !imported.IsMultiLanguage || imported.Languages["DE"].Value("UI_A") != "de" {
		t.Errorf("ImportFile = %+v", imported)
	}
}

func TestParseArchive_NoTextFiles(t *testing.T) {
	res := ParseArchive(buildZip(t, member{"a.json", "{}"}))
	if res.Success || len(res.Errors) != 1 || res.Errors[0] != ErrNoArchiveFiles {
		t.Fatalf("res = %+v", res)
	}
}

func TestParseArchive_NotAZip(t *testing.T) {
	res := ParseArchive([]byte("plain"))
	if res.Success || !strings.HasPrefix(res.Errors[0], "ZIP error: ") {
		t.Fatalf("res = %+v", res)
	}
}

func TestImportFile_Dispatch(t *testing.T) {
	if res := ImportFile("pack.zip", buildZip(t, member{"UI_DE.txt", "UI_DE = {\n UI_A = \"a\",\n}"})); res.Format != FormatArchive || !res.Success || res.LangCode != "DE" {
		t.Errorf("zip: %+v", res)
	}

	utf16 := []byte{0xFF, 0xFE}
	for _, r := range "UI_ES = {\n UI_A = \"hola\",\n}\n" {
		utf16 = append(utf16, byte(r), 0)
	}
	res := ImportFile("UI_ES.txt", utf16)
	if res.Format != FormatText || res.Translations.Value("UI_A") != "hola" {
		t.Errorf("utf16 txt: %+v", res)
	}

	if res := ImportFile("notes", []byte("just words")); res.Success || res.Errors[0] != ErrUnknownFormat {
		t.Errorf("unknown: %+v", res)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := os.WriteFile(path, []byte(`{"translations":{"UI_A":"a"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != FormatJSON || res.Translations.Value("UI_A") != "a" {
		t.Fatalf("res = %+v", res)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateAgainst(t *testing.T) {
	ref := mapping.FromPairs("UI_A", "Page %1", "UI_B", "B", "UI_C", "C")
	imported := mapping.FromPairs("UI_A", "Seite", "UI_B", "b", "UI_X", "x")

	v := ValidateAgainst(imported, ref)
	if !reflect.DeepEqual(v.Valid, []string{"UI_B"}) {
		t.Errorf("Valid = %v", v.Valid)
	}
	if !reflect.DeepEqual(v.Extra, []string{"UI_X"}) {
		t.Errorf("Extra = %v", v.Extra)
	}
	if !reflect.DeepEqual(v.Missing, []string{"UI_C"}) {
		t.Errorf("Missing = %v", v.Missing)
	}
	if len(v.PlaceholderIssues) != 1 || v.PlaceholderIssues[0].Warnings[0] != "Missing placeholder: %1" {
		t.Errorf("PlaceholderIssues = %+v", v.PlaceholderIssues)
	}

	s := Summarize(&Result{Format: FormatJSON, Translations: imported}, v)
	if s.TotalKeys != 3 || s.ValidKeys != 1 || s.MissingKeys != 1 || s.ExtraKeys != 1 || s.PlaceholderIssues != 1 || s.HasErrors {
		t.Errorf("Summary = %+v", s)
	}
}
