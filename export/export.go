// Package export assembles translation output: per-category table files, the
// installable mod archive, and JSON backups.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bsj-tools/transkit/category"
	"github.com/bsj-tools/transkit/luatable"
	"github.com/bsj-tools/transkit/mapping"
)

// Layout is one install location of the translation tables inside the mod.
type Layout struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// File is one generated table file.
type File struct {
	Name    string
	Content string
}

// Assembler builds export artifacts. Output is fully determined by its fields
// and the translations passed in.
type Assembler struct {
	// Reference orders keys and groups them in generated tables.
	Reference *mapping.Mapping
	// Categories lists the tables to generate, in order.
	Categories []string
	// Layouts receive a copy of every table in the packaged archive.
	Layouts []Layout
	// ModName is the display name used in the README and backups.
	ModName     string
	RepoURL     string
	ToolVersion string
	Now         func() time.Time
}

func (a *Assembler) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

func (a *Assembler) categories() []string {
	if len(a.Categories) == 0 {
		return category.Categories
	}
	return a.Categories
}

// BuildCategoryFile returns the table for one category of lang.
func (a *Assembler) BuildCategoryFile(cat, lang string, translations *mapping.Mapping) string {
	return luatable.Serialize(cat, lang, category.Filter(translations, cat), luatable.Options{
		IncludeComments: true,
		Reference:       category.Filter(a.Reference, cat),
	})
}

// BuildAllCategoryFiles returns one table per category, in category order.
// Categories without keys still produce a (empty) table.
func (a *Assembler) BuildAllCategoryFiles(lang string, translations *mapping.Mapping) []File {
	cats := a.categories()
	files := make([]File, 0, len(cats))
	for _, cat := range cats {
		files = append(files, File{
			Name:    luatable.FileName(cat, lang),
			Content: a.BuildCategoryFile(cat, lang, translations),
		})
	}
	return files
}

// ArchiveName is the suggested file name of the packaged archive.
func (a *Assembler) ArchiveName(lang string) string {
	return fmt.Sprintf("%s_Translation_%s.zip", a.modSlug(), lang)
}

// BackupName is the suggested file name of a single-language backup.
func (a *Assembler) BackupName(lang string) string {
	return fmt.Sprintf("BSJ_Translation_%s_%d.json", lang, a.now().UnixMilli())
}

// MultiBackupName is the suggested file name of a multi-language backup.
func (a *Assembler) MultiBackupName() string {
	return fmt.Sprintf("BSJ_Translations_Multi_%d.json", a.now().UnixMilli())
}

func (a *Assembler) modSlug() string {
	if len(a.Layouts) > 0 {
		// Contents/mods/<Folder>/...
		parts := strings.Split(strings.Trim(a.Layouts[0].Path, "/"), "/")
		if len(parts) > 2 && parts[0] == "Contents" && parts[1] == "mods" {
			return parts[2]
		}
	}
	return "Mod"
}

// BuildPackagedArchive returns a zip holding every table of lang under each
// layout, plus README.txt.
func (a *Assembler) BuildPackagedArchive(lang string, translations *mapping.Mapping) ([]byte, error) {
	files := a.BuildAllCategoryFiles(lang, translations)
	modified := a.now()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name, content string) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return fmt.Errorf("adding %s: %w", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	for _, l := range a.Layouts {
		dir := path.Join(strings.Trim(l.Path, "/"), lang)
		for _, f := range files {
			if err := add(path.Join(dir, f.Name), f.Content); err != nil {
				return nil, err
			}
		}
	}
	if err := add("README.txt", a.readme(lang)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finishing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Assembler) readme(lang string) string {
	var b strings.Builder
	title := fmt.Sprintf("%s - %s Translation", a.ModName, lang)
	fmt.Fprintf(&b, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))
	fmt.Fprintf(&b, "Generated by transkit v%s\nDate: %s\n\n", a.ToolVersion, a.now().Format(time.RFC3339))
	b.WriteString("INSTALLATION:\n-------------\n")
	b.WriteString("1. Extract this ZIP file\n")
	b.WriteString("2. Copy the \"Contents\" folder to your Project Zomboid mods directory\n")
	b.WriteString("3. The files will be automatically merged with the mod\n\n")
	b.WriteString("LOCATION OPTIONS:\n-----------------\n")
	b.WriteString("Option A - Workshop Mod (Recommended):\n  Steam/steamapps/workshop/content/108600/[mod-id]/\n\n")
	fmt.Fprintf(&b, "Option B - Local Mod:\n  %%UserProfile%%/Zomboid/mods/%s/\n\n", a.modSlug())
	if len(a.Layouts) > 0 {
		b.WriteString("FOLDER STRUCTURE:\n-----------------\nThis ZIP contains translations for:\n")
		for _, l := range a.Layouts {
			fmt.Fprintf(&b, "- %s (%s)\n", l.Name, l.Path)
		}
		b.WriteString("\n")
	}
	if a.RepoURL != "" {
		fmt.Fprintf(&b, "CONTRIBUTING:\n-------------\nTo contribute your translation to the official mod, visit:\n%s\n\n", a.RepoURL)
	}
	fmt.Fprintf(&b, "Thank you for helping translate %s!\n", a.ModName)
	return b.String()
}

type backupMeta struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	LangCode   string   `json:"langCode,omitempty"`
	ExportedAt string   `json:"exportedAt"`
	KeyCount   *int     `json:"keyCount,omitempty"`
	Languages  []string `json:"languages,omitempty"`
}

type backup struct {
	Meta         backupMeta                  `json:"_meta"`
	Translations *mapping.Mapping            `json:"translations,omitempty"`
	Languages    map[string]*mapping.Mapping `json:"languages,omitempty"`
}

func (a *Assembler) exportedAt() string {
	return a.now().Format("2006-01-02T15:04:05.000Z")
}

// BuildStructuredBackup returns the single-language JSON backup document.
func (a *Assembler) BuildStructuredBackup(lang string, translations *mapping.Mapping) ([]byte, error) {
	if translations == nil {
		translations = mapping.New()
	}
	n := translations.Len()
	doc := backup{
		Meta: backupMeta{
			Name:       a.ModName + " Translation",
			Version:    a.ToolVersion,
			LangCode:   lang,
			ExportedAt: a.exportedAt(),
			KeyCount:   &n,
		},
		Translations: translations,
	}
	return encodeBackup(doc)
}

// BuildMultiBackup returns the multi-language JSON backup document.
// Languages are listed in sorted order.
func (a *Assembler) BuildMultiBackup(byLang map[string]*mapping.Mapping) ([]byte, error) {
	langs := make([]string, 0, len(byLang))
	for l := range byLang {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	languages := make(map[string]*mapping.Mapping, len(byLang))
	for l, m := range byLang {
		if m == nil {
			m = mapping.New()
		}
		languages[l] = m
	}
	doc := backup{
		Meta: backupMeta{
			Name:       a.ModName + " Multi-Language Translation",
			Version:    a.ToolVersion,
			ExportedAt: a.exportedAt(),
			Languages:  langs,
		},
		Languages: languages,
	}
	return encodeBackup(doc)
}

// encodeBackup indents doc without HTML-escaping, so values such as
// "<RGB:1,0,0>" stay readable.
func encodeBackup(doc backup) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding backup: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Stats is the key count of an export, total and per category.
type Stats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"byCategory"`
}

// Stats counts the keys of translations per category.
func (a *Assembler) Stats(translations *mapping.Mapping) Stats {
	byCat := category.Categorize(translations)
	st := Stats{Total: translations.Len(), ByCategory: make(map[string]int, len(a.categories()))}
	for _, c := range a.categories() {
		st.ByCategory[c] = byCat[c].Len()
	}
	return st
}
