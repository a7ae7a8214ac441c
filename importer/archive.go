package importer

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/bsj-tools/transkit/luatable"
	"github.com/bsj-tools/transkit/mapping"
)

// FileInfo describes one archive member that contributed keys.
type FileInfo struct {
	Path     string `json:"path"`
	Category string `json:"category"`
	LangCode string `json:"langCode"`
	KeyCount int    `json:"keyCount"`
}

// ArchiveResult is the outcome of ParseArchive.
type ArchiveResult struct {
	Success      bool
	Translations *mapping.Mapping
	// Languages groups the keys by the language of the member they came
	// from. Members whose language cannot be told are only in Translations.
	Languages       map[string]*mapping.Mapping
	IsMultiLanguage bool
	Files           []FileInfo
	LangCode        string
	Errors          []string
}

var langDirRe = regexp.MustCompile(`^[A-Z]{2,4}$`)

// memberLanguage returns the language of an archive member: the one its
// table declares, else its directory name when that looks like a code.
func memberLanguage(name, declared string) string {
	if declared != "" {
		return declared
	}
	if dir := path.Base(path.Dir(name)); langDirRe.MatchString(dir) {
		return dir
	}
	return ""
}

// ParseArchive reads every .txt member of a zip archive, in archive order,
// and merges their keys. Later files win on key collisions. The language
// code is taken from the first file that declares one; an archive holding
// several languages also reports them per language.
func ParseArchive(data []byte) *ArchiveResult {
	res := &ArchiveResult{Translations: mapping.New(), Languages: map[string]*mapping.Mapping{}}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		res.Errors = append(res.Errors, "ZIP error: "+err.Error())
		return res
	}

	var members []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".txt") {
			continue
		}
		members = append(members, f)
	}
	if len(members) == 0 {
		res.Errors = append(res.Errors, ErrNoArchiveFiles)
		return res
	}

	for _, f := range members {
		raw, err := readMember(f)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to read %s: %v", f.Name, err))
			continue
		}

		parsed := ParseText(luatable.Decode(raw), path.Base(f.Name))
		if !parsed.Success {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", f.Name, strings.Join(parsed.Errors, ", ")))
			continue
		}

		lang := memberLanguage(f.Name, parsed.LangCode)
		res.Translations.Assign(parsed.Translations)
		if lang != "" {
			if res.Languages[lang] == nil {
				res.Languages[lang] = mapping.New()
			}
			res.Languages[lang].Assign(parsed.Translations)
		}
		res.Files = append(res.Files, FileInfo{
			Path:     f.Name,
			Category: parsed.Category,
			LangCode: lang,
			KeyCount: parsed.Translations.Len(),
		})
		if res.LangCode == "" && lang != "" {
			res.LangCode = lang
		}
	}

	res.IsMultiLanguage = len(res.Languages) > 1
	res.Success = res.Translations.Len() > 0
	return res
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
