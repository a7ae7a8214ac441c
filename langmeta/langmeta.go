// Package langmeta maps Project Zomboid language codes (EN, PTBR, CH, ...)
// to display metadata: the English name used in menus, the native name and
// an emoji flag.
package langmeta

import "strings"

// Meta describes language display metadata.
type Meta struct {
	Name string
	Flag string
}

// Language is a game language code with its English display name. It is also
// the element type of the zomboidLanguages list in the language manifest.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Builtin lists the languages the game ships, in menu order.
var Builtin = []Language{
	{"EN", "English"},
	{"CN", "Chinese (Simplified)"},
	{"FR", "French"},
	{"DE", "German"},
	{"ES", "Spanish"},
	{"IT", "Italian"},
	{"JP", "Japanese"},
	{"KO", "Korean"},
	{"PL", "Polish"},
	{"PTBR", "Portuguese (Brazil)"},
	{"RU", "Russian"},
	{"TR", "Turkish"},
	{"UA", "Ukrainian"},
	{"TH", "Thai"},
	{"AR", "Arabic"},
	{"CA", "Catalan"},
	{"CH", "Traditional Chinese"},
	{"CS", "Czech"},
	{"DA", "Danish"},
	{"EE", "Estonian"},
	{"FI", "Finnish"},
	{"HU", "Hungarian"},
	{"ID", "Indonesian"},
	{"NL", "Dutch"},
	{"NO", "Norwegian"},
	{"PH", "Tagalog"},
	{"PT", "Portuguese"},
	{"RO", "Romanian"},
	{"VI", "Vietnamese"},
}

// gameTags maps game codes to BCP 47 tags where they differ from a plain
// lowercase of the code.
var gameTags = map[string]string{
	"CN":   "zh-CN",
	"CH":   "zh-TW",
	"JP":   "ja",
	"PTBR": "pt-BR",
	"UA":   "uk",
	"EE":   "et",
	"PH":   "tl",
}

// Registry contains native names and flags keyed by BCP 47 tag.
var Registry = map[string]Meta{
	"ar":    {Name: "العربية", Flag: "🇸🇦"},
	"ca":    {Name: "Català", Flag: "🇪🇸"},
	"cs":    {Name: "Čeština", Flag: "🇨🇿"},
	"da":    {Name: "Dansk", Flag: "🇩🇰"},
	"de":    {Name: "Deutsch", Flag: "🇩🇪"},
	"en":    {Name: "English", Flag: "🇺🇸"},
	"es":    {Name: "Español", Flag: "🇪🇸"},
	"et":    {Name: "Eesti", Flag: "🇪🇪"},
	"fi":    {Name: "Suomi", Flag: "🇫🇮"},
	"fr":    {Name: "Français", Flag: "🇫🇷"},
	"hu":    {Name: "Magyar", Flag: "🇭🇺"},
	"id":    {Name: "Bahasa Indonesia", Flag: "🇮🇩"},
	"it":    {Name: "Italiano", Flag: "🇮🇹"},
	"ja":    {Name: "日本語", Flag: "🇯🇵"},
	"ko":    {Name: "한국어", Flag: "🇰🇷"},
	"nl":    {Name: "Nederlands", Flag: "🇳🇱"},
	"no":    {Name: "Norsk", Flag: "🇳🇴"},
	"pl":    {Name: "Polski", Flag: "🇵🇱"},
	"pt":    {Name: "Português", Flag: "🇵🇹"},
	"pt-BR": {Name: "Português (Brasil)", Flag: "🇧🇷"},
	"ro":    {Name: "Română", Flag: "🇷🇴"},
	"ru":    {Name: "Русский", Flag: "🇷🇺"},
	"th":    {Name: "ไทย", Flag: "🇹🇭"},
	"tl":    {Name: "Tagalog", Flag: "🇵🇭"},
	"tr":    {Name: "Türkçe", Flag: "🇹🇷"},
	"uk":    {Name: "Українська", Flag: "🇺🇦"},
	"vi":    {Name: "Tiếng Việt", Flag: "🇻🇳"},
	"zh-CN": {Name: "简体中文", Flag: "🇨🇳"},
	"zh-TW": {Name: "繁體中文", Flag: "🇹🇼"},
}

// Tag returns the BCP 47 tag for a game language code.
func Tag(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if t, ok := gameTags[code]; ok {
		return t
	}
	return strings.ToLower(code)
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns native-name metadata for a game code or a BCP 47 tag,
// falling back to the base language and finally to the input itself.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	if m, ok := Registry[Tag(lang)]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{Name: lang, Flag: ""}
}

// Known returns Builtin followed by the manifest languages it does not
// already contain.
func Known(manifest []Language) []Language {
	out := make([]Language, len(Builtin), len(Builtin)+len(manifest))
	copy(out, Builtin)
	seen := make(map[string]bool, len(out))
	for _, l := range out {
		seen[l.Code] = true
	}
	for _, l := range manifest {
		if l.Code == "" || seen[l.Code] {
			continue
		}
		seen[l.Code] = true
		out = append(out, l)
	}
	return out
}

// Name returns the English display name of code among known, or code itself.
func Name(code string, known []Language) string {
	for _, l := range known {
		if l.Code == code && l.Name != "" {
			return l.Name
		}
	}
	return code
}
