package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/bsj-tools/transkit/category"
	"github.com/bsj-tools/transkit/export"
	"github.com/bsj-tools/transkit/mapping"
)

// ErrNothingToSubmit is returned when the change-set is empty.
var ErrNothingToSubmit = errors.New("no translations to submit")

// DefaultFooter closes every generated pull request description.
const DefaultFooter = "*Submitted via [Burd's Survival Journals Translation Tool](https://theburd.github.io/PZ-BurdSurvivalJournals/)*"

// Progress reports a step of the submission and its completion percentage.
type Progress func(step string, percent int)

// Submission describes one pull request.
type Submission struct {
	// Changes holds, per language, the keys to submit.
	Changes map[string]*mapping.Mapping
	// Base holds, per language, the remote content the changes apply to.
	// A committed table is Base with Changes applied, so untouched keys of
	// a changed category are kept. Without Base only changed keys are
	// written.
	Base map[string]*mapping.Mapping
	// Assembler renders the tables and supplies the layouts they are
	// committed under.
	Assembler *export.Assembler

	Title     string
	Body      string
	LangNames map[string]string
	Footer    string

	OnProgress Progress
}

// Result is a created pull request.
type Result struct {
	URL       string
	Number    int
	Branch    string
	Languages []string
}

func (s *Submission) progress(step string, pct float64) {
	if s.OnProgress != nil {
		s.OnProgress(step, int(math.Round(pct)))
	}
}

// Submit runs the submission sequence: user, fork, upstream head, branch,
// one commit per (language, category, layout) with changes, pull request.
// The first failing step aborts the sequence.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Result, error) {
	langs := sortedLanguages(sub.Changes)
	if len(langs) == 0 {
		return nil, ErrNothingToSubmit
	}
	if sub.Assembler == nil {
		return nil, errors.New("submission has no assembler")
	}

	sub.progress("Getting user info...", 0)
	user, err := c.User(ctx)
	if err != nil {
		return nil, err
	}

	sub.progress("Checking for fork...", 10)
	if _, err := c.GetOrCreateFork(ctx, user.Login); err != nil {
		return nil, err
	}

	sub.progress("Getting latest commit...", 20)
	baseSHA, err := c.LatestCommitSHA(ctx)
	if err != nil {
		return nil, err
	}

	branch := fmt.Sprintf("translation/%s-%d", strings.Join(langs, "-"), c.Now().UnixMilli())
	sub.progress("Creating branch...", 30)
	if err := c.CreateBranch(ctx, user.Login, branch, baseSHA); err != nil {
		return nil, err
	}

	layouts := sub.Assembler.Layouts
	total := 0
	for _, lang := range langs {
		total += len(changedCategories(sub.Changes[lang], sub.Assembler)) * len(layouts)
	}

	committed := 0
	for _, lang := range langs {
		content := sub.Changes[lang]
		if base := sub.Base[lang]; base != nil {
			content = base.Clone()
			content.Assign(sub.Changes[lang])
		}
		for _, cat := range changedCategories(sub.Changes[lang], sub.Assembler) {
			table := sub.Assembler.BuildCategoryFile(cat, lang, content)
			name := fmt.Sprintf("%s_%s.txt", cat, lang)
			message := fmt.Sprintf("Add/Update %s %s translation", lang, cat)

			for _, l := range layouts {
				sub.progress(fmt.Sprintf("Committing %s (%s)...", name, l.Name), 30+float64(committed)/float64(total)*60)
				p := path.Join(strings.Trim(l.Path, "/"), lang, name)
				sha, err := c.FileSHA(ctx, user.Login, p, branch)
				if err != nil {
					return nil, err
				}
				if err := c.PutFile(ctx, user.Login, p, table, message, branch, sha); err != nil {
					return nil, err
				}
				committed++
				c.Log.Debug().Str("path", p).Bool("update", sha != "").Msg("committed")
			}
		}
	}

	sub.progress("Creating pull request...", 95)
	title := sub.Title
	if title == "" {
		title = Title(langs, sub.LangNames)
	}
	body := sub.Body
	if body == "" {
		footer := sub.Footer
		if footer == "" {
			footer = DefaultFooter
		}
		body = Body(langs, sub.Changes, sub.LangNames, sub.Assembler.Categories, footer)
	}
	pr, err := c.CreatePullRequest(ctx, title, body, user.Login+":"+branch)
	if err != nil {
		return nil, err
	}

	sub.progress("Done!", 100)
	return &Result{URL: pr.HTMLURL, Number: pr.Number, Branch: branch, Languages: langs}, nil
}

func sortedLanguages(changes map[string]*mapping.Mapping) []string {
	var langs []string
	for lang, m := range changes {
		if m.Len() > 0 {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

func categoriesOf(a *export.Assembler) []string {
	if len(a.Categories) > 0 {
		return a.Categories
	}
	return category.Categories
}

// changedCategories lists the categories in which changes has keys.
func changedCategories(changes *mapping.Mapping, a *export.Assembler) []string {
	byCat := category.Categorize(changes)
	var out []string
	for _, cat := range categoriesOf(a) {
		if byCat[cat].Len() > 0 {
			out = append(out, cat)
		}
	}
	return out
}

func encodeContent(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func displayName(code string, names map[string]string) string {
	if n := names[code]; n != "" {
		return n
	}
	return code
}

// Title generates a pull request title for langs.
func Title(langs []string, names map[string]string) string {
	switch {
	case len(langs) == 1:
		return fmt.Sprintf("Add/Update %s translation", displayName(langs[0], names))
	case len(langs) <= 3:
		shown := make([]string, len(langs))
		for i, l := range langs {
			shown[i] = displayName(l, names)
		}
		return fmt.Sprintf("Add/Update %s translations", strings.Join(shown, ", "))
	default:
		return fmt.Sprintf("Add/Update translations for %d languages", len(langs))
	}
}

// Body generates a pull request description listing the changed key counts
// per language and category.
func Body(langs []string, changes map[string]*mapping.Mapping, names map[string]string, categories []string, footer string) string {
	if len(categories) == 0 {
		categories = category.Categories
	}

	var b strings.Builder
	b.WriteString("## Translation Submission\n\n")
	b.WriteString("This PR adds/updates translations for the following languages:\n\n")
	for _, lang := range langs {
		fmt.Fprintf(&b, "- **%s** (%s): %d changed/new keys\n", displayName(lang, names), lang, changes[lang].Len())
	}

	b.WriteString("\n### Categories Updated\n\n")
	for _, lang := range langs {
		byCat := category.Categorize(changes[lang])
		fmt.Fprintf(&b, "**%s:**\n", displayName(lang, names))
		for _, cat := range categories {
			if n := byCat[cat].Len(); n > 0 {
				fmt.Fprintf(&b, "- %s: %d keys\n", cat, n)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	b.WriteString(footer + "\n")
	return b.String()
}

// Readiness explains whether a submission can be attempted.
type Readiness struct {
	CanSubmit       bool
	IsAuthenticated bool
	HasTranslations bool
	Reason          string
}

// CheckReadiness reports whether changes can be submitted.
func CheckReadiness(authenticated bool, changes map[string]*mapping.Mapping) Readiness {
	r := Readiness{IsAuthenticated: authenticated, HasTranslations: len(sortedLanguages(changes)) > 0}
	switch {
	case !r.IsAuthenticated:
		r.Reason = "Not connected to GitHub"
	case !r.HasTranslations:
		r.Reason = "No translations to submit"
	default:
		r.CanSubmit = true
	}
	return r
}
