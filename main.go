// transkit is a translation kit for Burd's Survival Journals: fetch, edit,
// import, export and submit Project Zomboid translation tables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bsj-tools/transkit/auth"
	"github.com/bsj-tools/transkit/category"
	"github.com/bsj-tools/transkit/config"
	"github.com/bsj-tools/transkit/export"
	"github.com/bsj-tools/transkit/github"
	"github.com/bsj-tools/transkit/i18n"
	"github.com/bsj-tools/transkit/importer"
	"github.com/bsj-tools/transkit/langmeta"
	"github.com/bsj-tools/transkit/lockfile"
	"github.com/bsj-tools/transkit/luatable"
	"github.com/bsj-tools/transkit/mapping"
	"github.com/bsj-tools/transkit/merge"
	"github.com/bsj-tools/transkit/placeholder"
	"github.com/bsj-tools/transkit/proxy"
	"github.com/bsj-tools/transkit/remote"
	"github.com/bsj-tools/transkit/session"
	"github.com/bsj-tools/transkit/storage"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// toolVersion keys the cached baseline and is stamped into exports.
const toolVersion = "3.0.0"

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

// The log helpers translate format before applying args.

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "transkit",
		Short: "Translation kit for Burd's Survival Journals",
		Long: `transkit — translation kit for Burd's Survival Journals.

Fetches the English baseline and existing translations from the mod
repository, keeps your work locally, imports and exports translation files,
and submits what you changed as a GitHub pull request.

Commands:
  status      Show baseline, languages and local work
  languages   List known languages
  fetch       Load a language from the repository into local work
  set         Edit one key
  import      Import a .txt, .json or .zip translation file
  export      Export local work as a mod archive, backup or tables
  validate    Check local work against the English baseline
  diff        Show what changed since the repository version
  submit      Open a pull request with your changes
  auth        Sign in to GitHub
  proxy       Run the OAuth token exchange proxy
  backup      Save or restore all local work
  clear       Discard local work or caches
  config      Show the resolved configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Directory containing .transkit.yaml and .env")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newStatusCmd(),
		newLanguagesCmd(),
		newFetchCmd(),
		newSetCmd(),
		newImportCmd(),
		newExportCmd(),
		newValidateCmd(),
		newDiffCmd(),
		newSubmitCmd(),
		newAuthCmd(),
		newProxyCmd(),
		newBackupCmd(),
		newClearCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Application wiring
// ---------------------------------------------------------------------------

type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	cache  *storage.Cache
	remote *remote.Client
}

func newLogger(level string, debug bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

func loadApp() (*app, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel, verbose)

	var store *storage.FileStore
	if cfg.DataDir != "" {
		store = storage.NewFileStore(cfg.DataDir)
	} else if store, err = storage.OpenDefault(); err != nil {
		return nil, err
	}
	log.Debug().Str("dir", store.Dir()).Str("config", cfg.Path).Msg("data directory")

	rc := remote.New(cfg.Repo.Owner, cfg.Repo.Name, cfg.Repo.Branch, cfg.Layouts[0].Path, cfg.Categories)
	rc.RawBase = cfg.Repo.RawBase
	rc.APIBase = cfg.Repo.APIBase
	rc.Log = log.With().Str("component", "remote").Logger()

	return &app{
		cfg:    cfg,
		log:    log,
		cache:  storage.NewCache(store, toolVersion, log.With().Str("component", "cache").Logger()),
		remote: rc,
	}, nil
}

// openSession initializes a session. Being offline is reported, not
// returned: commands that only need local data keep working.
func (a *app) openSession(ctx context.Context) (*session.Session, error) {
	sess := session.New(session.Options{
		Fetcher:       a.remote,
		Cache:         a.cache,
		Reference:     a.cfg.Reference,
		Categories:    a.cfg.Categories,
		AutosaveDelay: a.cfg.AutosaveDelay,
		Logger:        a.log.With().Str("component", "session").Logger(),
	})
	sess.Subscribe(session.EventError, func(ev session.Event) {
		logWarning("%s", ev.Message)
	})
	sess.Subscribe(session.EventLoadingStart, func(ev session.Event) {
		if ev.Phase == "switch" {
			a.log.Debug().Str("lang", ev.Lang).Msg("switching language")
		}
	})

	if err := sess.Initialize(ctx); err != nil && !errors.Is(err, session.ErrOffline) {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

// withSession loads the app, opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app, sess *session.Session) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a, sess)
	if err := sess.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// switchTo activates lang, loading remote content unless offline.
func switchTo(ctx context.Context, sess *session.Session, lang string) error {
	if sess.IsOffline() {
		return sess.SwitchLanguageLocal(lang)
	}
	return sess.SwitchLanguage(ctx, lang)
}

func (a *app) assembler(reference *mapping.Mapping) *export.Assembler {
	return &export.Assembler{
		Reference:   reference,
		Categories:  a.cfg.Categories,
		Layouts:     a.cfg.Layouts,
		ModName:     a.cfg.ModName,
		RepoURL:     a.cfg.RepoURL(),
		ToolVersion: toolVersion,
	}
}

// updateSourceLock loads the source lock, applies fn and saves it.
func (a *app) updateSourceLock(fn func(lf *lockfile.LockFile)) error {
	lf, err := lockfile.Load(a.cache.Store())
	if err != nil {
		return err
	}
	fn(lf)
	return lf.Save()
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("transkit version %s (tool %s)\n", version, toolVersion)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// status (read-only: baseline, languages and local work)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var withRemote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show baseline, languages and local work",
		Long: `Show the repository, the cached English baseline, and completion of
every language that exists remotely or has local work.

With --remote, every remote language is downloaded so completion includes
the translations already in the repository.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				return runStatus(ctx, a, sess, withRemote)
			})
		},
	}
	cmd.Flags().BoolVar(&withRemote, "remote", false, "Include repository content in completion")
	return cmd
}

func runStatus(ctx context.Context, a *app, sess *session.Session, withRemote bool) error {
	baseline := sess.Baseline()

	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Project"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %-14s %s (%s)\n", i18n.T("Repository:"), a.cfg.RepoURL(), a.cfg.Repo.Branch)
	if a.cfg.Path != "" {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", i18n.T("Config:"), a.cfg.Path)
	}
	fmt.Fprintf(os.Stderr, "  %-14s %s, %s keys\n", i18n.T("Reference:"), sess.Reference(), humanize.Comma(int64(baseline.Len())))
	if t, ok := a.cache.LastSync(); ok {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", i18n.T("Last sync:"), humanize.Time(t))
	}
	u := a.cache.Usage()
	fmt.Fprintf(os.Stderr, "  %-14s %s (work %s, baseline %s)\n", i18n.T("Storage:"),
		humanize.Bytes(uint64(u.Total)), humanize.Bytes(uint64(u.Translations)), humanize.Bytes(uint64(u.Baseline)))
	authn := auth.New(a.cfg.OAuth.ClientID, a.cfg.OAuth.ProxyURL, a.cfg.OAuth.Scopes, a.cache)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", i18n.T("GitHub:"), authn.Status())
	fmt.Fprintln(os.Stderr)

	if sess.IsOffline() {
		logWarning("Offline: showing local work only")
	}

	langs := statusLanguages(sess)
	if len(langs) == 0 {
		logInfo("No languages found")
		return nil
	}

	var remoteContent map[string]*remote.LanguageResult
	if withRemote && !sess.IsOffline() {
		toFetch := filterOutLang(sess.RemoteLanguages(), sess.Reference())
		logInfo("Downloading %d languages...", len(toFetch))
		remoteContent = a.remote.FetchLanguages(ctx, toFetch)
	}

	width := langColumnWidth(langs)
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Translation Statistics"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "%-*s %-8s %-10s %-16s %s\n", width+3, i18n.T("Lang"), i18n.T("Remote"), i18n.T("Local"), i18n.T("Modified"), i18n.T("Complete"))

	for _, code := range langs {
		local := a.cache.Translations(code)
		content := local.Clone()
		if res := remoteContent[code]; res != nil && !res.AllFailed() {
			content = merge.Merge(local, res.Translations, merge.ModeFill)
		}
		st := category.Completion(content, baseline)

		remoteMark := "-"
		if sess.InRemote(code) {
			remoteMark = "✓"
		}
		modified := "-"
		if meta, ok := a.cache.Metadata(code); ok {
			modified = humanize.Time(meta.LastModified)
		}
		fmt.Fprintf(os.Stderr, "%s %-8s %-10s %-16s %s\n",
			langCell(code, width), remoteMark, humanize.Comma(int64(local.Len())), modified,
			progressBar(st.Percentage, 20))
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// statusLanguages is every remote language plus every language with local
// work, reference excluded, sorted.
func statusLanguages(sess *session.Session) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range append(sess.RemoteLanguages(), sess.LanguagesWithLocalWork()...) {
		if l == sess.Reference() || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------
// languages
// ---------------------------------------------------------------------------

func newLanguagesCmd() *cobra.Command {
	var onlyNew bool

	cmd := &cobra.Command{
		Use:     "languages",
		Aliases: []string{"langs"},
		Short:   "List known languages",
		Long: `List the game's languages with display names, whether each exists in the
repository, and whether you have local work for it.

Use --new to list only languages nobody has started yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				list := sess.AllLanguages()
				if onlyNew {
					list = sess.NewLanguages()
				}
				local := map[string]bool{}
				for _, l := range sess.LanguagesWithLocalWork() {
					local[l] = true
				}
				for _, l := range list {
					remoteMark, localMark := " ", " "
					if l.InRemote {
						remoteMark = "R"
					}
					if local[l.Code] {
						localMark = "L"
					}
					fmt.Printf("%s%s %-5s %-4s %-28s %s\n", remoteMark, localMark, l.Code, l.Flag, l.Name, l.Native)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&onlyNew, "new", false, "Only languages not yet in the repository")
	return cmd
}

// ---------------------------------------------------------------------------
// fetch
// ---------------------------------------------------------------------------

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <lang>",
		Short: "Load a language from the repository into local work",
		Long: `Download a language from the repository and merge it into your local
work. Keys you have already translated are kept; empty keys are filled from
the repository.

Examples:
  transkit fetch FR
  transkit fetch PTBR`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang := normalizeLang(args[0])
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				if sess.IsOffline() {
					return errors.New(i18n.T("cannot fetch while offline"))
				}
				if lang == sess.Reference() {
					logSuccess("Baseline: %s", i18n.N("%d key", "%d keys", sess.Baseline().Len()))
					return nil
				}
				if err := sess.SwitchLanguage(ctx, lang); err != nil {
					return err
				}
				if err := sess.Flush(); err != nil {
					return err
				}
				err := a.updateSourceLock(func(lf *lockfile.LockFile) {
					lf.RecordMissing(lang, sess.Working(), sess.Baseline())
					if sess.Baseline().Len() > 0 {
						lf.Clean(lang, sess.Baseline())
					}
				})
				if err != nil {
					return err
				}
				if !sess.InRemote(lang) {
					logInfo("%s is not in the repository yet; starting from local work", lang)
				}
				printCategoryStats(sess.CategoryStats(), a.cfg.Categories)
				st := sess.CompletionStats()
				logSuccess("%s: %d of %d keys translated (%d%%)", lang, st.Translated, st.Total, st.Percentage)
				return nil
			})
		},
	}
}

func printCategoryStats(stats map[string]category.Stats, order []string) {
	fmt.Fprintf(os.Stderr, "\n%-12s %-10s %-8s %-8s %s\n", i18n.T("Category"), i18n.T("Done"), i18n.T("Empty"), i18n.T("Missing"), i18n.T("Complete"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	for _, cat := range order {
		st, ok := stats[cat]
		if !ok || st.Total == 0 {
			continue
		}
		fmt.Fprintf(os.Stderr, "%-12s %-10s %-8d %-8d %s\n", cat,
			fmt.Sprintf("%d/%d", st.Translated, st.Total), st.Empty, st.Missing, progressBar(st.Percentage, 20))
	}
	fmt.Fprintln(os.Stderr)
}

// ---------------------------------------------------------------------------
// set
// ---------------------------------------------------------------------------

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <lang> <key> <value>",
		Short: "Edit one key",
		Long: `Set one translation key. The value is checked against the English
baseline's placeholders (%1, %2, %s, %d) and a warning is printed for every
missing or extra one.

Example:
  transkit set FR UI_BSJ_Title "Journaux de survie"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, key, value := normalizeLang(args[0]), args[1], args[2]
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				ref := sess.Baseline()
				if refValue, ok := ref.Get(key); ok {
					for _, w := range placeholder.Validate(key, value, refValue).Warnings {
						logWarning("%s: %s", key, w)
					}
				} else if ref.Len() > 0 {
					logWarning("%s is not a key of the %s baseline", key, sess.Reference())
				}
				if _, ok := category.GetCategory(key); !ok {
					logWarning("%s does not belong to any category and will not be exported", key)
				}

				if err := switchTo(ctx, sess, lang); err != nil {
					return err
				}
				if err := sess.Update(key, value); err != nil {
					return err
				}
				if err := sess.Flush(); err != nil {
					return err
				}
				if refValue, ok := ref.Get(key); ok {
					err := a.updateSourceLock(func(lf *lockfile.LockFile) { lf.Record(lang, key, refValue) })
					if err != nil {
						return err
					}
				}
				logSuccess("%s %s = %q", lang, key, value)
				return nil
			})
		},
	}
}

// ---------------------------------------------------------------------------
// import
// ---------------------------------------------------------------------------

func newImportCmd() *cobra.Command {
	var (
		lang   string
		mode   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a .txt, .json or .zip translation file",
		Long: `Import translations into local work.

Accepted files:
  Category_LANG.txt   one translation table
  *.json              a backup exported by this tool (single or multi-language)
  *.zip               a packaged mod archive

Merge modes:
  fill       only fill keys that are missing or empty (default)
  overwrite  replace existing values
  skip       only add keys that do not exist yet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := merge.ParseMode(mode)
			if err != nil {
				return err
			}
			res, err := importer.ReadFile(args[0])
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				logWarning("%s", w)
			}
			if !res.Success {
				for _, e := range res.Errors {
					logError("%s", e)
				}
				return fmt.Errorf(i18n.T("import of %s failed"), args[0])
			}

			targets := map[string]*mapping.Mapping{}
			if res.IsMultiLanguage {
				targets = res.Languages
			} else {
				code := normalizeLang(lang)
				if code == "" {
					code = normalizeLang(res.LangCode)
				}
				if code == "" {
					return errors.New(i18n.T("cannot tell the language of this file; pass --lang"))
				}
				targets[code] = res.Translations
			}

			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				return runImport(ctx, a, sess, res, targets, m, dryRun)
			})
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Target language (default: detected from the file)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "fill", "Merge mode: fill, overwrite or skip")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without saving")
	_ = cmd.RegisterFlagCompletionFunc("mode", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"fill", "overwrite", "skip"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runImport(ctx context.Context, a *app, sess *session.Session, res *importer.Result, targets map[string]*mapping.Mapping, mode merge.Mode, dryRun bool) error {
	logInfo("Format: %s, %d files", res.Format, max(len(res.Files), 1))

	langs := make([]string, 0, len(targets))
	for l := range targets {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	for _, lang := range langs {
		imported := targets[lang]
		v := importer.ValidateAgainst(imported, sess.Baseline())
		sum := importer.Summarize(&importer.Result{Format: res.Format, LangCode: lang, Translations: imported, Errors: res.Errors}, v)
		logInfo("%s: %d keys (%d valid, %d missing, %d extra, %d placeholder issues)",
			lang, sum.TotalKeys, sum.ValidKeys, sum.MissingKeys, sum.ExtraKeys, sum.PlaceholderIssues)
		for _, issue := range v.PlaceholderIssues {
			logWarning("%s: %s", issue.Key, strings.Join(issue.Warnings, "; "))
		}

		if lang == sess.Reference() {
			logWarning("Skipping %s: the reference language cannot be edited", lang)
			continue
		}
		if err := switchTo(ctx, sess, lang); err != nil {
			return err
		}
		counts := merge.Count(sess.Working(), imported, mode)
		if !dryRun {
			merged := merge.Merge(sess.Working(), imported, mode)
			if err := sess.UpdateMany(merged); err != nil {
				return err
			}
			applied := mapping.New()
			imported.Range(func(k, v string) bool {
				if merged.Value(k) == v {
					applied.Set(k, v)
				}
				return true
			})
			if err := a.updateSourceLock(func(lf *lockfile.LockFile) { lf.RecordAll(lang, applied, sess.Baseline()) }); err != nil {
				return err
			}
		}
		logSuccess("%s (%s): %d added, %d replaced, %d unchanged", lang, mode, counts.Added, counts.Replaced, counts.Unchanged)
	}
	if dryRun {
		logInfo("Dry run: nothing was saved")
	}
	return nil
}

// ---------------------------------------------------------------------------
// export
// ---------------------------------------------------------------------------

func newExportCmd() *cobra.Command {
	var (
		format   string
		cat      string
		output   string
		allLangs bool
	)

	cmd := &cobra.Command{
		Use:   "export [lang]",
		Short: "Export local work as a mod archive, backup or tables",
		Long: `Export local work.

Formats:
  zip   mod archive with every table under each install layout, plus README.txt
  json  backup of one language (or all languages with --all-languages)
  txt   translation tables; one table with --category, otherwise all of them

The output defaults to the conventional file name in the current directory;
for txt it is a directory, and a single --category table goes to stdout when
-o is not given.

Examples:
  transkit export FR
  transkit export FR --format txt --category UI
  transkit export --all-languages --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allLangs && len(args) == 0 {
				return errors.New(i18n.T("a language is required unless --all-languages is set"))
			}
			if cat != "" && !category.IsKnown(cat) {
				return fmt.Errorf(i18n.T("unknown category %q"), cat)
			}
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				asm := a.assembler(sess.Baseline())
				if allLangs {
					return exportAll(a, asm, format, output)
				}
				return exportLanguage(a, asm, normalizeLang(args[0]), format, cat, output)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "zip", "Output format: zip, json or txt")
	cmd.Flags().StringVarP(&cat, "category", "c", "", "Export a single category table (txt only)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory")
	cmd.Flags().BoolVar(&allLangs, "all-languages", false, "Export every language with local work (json only)")
	_ = cmd.RegisterFlagCompletionFunc("category", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return category.Categories, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func exportAll(a *app, asm *export.Assembler, format, output string) error {
	if format != "json" {
		return errors.New(i18n.T("--all-languages only supports the json format"))
	}
	byLang := map[string]*mapping.Mapping{}
	for lang, entry := range a.cache.All() {
		if entry.Translations.Len() > 0 {
			byLang[lang] = entry.Translations
		}
	}
	if len(byLang) == 0 {
		return errors.New(i18n.T("no local work to export"))
	}
	data, err := asm.BuildMultiBackup(byLang)
	if err != nil {
		return err
	}
	path := outputPath(output, asm.MultiBackupName())
	if err := writeOutput(path, data); err != nil {
		return err
	}
	logSuccess("Exported %d languages to %s", len(byLang), path)
	return nil
}

func exportLanguage(a *app, asm *export.Assembler, lang, format, cat, output string) error {
	work := a.cache.Translations(lang)
	if work.Len() == 0 {
		return fmt.Errorf(i18n.T("no local work for %s; run 'transkit fetch %s' first"), lang, lang)
	}
	stats := asm.Stats(work)

	switch format {
	case "zip":
		data, err := asm.BuildPackagedArchive(lang, work)
		if err != nil {
			return err
		}
		path := outputPath(output, asm.ArchiveName(lang))
		if err := writeOutput(path, data); err != nil {
			return err
		}
		logSuccess("Exported %d keys to %s (%s)", stats.Total, path, humanize.Bytes(uint64(len(data))))

	case "json":
		data, err := asm.BuildStructuredBackup(lang, work)
		if err != nil {
			return err
		}
		path := outputPath(output, asm.BackupName(lang))
		if err := writeOutput(path, data); err != nil {
			return err
		}
		logSuccess("Exported %d keys to %s", stats.Total, path)

	case "txt":
		if cat != "" {
			content := asm.BuildCategoryFile(cat, lang, work)
			if output == "" {
				fmt.Print(content)
				return nil
			}
			if err := writeOutput(output, []byte(content)); err != nil {
				return err
			}
			logSuccess("Exported %d %s keys to %s", stats.ByCategory[cat], cat, output)
			return nil
		}
		dir := output
		if dir == "" {
			dir = "."
		}
		for _, f := range asm.BuildAllCategoryFiles(lang, work) {
			if err := writeOutput(filepath.Join(dir, f.Name), []byte(f.Content)); err != nil {
				return err
			}
		}
		logSuccess("Exported %d keys to %s", stats.Total, dir)

	default:
		return fmt.Errorf(i18n.T("unknown format %q (valid: zip, json, txt)"), format)
	}
	return nil
}

func outputPath(output, defaultName string) string {
	if output == "" {
		return defaultName
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, defaultName)
	}
	return output
}

func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <lang>",
		Short: "Check local work against the English baseline",
		Long: `Report keys with placeholder problems, keys that are not in the baseline,
keys whose English text changed after they were translated, and
per-category completion. With --strict, any placeholder problem makes the
command fail.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang := normalizeLang(args[0])
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				work := a.cache.Translations(lang)
				ref := sess.Baseline()
				v := importer.ValidateAgainst(work, ref)

				for _, issue := range v.PlaceholderIssues {
					for _, w := range issue.Warnings {
						logWarning("%s: %s", issue.Key, w)
					}
				}
				for _, key := range v.Extra {
					logWarning("%s is not a key of the %s baseline", key, sess.Reference())
				}
				lf, err := lockfile.Load(a.cache.Store())
				if err != nil {
					return err
				}
				outdated := lf.Outdated(lang, work, ref)
				for _, key := range outdated {
					logWarning("%s: the %s text changed after this was translated", key, sess.Reference())
				}
				printCategoryStats(category.CompletionByCategory(work, ref), a.cfg.Categories)
				logInfo("%s: %d valid, %d with issues, %d outdated, %d missing, %d extra",
					lang, len(v.Valid), len(v.PlaceholderIssues), len(outdated), len(v.Missing), len(v.Extra))

				if strict && len(v.PlaceholderIssues) > 0 {
					return fmt.Errorf(i18n.T("%d keys failed validation"), len(v.PlaceholderIssues))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any key has placeholder issues")
	return cmd
}

// ---------------------------------------------------------------------------
// diff / submit
// ---------------------------------------------------------------------------

// changeSet loads every language in langs (default: all with local work)
// so a remote snapshot exists, then computes the change-set.
func changeSet(ctx context.Context, sess *session.Session, langs []string) (map[string]*mapping.Mapping, error) {
	if len(langs) == 0 {
		langs = sess.LanguagesWithLocalWork()
	}
	for _, lang := range langs {
		lang = normalizeLang(lang)
		if lang == sess.Reference() {
			continue
		}
		if err := switchTo(ctx, sess, lang); err != nil {
			logWarning("Skipping %s: %v", lang, err)
		}
	}
	return sess.ComputeChangeSet()
}

func sortedKeys(m map[string]*mapping.Mapping) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newDiffCmd() *cobra.Command {
	var showValues bool

	cmd := &cobra.Command{
		Use:   "diff [lang...]",
		Short: "Show what changed since the repository version",
		Long: `List, per language, the keys whose local value is new or differs from the
repository. Empty values are never part of a change.

Without arguments every language with local work is compared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				if sess.IsOffline() {
					logWarning("Offline: languages that exist in the repository cannot be compared")
				}
				changes, err := changeSet(ctx, sess, args)
				if err != nil {
					return err
				}
				if len(changes) == 0 {
					logInfo("No changes")
					return nil
				}
				for _, lang := range sortedKeys(changes) {
					cs := changes[lang]
					logInfo("%s: %d changed/new keys", lang, cs.Len())
					if showValues {
						cs.Range(func(k, v string) bool {
							fmt.Printf("%s\t%s = \"%s\"\n", lang, k, luatable.Escape(v))
							return true
						})
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showValues, "values", false, "Print every changed key and value")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var title, body string

	cmd := &cobra.Command{
		Use:   "submit [lang...]",
		Short: "Open a pull request with your changes",
		Long: `Submit the change-set as a GitHub pull request: the upstream repository is
forked to your account if needed, a branch is created, every changed table
is committed under each install layout, and a pull request is opened.

Requires 'transkit auth login'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				if sess.IsOffline() {
					return errors.New(i18n.T("cannot submit while offline"))
				}
				changes, err := changeSet(ctx, sess, args)
				if err != nil {
					return err
				}
				token := a.cache.Token()
				if r := github.CheckReadiness(token != "", changes); !r.CanSubmit {
					return errors.New(i18n.T(r.Reason))
				}
				return runSubmit(ctx, a, sess, token, changes, title, body)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Pull request title (default: generated)")
	cmd.Flags().StringVar(&body, "body", "", "Pull request description (default: generated)")
	return cmd
}

func (a *app) githubClient(ctx context.Context, token string) *github.Client {
	c := github.NewClient(ctx, token, a.cfg.Repo.Owner, a.cfg.Repo.Name, a.cfg.Repo.Branch)
	c.APIBase = a.cfg.Repo.APIBase
	c.Log = a.log.With().Str("component", "github").Logger()
	c.OnAuthError = func() {
		if err := a.cache.ClearToken(); err != nil {
			a.log.Error().Err(err).Msg("clearing rejected token")
		}
	}
	return c
}

func runSubmit(ctx context.Context, a *app, sess *session.Session, token string, changes map[string]*mapping.Mapping, title, body string) error {
	base := map[string]*mapping.Mapping{}
	for lang := range changes {
		if snap, ok := sess.Snapshot(lang); ok {
			base[lang] = snap
		}
	}
	names := map[string]string{}
	for _, l := range sess.AllLanguages() {
		names[l.Code] = l.Name
	}

	res, err := a.githubClient(ctx, token).Submit(ctx, github.Submission{
		Changes:   changes,
		Base:      base,
		Assembler: a.assembler(sess.Baseline()),
		Title:     title,
		Body:      body,
		LangNames: names,
		OnProgress: func(step string, percent int) {
			logInfo("[%3d%%] %s", percent, step)
		},
	})
	var authErr *github.AuthError
	if errors.As(err, &authErr) {
		return errors.New(i18n.T("GitHub rejected the stored token; run 'transkit auth login' again"))
	}
	if err != nil {
		return err
	}
	logSuccess("Pull request #%d created: %s", res.Number, res.URL)
	return nil
}

// ---------------------------------------------------------------------------
// auth (GitHub sign-in)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to GitHub",
		Long: `Manage the GitHub sign-in used by 'transkit submit'.

Sign-in opens your browser on GitHub's authorization page. The token exchange
goes through the token proxy, so no client secret is stored on your machine.

Examples:
  transkit auth login
  transkit auth status --check
  transkit auth logout`,
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthLogoutCmd(), newAuthStatusCmd())
	return cmd
}

func (a *app) authenticator() *auth.Authenticator {
	authn := auth.New(a.cfg.OAuth.ClientID, a.cfg.OAuth.ProxyURL, a.cfg.OAuth.Scopes, a.cache)
	authn.Log = a.log.With().Str("component", "auth").Logger()
	return authn
}

func newAuthLoginCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your GitHub account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			token, err := a.authenticator().Login(ctx, func(authURL string) {
				logInfo("Opening your browser for GitHub sign-in. If it does not open, visit:")
				fmt.Fprintf(os.Stderr, "  %s\n", authURL)
			})
			if errors.Is(err, context.DeadlineExceeded) {
				return errors.New(i18n.T("timed out waiting for GitHub sign-in"))
			}
			if err != nil {
				return err
			}
			if user, err := a.githubClient(cmd.Context(), token).User(cmd.Context()); err == nil {
				logSuccess("Signed in as %s", user.Login)
			} else {
				logSuccess("Signed in")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser sign-in")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget and revoke the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := a.authenticator().Logout(cmd.Context()); err != nil {
				return err
			}
			logSuccess("Signed out")
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			fmt.Println(a.authenticator().Status())
			if check && a.cache.IsAuthenticated() {
				if a.githubClient(cmd.Context(), a.cache.Token()).ValidateToken(cmd.Context()) {
					logSuccess("Token accepted by GitHub")
				} else {
					logWarning("Token rejected by GitHub")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Verify the token with GitHub")
	return cmd
}

// ---------------------------------------------------------------------------
// proxy (OAuth token exchange service)
// ---------------------------------------------------------------------------

func newProxyCmd() *cobra.Command {
	var (
		port        int
		noAccessLog bool
	)

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the OAuth token exchange proxy",
		Long: `Serve the token exchange proxy used by 'transkit auth login'.

The OAuth app's client secret is read from GITHUB_CLIENT_SECRET; allowed
browser origins come from ALLOWED_ORIGINS or the config file. Requests are
written to stdout in combined log format.

Routes:
  POST /token    exchange an authorization code for a token
  POST /revoke   revoke a token
  GET  /health   liveness check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if a.cfg.Proxy.ClientSecret == "" {
				return errors.New(i18n.T("GITHUB_CLIENT_SECRET is not set"))
			}
			if port == 0 {
				port = a.cfg.Proxy.Port
			}
			srv := proxy.New(proxy.Config{
				ClientID:       a.cfg.OAuth.ClientID,
				ClientSecret:   a.cfg.Proxy.ClientSecret,
				AllowedOrigins: a.cfg.Proxy.AllowedOrigins,
				APIBase:        a.cfg.Repo.APIBase,
			}, a.log.With().Str("component", "proxy").Logger())

			var accessLog io.Writer = os.Stdout
			if noAccessLog {
				accessLog = nil
			}
			return srv.ListenAndServe(cmd.Context(), fmt.Sprintf(":%d", port), accessLog)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default: config or PORT)")
	cmd.Flags().BoolVar(&noAccessLog, "no-access-log", false, "Do not write the access log")
	return cmd
}

// ---------------------------------------------------------------------------
// backup (all local work)
// ---------------------------------------------------------------------------

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Save or restore all local work",
	}

	save := &cobra.Command{
		Use:   "save <file>",
		Short: "Write all local work to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			d := a.cache.ExportUserData()
			data, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return err
			}
			if err := writeOutput(args[0], data); err != nil {
				return err
			}
			logSuccess("Saved %d languages to %s", len(d.Translations), args[0])
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace all local work with a saved backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var d storage.UserData
			if err := json.Unmarshal(data, &d); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			if err := a.cache.ImportUserData(d); err != nil {
				return err
			}
			logSuccess("Restored %d languages from %s", len(d.Translations), args[0])
			return nil
		},
	}

	cmd.AddCommand(save, restore)
	return cmd
}

// ---------------------------------------------------------------------------
// clear
// ---------------------------------------------------------------------------

func newClearCmd() *cobra.Command {
	var all, baseline bool

	cmd := &cobra.Command{
		Use:   "clear [lang]",
		Short: "Discard local work or caches",
		Long: `Discard local work for one language, for all languages (--all), or drop
the cached English baseline so it is downloaded again (--baseline).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && !baseline && len(args) == 0 {
				return errors.New(i18n.T("nothing to clear: pass a language, --all or --baseline"))
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				lang := normalizeLang(args[0])
				if err := a.cache.DeleteTranslations(lang); err != nil {
					return err
				}
				if err := a.updateSourceLock(func(lf *lockfile.LockFile) { lf.Forget(lang) }); err != nil {
					return err
				}
				logSuccess("Cleared local work for %s", lang)
			}
			if all {
				if err := a.cache.ClearTranslations(); err != nil {
					return err
				}
				if err := a.updateSourceLock(func(lf *lockfile.LockFile) { lf.ForgetAll() }); err != nil {
					return err
				}
				logSuccess("Cleared all local work")
			}
			if baseline {
				if err := a.cache.ClearBaseline(); err != nil {
					return err
				}
				logSuccess("Cleared cached baseline")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Clear local work for every language")
	cmd.Flags().BoolVar(&baseline, "baseline", false, "Clear the cached English baseline")
	return cmd
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Print the configuration after defaults, .transkit.yaml and environment
overrides are applied. The output is a valid .transkit.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// normalizeLang upper-cases a game language code ("ptbr" → "PTBR").
func normalizeLang(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func filterOutLang(langs []string, exclude string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if l != exclude {
			out = append(out, l)
		}
	}
	return out
}

func langColumnWidth(langs []string) int {
	w := 4
	for _, l := range langs {
		if len(l) > w {
			w = len(l)
		}
	}
	return w
}

// langCell renders a flag and a padded code; languages without a flag get
// blank padding of the same width.
func langCell(code string, width int) string {
	flag := langFlag(code)
	if flag == "" {
		flag = "  "
	}
	return fmt.Sprintf("%s %-*s", flag, width, code)
}

func langFlag(code string) string {
	return langmeta.Resolve(code).Flag
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	color := colorGreen
	switch {
	case percent < 50:
		color = colorRed
	case percent < 100:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset + fmt.Sprintf(" %3d%%", percent)
}
