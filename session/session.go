// Package session holds the translation state of one working session: the
// reference baseline, the active language's working mapping and, per
// language, the snapshot of the remote content as first loaded this session.
//
// The snapshot is the diff base for ComputeChangeSet. It is recorded once per
// language and never replaced, so edits made after loading are always
// measured against what the repository held at that time.
//
// State transitions:
//
//	Uninitialized → LoadingManifest → LoadingLanguages → LoadingBaseline → Ready
//	                                                                    ↘ Offline
//	Ready ⇄ SwitchingLanguage
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bsj-tools/transkit/category"
	"github.com/bsj-tools/transkit/langmeta"
	"github.com/bsj-tools/transkit/mapping"
	"github.com/bsj-tools/transkit/remote"
	"github.com/bsj-tools/transkit/storage"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateLoadingManifest
	StateLoadingLanguages
	StateLoadingBaseline
	StateReady
	StateOffline
	StateSwitchingLanguage
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoadingManifest:
		return "loading-manifest"
	case StateLoadingLanguages:
		return "loading-languages"
	case StateLoadingBaseline:
		return "loading-baseline"
	case StateReady:
		return "ready"
	case StateOffline:
		return "offline"
	case StateSwitchingLanguage:
		return "switching-language"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrOffline is returned by Initialize when no category of the reference
	// language could be loaded and nothing was cached.
	ErrOffline = errors.New("reference translations could not be loaded")
	// ErrNotReady is returned by operations that need an initialized session.
	ErrNotReady = errors.New("session is not ready")
	// ErrNoLanguage is returned by edits made before any language is active.
	ErrNoLanguage = errors.New("no language selected")
)

// offlineMessage is the text of the error event raised when going offline.
const offlineMessage = "Failed to load English translations. Check your internet connection."

// DefaultAutosaveDelay is the debounce delay for Update.
const DefaultAutosaveDelay = 500 * time.Millisecond

// Options configures a Session.
type Options struct {
	Fetcher remote.Fetcher
	Cache   *storage.Cache
	// Reference is the source language code (default "EN").
	Reference string
	// Categories is the category list used for statistics.
	Categories    []string
	AutosaveDelay time.Duration
	Logger        zerolog.Logger
}

// Session is safe for concurrent use. Event handlers run without the session
// lock held and may call back into the session.
type Session struct {
	fetcher   remote.Fetcher
	cache     *storage.Cache
	reference string
	cats      []string
	log       zerolog.Logger
	events    *bus
	autosave  *storage.Debouncer
	refreshes sync.WaitGroup

	mu          sync.Mutex
	state       State
	baseline    *mapping.Mapping
	manifest    *remote.Manifest
	remoteLangs []string
	current     string
	working     *mapping.Mapping
	snapshots   map[string]*mapping.Mapping
}

// New returns an uninitialized session.
func New(opts Options) *Session {
	if opts.Reference == "" {
		opts.Reference = "EN"
	}
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = DefaultAutosaveDelay
	}
	return &Session{
		fetcher:   opts.Fetcher,
		cache:     opts.Cache,
		reference: opts.Reference,
		cats:      opts.Categories,
		log:       opts.Logger,
		events:    newBus(opts.Logger),
		autosave:  storage.NewDebouncer(opts.AutosaveDelay),
		state:     StateUninitialized,
		baseline:  mapping.New(),
		manifest:  &remote.Manifest{},
		working:   mapping.New(),
		snapshots: make(map[string]*mapping.Mapping),
	}
}

// Subscribe registers fn for events of kind and returns a function that
// removes it.
func (s *Session) Subscribe(kind EventKind, fn Handler) (unsubscribe func()) {
	return s.events.subscribe(kind, fn)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// Initialize loads the language manifest, discovers the remote languages and
// loads the reference baseline, from the versioned cache when possible. A
// cached baseline is refreshed in the background; Close waits for it.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized && s.state != StateOffline {
		s.mu.Unlock()
		return fmt.Errorf("initialize: session is %s", s.state)
	}
	s.mu.Unlock()

	s.events.emit(Event{Kind: EventLoadingStart, Phase: "init"})

	s.setState(StateLoadingManifest)
	manifest, err := s.fetcher.FetchManifest(ctx)
	if err != nil || manifest == nil {
		s.log.Debug().Err(err).Msg("language manifest unavailable")
		manifest = &remote.Manifest{}
	}

	s.setState(StateLoadingLanguages)
	langs, err := s.fetcher.DiscoverLanguages(ctx)
	if err != nil || len(langs) == 0 {
		s.log.Warn().Err(err).Str("fallback", s.reference).Msg("language discovery failed")
		langs = []string{s.reference}
	}

	s.mu.Lock()
	s.manifest = manifest
	s.remoteLangs = langs
	s.state = StateLoadingBaseline
	s.mu.Unlock()

	if cached, ok := s.cache.Baseline(); ok {
		s.mu.Lock()
		s.baseline = cached
		s.mu.Unlock()
		s.log.Debug().Int("keys", cached.Len()).Msg("baseline loaded from cache")

		s.refreshes.Add(1)
		go func() {
			defer s.refreshes.Done()
			s.refreshBaseline(ctx)
		}()
	} else {
		res := s.fetcher.FetchLanguage(ctx, s.reference)
		if res.AllFailed() {
			s.setState(StateOffline)
			s.log.Error().Strs("errors", res.Errors).Msg("baseline fetch failed")
			s.events.emit(Event{Kind: EventError, Message: offlineMessage})
			s.events.emit(Event{Kind: EventLoadingEnd, Phase: "init"})
			return ErrOffline
		}
		s.mu.Lock()
		s.baseline = res.Translations
		s.mu.Unlock()
		if err := s.cache.SaveBaseline(res.Translations); err != nil {
			s.log.Warn().Err(err).Msg("caching baseline")
		}
		if err := s.cache.TouchLastSync(); err != nil {
			s.log.Warn().Err(err).Msg("recording sync time")
		}
	}

	s.setState(StateReady)
	s.events.emit(Event{Kind: EventLoadingEnd, Phase: "init", Success: true})
	return nil
}

// refreshBaseline replaces the cached baseline with fresh remote content.
// Failures are logged only.
func (s *Session) refreshBaseline(ctx context.Context) {
	res := s.fetcher.FetchLanguage(ctx, s.reference)
	if res.AllFailed() {
		s.log.Warn().Strs("errors", res.Errors).Msg("background baseline refresh failed")
		return
	}
	s.mu.Lock()
	s.baseline = res.Translations
	s.mu.Unlock()
	if err := s.cache.SaveBaseline(res.Translations); err != nil {
		s.log.Warn().Err(err).Msg("caching baseline")
	}
	if err := s.cache.TouchLastSync(); err != nil {
		s.log.Warn().Err(err).Msg("recording sync time")
	}
}

// Close flushes pending edits and waits for background refreshes.
func (s *Session) Close() error {
	err := s.Flush()
	s.refreshes.Wait()
	return err
}

// ---------------------------------------------------------------------------
// Language switching
// ---------------------------------------------------------------------------

// SwitchLanguage makes code the active language, loading its remote content
// when the language exists remotely.
func (s *Session) SwitchLanguage(ctx context.Context, code string) error {
	return s.switchLanguage(ctx, code, true)
}

// SwitchLanguageLocal makes code the active language from local data only.
// No snapshot is recorded for languages that exist remotely.
func (s *Session) SwitchLanguageLocal(code string) error {
	return s.switchLanguage(context.Background(), code, false)
}

func (s *Session) switchLanguage(ctx context.Context, code string, loadRemote bool) error {
	s.mu.Lock()
	if code == s.current {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	if prev != StateReady && prev != StateOffline {
		s.mu.Unlock()
		return fmt.Errorf("switching to %s: %w (%s)", code, ErrNotReady, prev)
	}
	s.state = StateSwitchingLanguage
	s.mu.Unlock()

	// Pending autosave belongs to the outgoing language.
	s.autosave.Flush()

	s.events.emit(Event{Kind: EventLoadingStart, Phase: "switch", Lang: code})

	s.mu.Lock()
	outgoing, outgoingWork := s.current, s.working.Clone()
	s.mu.Unlock()
	if outgoing != "" && outgoingWork.Len() > 0 {
		if err := s.cache.SaveTranslations(outgoing, outgoingWork); err != nil {
			return s.failSwitch(prev, code, err)
		}
	}

	working := mapping.New()
	if saved := s.cache.Translations(code); saved != nil {
		working = saved.Clone()
	}

	s.mu.Lock()
	inRemote := contains(s.remoteLangs, code)
	s.mu.Unlock()

	// current and working change only once the incoming language has loaded.
	switch {
	case loadRemote && inRemote:
		res := s.fetcher.FetchLanguage(ctx, code)
		if res.AllFailed() {
			return s.failSwitch(prev, code, fmt.Errorf("loading %s: %v", code, res.Errors))
		}
		// Local non-blank values win over remote content.
		res.Translations.Range(func(k, v string) bool {
			if cur, ok := working.Get(k); !ok || mapping.IsBlank(cur) {
				working.Set(k, v)
			}
			return true
		})
		s.mu.Lock()
		if _, ok := s.snapshots[code]; !ok {
			s.snapshots[code] = res.Translations.Clone()
		}
		s.mu.Unlock()
		s.log.Debug().Str("lang", code).Int("remote", res.Translations.Len()).Msg("remote snapshot recorded")

	case !inRemote:
		s.mu.Lock()
		if _, ok := s.snapshots[code]; !ok {
			s.snapshots[code] = mapping.New()
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.current = code
	s.working = working
	s.state = prev
	snapshot := s.working.Clone()
	s.mu.Unlock()

	s.events.emit(Event{Kind: EventLanguageChanged, Lang: code, Translations: snapshot})
	s.events.emit(Event{Kind: EventLoadingEnd, Phase: "switch", Lang: code, Success: true})
	return nil
}

func (s *Session) failSwitch(prev State, code string, err error) error {
	s.setState(prev)
	s.log.Error().Err(err).Str("lang", code).Msg("switching language failed")
	s.events.emit(Event{Kind: EventError, Lang: code, Message: err.Error()})
	s.events.emit(Event{Kind: EventLoadingEnd, Phase: "switch", Lang: code})
	return err
}

// ---------------------------------------------------------------------------
// Edits
// ---------------------------------------------------------------------------

// Update sets one key of the active language. Persistence is debounced;
// the change event fires immediately.
func (s *Session) Update(key, value string) error {
	s.mu.Lock()
	lang := s.current
	if lang == "" {
		s.mu.Unlock()
		return ErrNoLanguage
	}
	s.working.Set(key, value)
	s.mu.Unlock()

	s.autosave.Trigger(func() { s.persist(lang) })
	s.events.emit(Event{Kind: EventTranslationChanged, Lang: lang, Key: key, Value: value})
	return nil
}

// UpdateMany merges m into the active language and persists immediately.
func (s *Session) UpdateMany(m *mapping.Mapping) error {
	s.mu.Lock()
	lang := s.current
	if lang == "" {
		s.mu.Unlock()
		return ErrNoLanguage
	}
	s.working.Assign(m)
	work := s.working.Clone()
	s.mu.Unlock()

	s.autosave.Stop()
	if err := s.cache.SaveTranslations(lang, work); err != nil {
		return err
	}
	s.events.emit(Event{Kind: EventTranslationChanged, Lang: lang, Bulk: true})
	return nil
}

// Clear empties the active language and persists the empty mapping.
func (s *Session) Clear() error {
	s.mu.Lock()
	lang := s.current
	s.working = mapping.New()
	s.mu.Unlock()

	s.autosave.Stop()
	if lang != "" {
		if err := s.cache.SaveTranslations(lang, mapping.New()); err != nil {
			return err
		}
	}
	s.events.emit(Event{Kind: EventTranslationChanged, Lang: lang, Cleared: true})
	return nil
}

// Flush cancels any pending autosave and writes the active language now.
func (s *Session) Flush() error {
	s.autosave.Stop()
	s.mu.Lock()
	lang, work := s.current, s.working.Clone()
	s.mu.Unlock()
	if lang == "" {
		return nil
	}
	return s.cache.SaveTranslations(lang, work)
}

// persist is the debounced write for lang.
func (s *Session) persist(lang string) {
	s.mu.Lock()
	if s.current != lang {
		s.mu.Unlock()
		return
	}
	work := s.working.Clone()
	s.mu.Unlock()
	if err := s.cache.SaveTranslations(lang, work); err != nil {
		s.log.Error().Err(err).Str("lang", lang).Msg("autosave failed")
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOffline reports whether the baseline could not be loaded.
func (s *Session) IsOffline() bool { return s.State() == StateOffline }

// Reference returns the reference language code.
func (s *Session) Reference() string { return s.reference }

// Baseline returns a copy of the reference mapping.
func (s *Session) Baseline() *mapping.Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.Clone()
}

// CurrentLanguage returns the active language or "".
func (s *Session) CurrentLanguage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Working returns a copy of the active language's mapping.
func (s *Session) Working() *mapping.Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Clone()
}

// Value returns the active language's value for key.
func (s *Session) Value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Value(key)
}

// Snapshot returns a copy of the remote snapshot for lang.
func (s *Session) Snapshot(lang string) (*mapping.Mapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.snapshots[lang]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// InRemote reports whether lang exists in the repository.
func (s *Session) InRemote(lang string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contains(s.remoteLangs, lang)
}

// RemoteLanguages returns the discovered repository languages.
func (s *Session) RemoteLanguages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.remoteLangs...)
}

// LanguageInfo describes a language for selection menus.
type LanguageInfo struct {
	Code     string
	Name     string
	Native   string
	Flag     string
	InRemote bool
}

func (s *Session) known() []langmeta.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return langmeta.Known(s.manifest.ZomboidLanguages)
}

func info(l langmeta.Language, inRemote bool) LanguageInfo {
	m := langmeta.Resolve(l.Code)
	return LanguageInfo{Code: l.Code, Name: l.Name, Native: m.Name, Flag: m.Flag, InRemote: inRemote}
}

// AvailableLanguages returns the remote languages with display names.
func (s *Session) AvailableLanguages() []LanguageInfo {
	known := s.known()
	var out []LanguageInfo
	for _, code := range s.RemoteLanguages() {
		out = append(out, info(langmeta.Language{Code: code, Name: langmeta.Name(code, known)}, true))
	}
	return out
}

// NewLanguages returns the known game languages that do not exist remotely.
func (s *Session) NewLanguages() []LanguageInfo {
	remoteLangs := s.RemoteLanguages()
	var out []LanguageInfo
	for _, l := range s.known() {
		if !contains(remoteLangs, l.Code) {
			out = append(out, info(l, false))
		}
	}
	return out
}

// AllLanguages returns AvailableLanguages followed by NewLanguages.
func (s *Session) AllLanguages() []LanguageInfo {
	return append(s.AvailableLanguages(), s.NewLanguages()...)
}

// LanguagesWithLocalWork returns the languages with persisted work.
func (s *Session) LanguagesWithLocalWork() []string {
	return s.cache.SavedLanguages()
}

// CompletionStats measures the active language against the baseline.
func (s *Session) CompletionStats() category.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return category.Completion(s.working, s.baseline)
}

// CategoryStats measures the active language per category, restricted to
// Options.Categories when set.
func (s *Session) CategoryStats() map[string]category.Stats {
	s.mu.Lock()
	all := category.CompletionByCategory(s.working, s.baseline)
	s.mu.Unlock()
	if len(s.cats) == 0 {
		return all
	}
	out := make(map[string]category.Stats, len(s.cats))
	for _, c := range s.cats {
		out[c] = all[c]
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
