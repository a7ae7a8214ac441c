package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bsj-tools/transkit/mapping"
)

// EventKind identifies a session notification.
type EventKind int

const (
	EventLoadingStart EventKind = iota
	EventLoadingEnd
	EventLanguageChanged
	EventTranslationChanged
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoadingStart:
		return "loading-start"
	case EventLoadingEnd:
		return "loading-end"
	case EventLanguageChanged:
		return "language-changed"
	case EventTranslationChanged:
		return "translation-changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event carries the payload of a notification. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind
	// Phase is "init" or "switch" for loading events.
	Phase string
	Lang  string
	// Success is set on EventLoadingEnd.
	Success bool
	// Key and Value describe a single edit.
	Key   string
	Value string
	// Bulk and Cleared mark UpdateMany and Clear notifications.
	Bulk    bool
	Cleared bool
	// Translations is a copy of the working mapping on EventLanguageChanged.
	Translations *mapping.Mapping
	// Message is set on EventError.
	Message string
}

// Handler receives events synchronously on the goroutine that caused them.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// bus is a typed publish/subscribe registry. A panicking handler is logged
// and does not prevent later handlers from running.
type bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[EventKind][]subscription
	log    zerolog.Logger
}

func newBus(log zerolog.Logger) *bus {
	return &bus{subs: make(map[EventKind][]subscription), log: log}
}

func (b *bus) subscribe(kind EventKind, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[kind]
			for i, s := range list {
				if s.id == id {
					b.subs[kind] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *bus) emit(ev Event) {
	b.mu.Lock()
	list := make([]subscription, len(b.subs[ev.Kind]))
	copy(list, b.subs[ev.Kind])
	b.mu.Unlock()

	for _, s := range list {
		b.call(s.fn, ev)
	}
}

func (b *bus) call(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("event", ev.Kind.String()).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	fn(ev)
}
