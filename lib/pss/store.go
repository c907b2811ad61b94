// Package pss is the page state store: a bounded client-side cache of page
// and widget state fetched from an hxrender server.
//
// Pages are evicted oldest-first once more than the configured maximum are
// cached. Widgets do not count toward the maximum; a widget stays cached for
// as long as a cached page (or widget) depends on it, and is removed when the
// last one goes.
package pss

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pthm/hxrender"
	"github.com/pthm/hxrender/lib/encoding"
)

var (
	// ErrStateNever is returned when adding state to an entry that was
	// marked as never having state.
	ErrStateNever = errors.New("pss: entry never has state")
	// ErrUnsupportedLocale is returned by Preload for a locale the store
	// was not configured with.
	ErrUnsupportedLocale = errors.New("pss: unsupported locale")
	// ErrThawCorrupt is returned by Thaw when a snapshot cannot be opened.
	ErrThawCorrupt = errors.New("pss: frozen snapshot is corrupt")
)

// Presence describes what the store holds for a key.
type Presence int

const (
	Absent Presence = iota
	StateOnly
	HeadOnly
	// HeadNoState is a head for a page known to have no state; it is as
	// complete as All.
	HeadNoState
	All
	// Preloaded entries were fetched ahead of time and are not yet
	// consumed.
	Preloaded
)

func (p Presence) String() string {
	switch p {
	case StateOnly:
		return "state_only"
	case HeadOnly:
		return "head_only"
	case HeadNoState:
		return "head_no_state"
	case All:
		return "all"
	case Preloaded:
		return "preloaded"
	}
	return "absent"
}

// Key is the cache key of path in locale.
func Key(locale, path string) string {
	return locale + "/" + path
}

// Page is the cached data of one page or widget.
type Page struct {
	State hxrender.TemplateState
	Head  string
	// Widgets are the routes of widgets the page embeds.
	Widgets []string
}

type entry struct {
	state    hxrender.TemplateState
	hasState bool
	never    bool
	head     string
	hasHead  bool
	widget   bool

	dependencies []string
	dependents   []string
}

func (e *entry) presence() Presence {
	switch {
	case e.hasHead && e.never:
		return HeadNoState
	case e.hasHead && e.hasState:
		return All
	case e.hasHead:
		return HeadOnly
	case e.hasState:
		return StateOnly
	}
	return Absent
}

type preloaded struct {
	page   Page
	widget bool
}

// Store caches page state. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	max     int
	fetcher Fetcher
	locales map[string]struct{}

	entries   map[string]*entry
	order     []string
	keep      map[string]struct{}
	preloaded map[string]preloaded
	sealMode  encoding.Mode

	// inflight maps a preload scope to the cancel funcs of its fetches.
	inflight map[string]map[*preloadHandle]struct{}
}

type preloadHandle struct {
	cancel context.CancelFunc
}

// Option configures a Store.
type Option func(*Store)

// WithLocales restricts Preload to the given locales.
func WithLocales(locales ...string) Option {
	return func(s *Store) {
		s.locales = make(map[string]struct{}, len(locales))
		for _, l := range locales {
			s.locales[l] = struct{}{}
		}
	}
}

// WithSealMode sets how Freeze seals snapshots. The default, signed
// snapshots, can be read by anyone holding them; use encoding.Encrypted for
// snapshots kept in storage the application does not trust.
func WithSealMode(mode encoding.Mode) Option {
	return func(s *Store) {
		s.sealMode = mode
	}
}

// New creates a store caching at most maxPages pages. fetcher may be nil if
// Preload is never used.
func New(maxPages int, fetcher Fetcher, opts ...Option) *Store {
	if maxPages < 1 {
		maxPages = 1
	}
	s := &Store{
		max:       maxPages,
		fetcher:   fetcher,
		entries:   make(map[string]*entry),
		keep:      make(map[string]struct{}),
		preloaded: make(map[string]preloaded),
		inflight:  make(map[string]map[*preloadHandle]struct{}),
		sealMode:  encoding.Signed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxPages returns the page limit.
func (s *Store) MaxPages() int {
	return s.max
}

// Len returns the number of cached entries, widgets included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// AddState stores the state of key.
func (s *Store) AddState(key string, state hxrender.TemplateState, isWidget bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(key, isWidget)
	if e.never {
		return fmt.Errorf("%w: %q", ErrStateNever, key)
	}
	e.state, e.hasState = state, true
	s.touch(key, e)
	return nil
}

// AddHead stores the head of key.
func (s *Store) AddHead(key, head string, isWidget bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(key, isWidget)
	e.head, e.hasHead = head, true
	s.touch(key, e)
}

// SetStateNever records that key has no state and never will. Any state
// already stored for it is dropped.
func (s *Store) SetStateNever(key string, isWidget bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(key, isWidget)
	e.state, e.hasState, e.never = hxrender.TemplateState{}, false, true
	s.touch(key, e)
}

// Contains reports what is cached for key.
func (s *Store) Contains(key string) Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		if p := e.presence(); p != Absent {
			return p
		}
	}
	if _, ok := s.preloaded[key]; ok {
		return Preloaded
	}
	return Absent
}

// Get returns the cached page for key if its state (or its lack of state)
// and head are both known.
func (s *Store) Get(key string) (Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Page{}, false
	}
	switch e.presence() {
	case All, HeadNoState:
		return Page{State: e.state, Head: e.head, Widgets: slices.Clone(e.dependencies)}, true
	}
	return Page{}, false
}

// Consume moves a preloaded page into the cache and returns it.
func (s *Store) Consume(key string) (Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.preloaded[key]
	if !ok {
		return Page{}, false
	}
	delete(s.preloaded, key)

	e := s.entryFor(key, p.widget)
	if p.page.State.IsEmpty() {
		e.state, e.hasState, e.never = hxrender.TemplateState{}, false, true
	} else if !e.never {
		e.state, e.hasState = p.page.State, true
	}
	e.head, e.hasHead = p.page.Head, true
	s.touch(key, e)
	return p.page, true
}

// DeclareDependency records that pageKey embeds widgetKey. Both must be
// cached and widgetKey must have been added as a widget; anything else is a
// programming error and panics.
func (s *Store) DeclareDependency(widgetKey, pageKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.entries[widgetKey]
	if !ok {
		panic(fmt.Sprintf("pss: dependency declared on uncached widget %q", widgetKey))
	}
	if !w.widget {
		panic(fmt.Sprintf("pss: dependency declared on %q, which is a page", widgetKey))
	}
	p, ok := s.entries[pageKey]
	if !ok {
		panic(fmt.Sprintf("pss: dependency declared by uncached page %q", pageKey))
	}
	if !slices.Contains(w.dependents, pageKey) {
		w.dependents = append(w.dependents, pageKey)
	}
	if !slices.Contains(p.dependencies, widgetKey) {
		p.dependencies = append(p.dependencies, widgetKey)
	}
}

// ForceKeep exempts key from eviction permanently.
func (s *Store) ForceKeep(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keep[key] = struct{}{}
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == key })
}

// ForceRemove drops key from the cache regardless of policy, along with
// widgets nothing else depends on any more.
func (s *Store) ForceRemove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.preloaded, key)
	delete(s.keep, key)
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == key })
	s.remove(key)
}

// entryFor returns the entry of key, creating it. Callers hold s.mu.
func (s *Store) entryFor(key string, isWidget bool) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{widget: isWidget}
		s.entries[key] = e
	}
	return e
}

// touch moves a page to the most recent position and evicts if needed.
// Callers hold s.mu.
func (s *Store) touch(key string, e *entry) {
	if e.widget {
		return
	}
	if _, kept := s.keep[key]; kept {
		return
	}
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == key })
	s.order = append(s.order, key)
	s.evictPageIfNeeded()
}

// evictPageIfNeeded removes the oldest page once the limit is exceeded.
// Callers hold s.mu.
func (s *Store) evictPageIfNeeded() {
	if len(s.order) <= s.max {
		return
	}
	oldest := s.order[0]
	s.order = s.order[1:]
	s.remove(oldest)
}

// remove deletes key and releases its dependencies. A widget whose last
// dependent is removed is removed too, which can cascade through widgets
// embedding widgets. Callers hold s.mu.
func (s *Store) remove(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)

	for _, dep := range e.dependents {
		if d, ok := s.entries[dep]; ok {
			d.dependencies = slices.DeleteFunc(d.dependencies, func(k string) bool { return k == key })
		}
	}
	for _, wkey := range e.dependencies {
		w, ok := s.entries[wkey]
		if !ok {
			continue
		}
		w.dependents = slices.DeleteFunc(w.dependents, func(k string) bool { return k == key })
		if len(w.dependents) == 0 {
			if _, kept := s.keep[wkey]; !kept {
				s.remove(wkey)
			}
		}
	}
}
