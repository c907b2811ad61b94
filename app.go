package hxrender

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/hxrender/lib/store"
)

// Options configures an App.
type Options struct {
	Locales Locales

	// Immutable holds write-once build artifacts and the render config.
	Immutable store.Store
	// Mutable holds artifacts rewritten by revalidation and incremental
	// generation.
	Mutable store.Store

	// GlobalBuildState, if set, is computed once per build and saved with
	// the build output. Generation functions see it as StateInfo.Global both
	// during the build and at request time.
	GlobalBuildState func(ctx context.Context) (any, error)
	// GlobalRequestState, if set, replaces the global state on every
	// request. Build-time generation functions then see an empty global
	// state unless GlobalBuildState is also set.
	GlobalRequestState func(ctx context.Context, r *http.Request) (any, error)

	// Shell wraps rendered pages into a full HTML document. Defaults to
	// DefaultShell.
	Shell func(ctx context.Context, page PageData) templ.Component
	// ErrorView renders error pages. Defaults to DefaultErrorView.
	ErrorView func(status int, message string) templ.Component

	// BuildConcurrency bounds concurrent generation jobs during a build.
	// Zero means 16.
	BuildConcurrency int

	Logger *slog.Logger
	// Now is the clock used for revalidation deadlines. Defaults to time.Now.
	Now func() time.Time
}

// App is the set of templates making up a site, together with the stores
// their artifacts live in.
type App struct {
	mu        sync.RWMutex
	templates map[string]Entity
	opts      Options
}

// New creates an App. Stores default to in-memory stores, which suits tests
// and single-process servers that rebuild on start.
func New(opts Options) *App {
	if opts.Immutable == nil {
		opts.Immutable = store.NewMemory()
	}
	if opts.Mutable == nil {
		opts.Mutable = store.NewMemory()
	}
	if opts.Shell == nil {
		opts.Shell = DefaultShell
	}
	if opts.ErrorView == nil {
		opts.ErrorView = DefaultErrorView
	}
	if opts.BuildConcurrency <= 0 {
		opts.BuildConcurrency = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Locales = opts.Locales.normalize()
	return &App{
		templates: make(map[string]Entity),
		opts:      opts,
	}
}

// Add registers templates with the app.
// Panics if a template is invalid or its name is already taken, so that
// misconfiguration surfaces at startup rather than on a request.
func (a *App) Add(templates ...Entity) *App {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range templates {
		if err := t.Validate(); err != nil {
			panic(err.Error())
		}
		if _, exists := a.templates[t.Name()]; exists {
			panic(fmt.Sprintf("hxrender: template name collision for %q", t.Name()))
		}
		a.templates[t.Name()] = t
	}
	return a
}

// Template returns the registered template with the given name.
func (a *App) Template(name string) (Entity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.templates[name]
	return t, ok
}

// Templates returns every registered template, ordered by name.
func (a *App) Templates() []Entity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Entity, 0, len(a.templates))
	for _, t := range a.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Locales returns the locales the app is built for.
func (a *App) Locales() Locales {
	return a.opts.Locales
}

// Immutable returns the immutable store.
func (a *App) Immutable() store.Store {
	return a.opts.Immutable
}

// Mutable returns the mutable store.
func (a *App) Mutable() store.Store {
	return a.opts.Mutable
}

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger {
	return a.opts.Logger
}

func (a *App) now() time.Time {
	return a.opts.Now()
}

// tierFor returns the store holding build output for t.
func (a *App) tierFor(t Entity) store.Store {
	if t.Capabilities().Revalidates() {
		return a.opts.Mutable
	}
	return a.opts.Immutable
}
