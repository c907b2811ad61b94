package hxrender

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/a-h/templ"
)

// text renders a formatted string.
func text(format string, args ...any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	})
}

// seq renders components one after the other.
func seq(parts ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, p := range parts {
			if err := p.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func stringView(ctx context.Context, s string) templ.Component {
	return text("<p>%s</p>", s)
}

func stringHead(ctx context.Context, s string) templ.Component {
	return text("<title>%s</title>", s)
}

type emptyState struct{}

func staticView(body string) func(context.Context, emptyState) templ.Component {
	return func(ctx context.Context, _ emptyState) templ.Component {
		return text("%s", body)
	}
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// counter counts generation calls.
type counter struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *counter) inc(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = make(map[string]int)
	}
	c.n[key]++
	return c.n[key]
}

func (c *counter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[key]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp creates an app with an untranslated "en" locale, in-memory
// stores and a discarded log.
func newTestApp(t *testing.T, opts Options) *App {
	t.Helper()
	if opts.Locales.Default == "" {
		opts.Locales = Locales{Default: "en"}
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(opts)
}
