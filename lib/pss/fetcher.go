package pss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pthm/hxrender"
)

// ErrNoArtifact is returned when the server has nothing for a path. It is
// not a transport failure.
var ErrNoArtifact = errors.New("pss: no artifact for path")

// FetchError is a non-2xx answer from the state endpoint.
type FetchError struct {
	URL    string
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("pss: fetching %s: status %d", e.URL, e.Status)
}

// FetchRequest identifies the page or widget to fetch.
type FetchRequest struct {
	Path                string
	Locale              string
	Entity              string
	WasIncrementalMatch bool
}

// Fetcher retrieves page data from a server.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) (Page, error)

func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) (Page, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches from an hxrender server's state endpoint.
type HTTPFetcher struct {
	// BaseURL is the server origin, e.g. "https://example.com".
	BaseURL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// URL builds the state endpoint URL for req.
func (f *HTTPFetcher) URL(req FetchRequest) string {
	q := url.Values{}
	if req.Entity != "" {
		q.Set("entity", req.Entity)
	}
	q.Set("was_incremental_match", strconv.FormatBool(req.WasIncrementalMatch))

	var segs []string
	for _, seg := range strings.Split(strings.Trim(req.Path, "/"), "/") {
		segs = append(segs, url.PathEscape(seg))
	}
	return strings.TrimSuffix(f.BaseURL, "/") + hxrender.StatePrefix +
		url.PathEscape(req.Locale) + "/" + strings.Join(segs, "/") + ".json?" + q.Encode()
}

type wirePage struct {
	State   hxrender.TemplateState `json:"state"`
	Head    string                 `json:"head"`
	Widgets []string               `json:"widgets"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (Page, error) {
	u := f.URL(req)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, err
	}
	hreq.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Page{}, fmt.Errorf("%w: %s", ErrNoArtifact, req.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Page{}, &FetchError{URL: u, Status: resp.StatusCode, Body: string(body)}
	}

	var wp wirePage
	if err := json.NewDecoder(resp.Body).Decode(&wp); err != nil {
		return Page{}, fmt.Errorf("pss: decoding %s: %w", u, err)
	}
	return Page{State: wp.State, Head: wp.Head, Widgets: wp.Widgets}, nil
}

type scopeKey struct{}

// WithScope attaches a UI scope (normally the route being shown) to ctx.
// Preloads started with the returned context are cancelled by
// CancelPreloads(scope).
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

func scopeFrom(ctx context.Context) string {
	s, _ := ctx.Value(scopeKey{}).(string)
	return s
}

// Preload fetches a page or widget ahead of navigation and parks it until
// Consume. It blocks until the fetch completes; run it on its own goroutine
// to preload in the background. Already cached or preloaded keys are not
// fetched again.
func (s *Store) Preload(ctx context.Context, path, locale, entity string, wasIncremental, isWidget bool) error {
	key := Key(locale, path)

	s.mu.Lock()
	if s.locales != nil {
		if _, ok := s.locales[locale]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrUnsupportedLocale, locale)
		}
	}
	if _, ok := s.preloaded[key]; ok {
		s.mu.Unlock()
		return nil
	}
	if e, ok := s.entries[key]; ok {
		if p := e.presence(); p == All || p == HeadNoState {
			s.mu.Unlock()
			return nil
		}
	}
	if s.fetcher == nil {
		s.mu.Unlock()
		return errors.New("pss: preload without a fetcher")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	scope := scopeFrom(ctx)
	h := &preloadHandle{cancel: cancel}
	if s.inflight[scope] == nil {
		s.inflight[scope] = make(map[*preloadHandle]struct{})
	}
	s.inflight[scope][h] = struct{}{}
	s.mu.Unlock()

	page, err := s.fetcher.Fetch(ctx, FetchRequest{
		Path:                path,
		Locale:              locale,
		Entity:              entity,
		WasIncrementalMatch: wasIncremental,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight[scope], h)
	if len(s.inflight[scope]) == 0 {
		delete(s.inflight, scope)
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.preloaded[key] = preloaded{page: page, widget: isWidget}
	return nil
}

// CancelPreloads cancels the in-flight preloads started under scope.
func (s *Store) CancelPreloads(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.inflight[scope] {
		h.cancel()
	}
	delete(s.inflight, scope)
}
