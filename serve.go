package hxrender

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pthm/hxrender/lib/store"
)

// maxWidgetDepth bounds widget-in-widget expansion at request time.
const maxWidgetDepth = 16

// PageRequest describes one page (or widget) to resolve.
type PageRequest struct {
	// Path is the route without locale prefix.
	Path     string
	Locale   string
	Template Entity
	// WasIncrementalMatch is Verdict.WasIncrementalMatch.
	WasIncrementalMatch bool
	// Request is the incoming request; nil during export.
	Request *http.Request
	// StateOnly skips widget expansion and returns no content, for
	// client-side navigation that only needs state and head.
	StateOnly bool

	// implicit marks widgets missing from the render config, which are
	// generated on demand like incremental routes.
	implicit bool
}

// PageData is the resolved output of a page.
type PageData struct {
	Content string        `json:"-"`
	State   TemplateState `json:"state"`
	Head    string        `json:"head"`
	// Widgets lists the routes of the widgets the page embeds.
	Widgets []string `json:"widgets,omitempty"`
	Locale  string   `json:"-"`
	Path    string   `json:"-"`
}

// Server resolves pages at request time against a built render config.
type Server struct {
	app    *App
	cfg    RenderConfig
	router *Router
	flight singleflight.Group

	globalMu     sync.Mutex
	global       TemplateState
	globalLoaded bool
}

// NewServer creates a server for app using cfg (see LoadRenderConfig).
func NewServer(app *App, cfg RenderConfig) *Server {
	return &Server{app: app, cfg: cfg, router: NewRouter(app, cfg)}
}

// Router returns the server's router.
func (s *Server) Router() *Router {
	return s.router
}

// cached is the shared result of a generate-or-serve step.
type cached struct {
	art artifacts
}

// ResolvePage decides how to produce the page and produces it: serving
// cached output, generating it for the first time, revalidating it,
// generating request state, and amalgamating states, as the template's
// capabilities require.
func (s *Server) ResolvePage(ctx context.Context, req PageRequest) (PageData, error) {
	return s.resolve(ctx, req, 0, nil)
}

func (s *Server) resolve(ctx context.Context, req PageRequest, depth int, visiting map[string]struct{}) (PageData, error) {
	t := req.Template
	caps := t.Capabilities()
	route := cleanPath(req.Path)
	log := s.app.Logger().With("template", t.Name(), "route", route, "locale", req.Locale)

	global, err := s.globalState(ctx, req.Request)
	if err != nil {
		return PageData{}, err
	}
	info, err := s.app.stateInfo(ctx, t, route, req.Locale, global)
	if err != nil {
		return PageData{}, err
	}

	var (
		art     artifacts
		haveArt bool
	)
	if caps.IsBasic() || caps.BuildState {
		if (caps.Incremental || req.implicit) && req.WasIncrementalMatch {
			art, err = s.serveIncremental(ctx, t, info, route, req.Request, log)
		} else {
			art, err = s.servePrebuilt(ctx, t, info, route, req.Request, log)
		}
		if err != nil {
			return PageData{}, err
		}
		haveArt = true
	}

	if caps.RequestState {
		requestState, err := t.generateRequestState(ctx, info, req.Request)
		if err != nil {
			return PageData{}, err
		}
		final, err := t.amalgamateStates(ctx, info, States{Build: art.state, Request: requestState})
		if err != nil {
			return PageData{}, err
		}
		// Request state is the most current information, so its rendering
		// replaces whatever build output was selected above.
		content, head, _, err := s.app.renderState(ctx, t, info, final)
		if err != nil {
			return PageData{}, err
		}
		art = artifacts{state: final, content: content, head: head}
		haveArt = true
	}

	if !haveArt {
		return PageData{}, fmt.Errorf("%w: %q produced nothing for %q", ErrMissingBuildData, t.Name(), route)
	}

	page := PageData{
		State:   art.state,
		Head:    art.head,
		Locale:  req.Locale,
		Path:    route,
		Widgets: widgetRoutes(parseWidgets(art.content)),
	}
	if req.StateOnly {
		return page, nil
	}
	content, err := s.expand(ctx, req, art.content, depth, visiting)
	if err != nil {
		return PageData{}, err
	}
	page.Content = content
	return page, nil
}

func widgetRoutes(refs []WidgetRef) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Route()
	}
	return out
}

func (s *Server) globalState(ctx context.Context, r *http.Request) (TemplateState, error) {
	if fn := s.app.opts.GlobalRequestState; fn != nil && r != nil {
		v, err := fn(ctx, r)
		if err != nil {
			return TemplateState{}, newGenerationError("<global>", "", "", "global_request_state", err)
		}
		return anyState(v)
	}
	return s.buildGlobal(ctx)
}

// buildGlobal returns the global state saved by the build. It is read once
// per server.
func (s *Server) buildGlobal(ctx context.Context) (TemplateState, error) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if s.globalLoaded {
		return s.global, nil
	}
	raw, ok, err := store.ReadOptional(ctx, s.app.Immutable(), globalStateArtifact)
	if err != nil {
		return TemplateState{}, err
	}
	if !ok && s.app.opts.GlobalBuildState != nil {
		return TemplateState{}, fmt.Errorf("%w: %s", ErrMissingBuildData, globalStateArtifact)
	}
	global, err := ParseState(raw)
	if err != nil {
		return TemplateState{}, err
	}
	s.global, s.globalLoaded = global, true
	return global, nil
}

func flightKey(locale, route string) string {
	return locale + "\x00" + route
}

// serveIncremental serves a route matched by a wildcard: generated and
// stored in the mutable tier on first request, revalidated afterwards.
// Concurrent requests for the same route share one generation.
func (s *Server) serveIncremental(ctx context.Context, t Entity, info StateInfo, route string, r *http.Request, log *slog.Logger) (artifacts, error) {
	tier := s.app.Mutable()
	base := artifactBase(info.Locale, route)

	v, err, _ := s.flight.Do(flightKey(info.Locale, route), func() (any, error) {
		// Detached from the first caller's cancellation: other callers wait
		// on the same result.
		gctx := context.WithoutCancel(ctx)

		art, ok, err := readArtifacts(gctx, tier, base)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Debug("incremental generation")
			art, err := s.regenerate(gctx, t, info, tier, base)
			if err != nil {
				return nil, err
			}
			return cached{art: art}, nil
		}
		if !t.Capabilities().Revalidates() {
			return cached{art: art}, nil
		}
		due, err := s.shouldRevalidate(gctx, t, info, tier, base, r)
		if err != nil {
			return nil, err
		}
		if !due {
			return cached{art: art}, nil
		}
		log.Debug("revalidating")
		art, err = s.regenerate(gctx, t, info, tier, base)
		if err != nil {
			return nil, err
		}
		return cached{art: art}, nil
	})
	if err != nil {
		return artifacts{}, err
	}
	return v.(cached).art, nil
}

// servePrebuilt serves a route written by the build, revalidating it first
// when the template revalidates.
func (s *Server) servePrebuilt(ctx context.Context, t Entity, info StateInfo, route string, r *http.Request, log *slog.Logger) (artifacts, error) {
	tier := s.app.tierFor(t)
	base := artifactBase(info.Locale, route)

	if !t.Capabilities().Revalidates() {
		art, ok, err := readArtifacts(ctx, tier, base)
		if err != nil {
			return artifacts{}, err
		}
		if !ok {
			return artifacts{}, fmt.Errorf("%w: %s", ErrMissingBuildData, base+suffixContent)
		}
		return art, nil
	}

	v, err, _ := s.flight.Do(flightKey(info.Locale, route), func() (any, error) {
		gctx := context.WithoutCancel(ctx)
		due, err := s.shouldRevalidate(gctx, t, info, tier, base, r)
		if err != nil {
			return nil, err
		}
		if due {
			log.Debug("revalidating")
			art, err := s.regenerate(gctx, t, info, tier, base)
			if err != nil {
				return nil, err
			}
			return cached{art: art}, nil
		}
		art, ok, err := readArtifacts(gctx, tier, base)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingBuildData, base+suffixContent)
		}
		return cached{art: art}, nil
	})
	if err != nil {
		return artifacts{}, err
	}
	return v.(cached).art, nil
}

// shouldRevalidate decides whether cached output is due for regeneration.
// With a time interval, nothing is due before the stored deadline, and the
// logic predicate (if any) is only consulted after it.
func (s *Server) shouldRevalidate(ctx context.Context, t Entity, info StateInfo, tier store.Store, base string, r *http.Request) (bool, error) {
	caps := t.Capabilities()
	if caps.RevalidateTime {
		deadline, err := readDeadline(ctx, tier, base)
		if err != nil {
			return false, err
		}
		if s.app.now().Before(deadline) {
			return false, nil
		}
	}
	if caps.RevalidateLogic {
		return t.checkRevalidate(ctx, info, r)
	}
	return caps.RevalidateTime, nil
}

// regenerate prerenders a route and overwrites its artifacts. A new deadline
// is computed from the current time, not from the previous deadline, so
// pages built together drift apart instead of revalidating in lockstep.
func (s *Server) regenerate(ctx context.Context, t Entity, info StateInfo, tier store.Store, base string) (artifacts, error) {
	art, _, err := s.app.prerender(ctx, t, info)
	if err != nil {
		return artifacts{}, err
	}
	if err := writeArtifacts(ctx, tier, base, art); err != nil {
		return artifacts{}, err
	}
	return art, nil
}

// expand replaces widget placeholders in content with the widgets' output.
func (s *Server) expand(ctx context.Context, req PageRequest, content string, depth int, visiting map[string]struct{}) (string, error) {
	if depth >= maxWidgetDepth {
		return "", fmt.Errorf("%w: widget nesting deeper than %d at %q", ErrDependencyCycle, maxWidgetDepth, req.Path)
	}
	if visiting == nil {
		visiting = make(map[string]struct{})
	}
	self := cleanPath(req.Path)
	visiting[self] = struct{}{}
	defer delete(visiting, self)

	return expandWidgets(content, func(ref WidgetRef) (string, error) {
		route := ref.Route()
		if _, ok := visiting[route]; ok {
			return "", fmt.Errorf("%w: %q embeds %q", ErrDependencyCycle, self, route)
		}
		capsule, ok := s.app.Template(ref.Capsule)
		if !ok || !capsule.IsCapsule() {
			return "", fmt.Errorf("%w: %q", ErrDependencyNotFound, ref.Capsule)
		}
		wreq := PageRequest{
			Path:     route,
			Locale:   req.Locale,
			Template: capsule,
			Request:  req.Request,
		}
		switch v := s.router.Match(route); {
		case v.Kind == Found && v.Template.Name() == capsule.Name():
			wreq.WasIncrementalMatch = v.WasIncrementalMatch
		default:
			wreq.WasIncrementalMatch, wreq.implicit = true, true
		}
		page, err := s.resolve(ctx, wreq, depth+1, visiting)
		if err != nil {
			return "", err
		}
		return page.Content, nil
	})
}

// renderDocument wraps a resolved page in the app shell.
func (s *Server) renderDocument(ctx context.Context, page PageData) (string, error) {
	var buf bytes.Buffer
	if err := s.app.opts.Shell(ctx, page).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
