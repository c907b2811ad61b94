package hxrender

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// BuildPaths is the result of a template's path generator: the sub-paths to
// prerender below the template's root, and extra data shared by every
// generation call for the template.
type BuildPaths struct {
	Paths []string
	Extra any
}

// PathsFunc generates the paths a template prerenders at build time.
type PathsFunc func(ctx context.Context) (BuildPaths, error)

// StateInfo is passed to every generation function.
type StateInfo struct {
	// Path is the sub-path below the template root ("" for the root itself).
	Path   string
	Locale string
	// Extra is the shared data returned by the template's path generator.
	Extra TemplateState
	// Global is the app-wide state. It is empty at build time when the app
	// only generates global state per request.
	Global TemplateState
}

// Capabilities lists the generation strategies a template uses. Values are
// derived from the functions configured on a Template and cannot be set
// independently.
type Capabilities struct {
	BuildPaths      bool
	Incremental     bool
	BuildState      bool
	RequestState    bool
	RevalidateTime  bool
	RevalidateLogic bool
	Amalgamate      bool
}

// IsBasic reports whether no strategy is configured. A basic template
// renders once at build time with no state.
func (c Capabilities) IsBasic() bool {
	return c == Capabilities{}
}

// Revalidates reports whether cached output may be regenerated.
func (c Capabilities) Revalidates() bool {
	return c.RevalidateTime || c.RevalidateLogic
}

// Exportable reports whether the template can be rendered to a fully static
// site with no server.
func (c Capabilities) Exportable() bool {
	return !c.Revalidates() && !c.Incremental && !c.RequestState && !c.Amalgamate
}

func (c Capabilities) String() string {
	if c.IsBasic() {
		return "basic"
	}
	var parts []string
	add := func(on bool, name string) {
		if on {
			parts = append(parts, name)
		}
	}
	add(c.BuildPaths, "build_paths")
	add(c.Incremental, "incremental")
	add(c.BuildState, "build_state")
	add(c.RequestState, "request_state")
	add(c.RevalidateTime, "revalidate_time")
	add(c.RevalidateLogic, "revalidate_logic")
	add(c.Amalgamate, "amalgamate")
	return strings.Join(parts, ",")
}

// Entity is a type-erased template, as consumed by the build orchestrator,
// the router and the page resolver. The only implementation is *Template[S].
type Entity interface {
	Name() string
	IsCapsule() bool
	Capabilities() Capabilities
	RevalidateInterval() time.Duration
	CanReschedule() bool
	Validate() error

	generatePaths(ctx context.Context) (BuildPaths, error)
	generateBuildState(ctx context.Context, info StateInfo) (TemplateState, error)
	generateRequestState(ctx context.Context, info StateInfo, r *http.Request) (TemplateState, error)
	checkRevalidate(ctx context.Context, info StateInfo, r *http.Request) (bool, error)
	amalgamateStates(ctx context.Context, info StateInfo, states States) (TemplateState, error)
	render(ctx context.Context, state TemplateState) (content, head string, err error)
}

// Template[S] declares how one route (or, for capsules, one kind of widget)
// is rendered and which strategies produce its state of type S.
//
// Templates are configured with chained calls and registered on an App:
//
//	post := hxrender.NewTemplate[Post]("post").
//	    View(postView).
//	    Head(postHead).
//	    IncrementalPaths(listPosts).
//	    BuildState(loadPost).
//	    RevalidateAfter(time.Hour)
//
// Capability combinations that make no sense are unrepresentable where
// possible (incremental generation is only reachable through
// IncrementalPaths, which also sets the path generator) and rejected by
// Validate otherwise.
type Template[S any] struct {
	name    string
	capsule bool

	view func(ctx context.Context, state S) templ.Component
	head func(ctx context.Context, state S) templ.Component

	paths       PathsFunc
	incremental bool

	buildState   func(ctx context.Context, info StateInfo) (S, error)
	requestState func(ctx context.Context, info StateInfo, r *http.Request) (S, error)

	revalidateAfter  time.Duration
	shouldRevalidate func(ctx context.Context, info StateInfo, r *http.Request) (bool, error)

	amalgamate func(ctx context.Context, info StateInfo, build, request S) (S, error)

	reschedule bool
}

// NewTemplate creates a page template. The name is also the template's root
// path; the name "index" maps to the site root.
func NewTemplate[S any](name string) *Template[S] {
	return &Template[S]{name: strings.Trim(name, "/")}
}

// NewCapsule creates a capsule: a template whose output is embedded in
// pages as widgets (see Widget) rather than served as a page of its own.
func NewCapsule[S any](name string) *Template[S] {
	return &Template[S]{name: strings.Trim(name, "/"), capsule: true}
}

// View sets the function rendering the template's body.
func (t *Template[S]) View(fn func(ctx context.Context, state S) templ.Component) *Template[S] {
	t.view = fn
	return t
}

// Head sets the function rendering the document head. Capsules have no head.
func (t *Template[S]) Head(fn func(ctx context.Context, state S) templ.Component) *Template[S] {
	t.head = fn
	return t
}

// BuildPaths makes the template prerender the sub-paths fn returns.
func (t *Template[S]) BuildPaths(fn PathsFunc) *Template[S] {
	t.paths = fn
	t.incremental = false
	return t
}

// IncrementalPaths is BuildPaths plus incremental generation: sub-paths not
// returned by fn are rendered on their first request and cached afterwards.
func (t *Template[S]) IncrementalPaths(fn PathsFunc) *Template[S] {
	t.paths = fn
	t.incremental = true
	return t
}

// BuildState sets the build-time state generator.
func (t *Template[S]) BuildState(fn func(ctx context.Context, info StateInfo) (S, error)) *Template[S] {
	t.buildState = fn
	return t
}

// RequestState sets the per-request state generator. Its output is never
// cached.
func (t *Template[S]) RequestState(fn func(ctx context.Context, info StateInfo, r *http.Request) (S, error)) *Template[S] {
	t.requestState = fn
	return t
}

// RevalidateAfter regenerates cached output once d has passed since it was
// last generated.
func (t *Template[S]) RevalidateAfter(d time.Duration) *Template[S] {
	t.revalidateAfter = d
	return t
}

// ShouldRevalidate sets a predicate deciding on each request whether cached
// output must be regenerated. Combined with RevalidateAfter, the predicate
// only runs once the interval has passed.
func (t *Template[S]) ShouldRevalidate(fn func(ctx context.Context, info StateInfo, r *http.Request) (bool, error)) *Template[S] {
	t.shouldRevalidate = fn
	return t
}

// Amalgamate sets the function merging build and request state. It requires
// both BuildState and RequestState.
func (t *Template[S]) Amalgamate(fn func(ctx context.Context, info StateInfo, build, request S) (S, error)) *Template[S] {
	t.amalgamate = fn
	return t
}

// AllowRescheduling lets the build defer widgets this template depends on to
// request time when they cannot be prerendered, instead of failing.
func (t *Template[S]) AllowRescheduling() *Template[S] {
	t.reschedule = true
	return t
}

// Name returns the template name.
func (t *Template[S]) Name() string {
	return t.name
}

// IsCapsule reports whether the template produces widgets.
func (t *Template[S]) IsCapsule() bool {
	return t.capsule
}

// RevalidateInterval returns the time-based revalidation interval, or zero.
func (t *Template[S]) RevalidateInterval() time.Duration {
	return t.revalidateAfter
}

// CanReschedule reports whether unprerenderable widget dependencies may be
// deferred to request time.
func (t *Template[S]) CanReschedule() bool {
	return t.reschedule
}

// Capabilities derives the template's strategy flags.
func (t *Template[S]) Capabilities() Capabilities {
	return Capabilities{
		BuildPaths:      t.paths != nil,
		Incremental:     t.paths != nil && t.incremental,
		BuildState:      t.buildState != nil,
		RequestState:    t.requestState != nil,
		RevalidateTime:  t.revalidateAfter > 0,
		RevalidateLogic: t.shouldRevalidate != nil,
		Amalgamate:      t.amalgamate != nil,
	}
}

// Validate checks the template definition.
func (t *Template[S]) Validate() error {
	if t.name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTemplate)
	}
	if t.view == nil {
		return fmt.Errorf("%w: %q has no view", ErrInvalidTemplate, t.name)
	}
	if t.capsule && t.head != nil {
		return fmt.Errorf("%w: capsule %q cannot render a head", ErrInvalidTemplate, t.name)
	}
	if t.amalgamate != nil && (t.buildState == nil || t.requestState == nil) {
		return fmt.Errorf("%w: %q amalgamates without both build and request state", ErrInvalidTemplate, t.name)
	}
	if t.revalidateAfter < 0 {
		return fmt.Errorf("%w: %q has a negative revalidation interval", ErrInvalidTemplate, t.name)
	}
	return nil
}

func (t *Template[S]) generatePaths(ctx context.Context) (BuildPaths, error) {
	if t.paths == nil {
		return BuildPaths{}, fmt.Errorf("%w: %q has no path generator", ErrCapabilityMissing, t.name)
	}
	bp, err := t.paths(ctx)
	if err != nil {
		return BuildPaths{}, newGenerationError(t.name, "", "", "build_paths", err)
	}
	return bp, nil
}

func (t *Template[S]) generateBuildState(ctx context.Context, info StateInfo) (TemplateState, error) {
	if t.buildState == nil {
		return TemplateState{}, fmt.Errorf("%w: %q has no build state generator", ErrCapabilityMissing, t.name)
	}
	v, err := t.buildState(ctx, info)
	if err != nil {
		return TemplateState{}, newGenerationError(t.name, info.Path, info.Locale, "build_state", err)
	}
	return NewState(v)
}

func (t *Template[S]) generateRequestState(ctx context.Context, info StateInfo, r *http.Request) (TemplateState, error) {
	if t.requestState == nil {
		return TemplateState{}, fmt.Errorf("%w: %q has no request state generator", ErrCapabilityMissing, t.name)
	}
	v, err := t.requestState(ctx, info, r)
	if err != nil {
		return TemplateState{}, newGenerationError(t.name, info.Path, info.Locale, "request_state", err)
	}
	return NewState(v)
}

func (t *Template[S]) checkRevalidate(ctx context.Context, info StateInfo, r *http.Request) (bool, error) {
	if t.shouldRevalidate == nil {
		return false, fmt.Errorf("%w: %q has no revalidation predicate", ErrCapabilityMissing, t.name)
	}
	ok, err := t.shouldRevalidate(ctx, info, r)
	if err != nil {
		return false, newGenerationError(t.name, info.Path, info.Locale, "should_revalidate", err)
	}
	return ok, nil
}

// amalgamateStates picks the final state of a request:
//
//	build only           -> build
//	request only         -> request
//	both, with function  -> function(build, request)
//	both, no function    -> request
func (t *Template[S]) amalgamateStates(ctx context.Context, info StateInfo, states States) (TemplateState, error) {
	switch {
	case states.Build.IsEmpty():
		return states.Request, nil
	case states.Request.IsEmpty():
		return states.Build, nil
	case t.amalgamate == nil:
		return states.Request, nil
	}
	build, err := StateAs[S](states.Build)
	if err != nil {
		return TemplateState{}, err
	}
	request, err := StateAs[S](states.Request)
	if err != nil {
		return TemplateState{}, err
	}
	v, err := t.amalgamate(ctx, info, build, request)
	if err != nil {
		return TemplateState{}, newGenerationError(t.name, info.Path, info.Locale, "amalgamate", err)
	}
	return NewState(v)
}

// render produces the body and head markup. An empty state renders the zero
// value of S, which is what basic templates receive.
func (t *Template[S]) render(ctx context.Context, state TemplateState) (string, string, error) {
	var v S
	if !state.IsEmpty() {
		var err error
		if v, err = StateAs[S](state); err != nil {
			return "", "", err
		}
	}

	var body bytes.Buffer
	if err := t.view(ctx, v).Render(ctx, &body); err != nil {
		return "", "", newGenerationError(t.name, "", "", "render", err)
	}
	if t.head == nil {
		return body.String(), "", nil
	}
	var head bytes.Buffer
	if err := t.head(ctx, v).Render(ctx, &head); err != nil {
		return "", "", newGenerationError(t.name, "", "", "render", err)
	}
	return body.String(), head.String(), nil
}

var _ Entity = (*Template[struct{}])(nil)
