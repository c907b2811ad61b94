package hxrender

import "strings"

// VerdictKind is the outcome of routing a path.
type VerdictKind int

const (
	NotFound VerdictKind = iota
	Found
	// LocaleDetection means the path has no supported locale prefix; the
	// caller should redirect to Verdict.Redirect (or a better locale).
	LocaleDetection
)

func (k VerdictKind) String() string {
	switch k {
	case Found:
		return "found"
	case LocaleDetection:
		return "locale_detection"
	}
	return "not_found"
}

// Verdict is the result of Router.Resolve.
type Verdict struct {
	Kind     VerdictKind
	Template Entity
	Locale   string
	// Path is the route without locale prefix.
	Path string
	// WasIncrementalMatch is true when Path matched a wildcard key rather
	// than an exact route.
	WasIncrementalMatch bool
	// Redirect is the path to redirect to for LocaleDetection verdicts. It
	// has no locale yet; see Router.LocalizedRedirect.
	Redirect string
}

// Router maps incoming paths to templates using a render config.
type Router struct {
	cfg     RenderConfig
	locales Locales
	app     *App
}

// NewRouter creates a router over cfg.
func NewRouter(app *App, cfg RenderConfig) *Router {
	return &Router{cfg: cfg, locales: app.Locales(), app: app}
}

// Resolve routes a request path such as "/en-US/blog/hello".
func (r *Router) Resolve(path string) Verdict {
	path = cleanPath(path)
	locale := r.locales.Default

	if r.locales.UsingI18n {
		first, rest, _ := strings.Cut(path, "/")
		if !r.locales.IsSupported(first) {
			return Verdict{Kind: LocaleDetection, Path: path, Redirect: path}
		}
		locale, path = first, rest
	}

	v := r.Match(path)
	v.Locale = locale
	return v
}

// LocalizedRedirect returns the redirect target for a LocaleDetection
// verdict in the given locale.
func (r *Router) LocalizedRedirect(v Verdict, locale string) string {
	if v.Redirect == "" {
		return "/" + locale
	}
	return "/" + locale + "/" + v.Redirect
}

// Match finds the template for a route without locale prefix.
//
// Exact routes win. Otherwise wildcard keys are tried for increasingly long
// prefixes of the route ("a/*", "a/b/*", ...), stopping at the first prefix
// with no wildcard key, and the longest match wins. The cost is bounded by
// the depth of the route, not by the size of the config.
func (r *Router) Match(route string) Verdict {
	route = cleanPath(route)
	if name, ok := r.cfg[route]; ok {
		return r.found(name, route, false)
	}

	segments := strings.Split(route, "/")
	best := ""
	for i := range segments {
		key := wildcardKey(strings.Join(segments[:i+1], "/"))
		name, ok := r.cfg[key]
		if !ok {
			break
		}
		best = name
	}
	if best == "" && route != "" {
		best = r.cfg[wildcardKey("")]
	}
	if best == "" {
		return Verdict{Kind: NotFound, Path: route}
	}
	return r.found(best, route, true)
}

func (r *Router) found(name, route string, incremental bool) Verdict {
	t, ok := r.app.Template(name)
	if !ok {
		return Verdict{Kind: NotFound, Path: route}
	}
	return Verdict{Kind: Found, Template: t, Path: route, WasIncrementalMatch: incremental}
}
