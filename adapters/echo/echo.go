// Package hxrenderecho mounts an hxrender server on the Echo framework.
//
//	e := echo.New()
//	hxrenderecho.Mount(e, hxrender.NewServer(app, report.Config))
//
// Or on a group with middleware:
//
//	g := e.Group("", authMiddleware)
//	hxrenderecho.MountGroup(g, srv)
//
// Generation functions receive the underlying *http.Request; FromRequest
// recovers the echo.Context serving it.
package hxrenderecho

import (
	"context"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/pthm/hxrender"
)

// Option configures Mount and MountGroup.
type Option func(*options)

type options struct {
	path string
}

// WithPath mounts pages below path instead of the root. The state
// endpoint is always mounted at hxrender.StatePrefix.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

func newOptions(opts []Option) *options {
	o := &options{path: "/"}
	for _, opt := range opts {
		opt(o)
	}
	if o.path == "" || o.path[len(o.path)-1] != '/' {
		o.path += "/"
	}
	return o
}

// Mount routes page requests and the state endpoint on e to srv.
func Mount(e *echo.Echo, srv *hxrender.Server, opts ...Option) {
	o := newOptions(opts)
	h := handler(srv, o.path)
	e.GET(hxrender.StatePrefix+"*", h, withContext)
	e.HEAD(hxrender.StatePrefix+"*", h, withContext)
	e.GET(o.path+"*", h, withContext)
	e.HEAD(o.path+"*", h, withContext)
}

// MountGroup is Mount for a group, so pages share the group's middleware.
func MountGroup(g *echo.Group, srv *hxrender.Server, opts ...Option) {
	o := newOptions(opts)
	h := handler(srv, o.path)
	g.GET(hxrender.StatePrefix+"*", h, withContext)
	g.HEAD(hxrender.StatePrefix+"*", h, withContext)
	g.GET(o.path+"*", h, withContext)
	g.HEAD(o.path+"*", h, withContext)
}

func handler(srv *hxrender.Server, path string) echo.HandlerFunc {
	h := srv.Handler()
	if path != "/" {
		h = stripPages(path, h)
	}
	return echo.WrapHandler(h)
}

// stripPages removes the mount path from page URLs, leaving state endpoint
// URLs untouched.
func stripPages(prefix string, h http.Handler) http.Handler {
	strip := http.StripPrefix(prefix[:len(prefix)-1], h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) >= len(hxrender.StatePrefix) && r.URL.Path[:len(hxrender.StatePrefix)] == hxrender.StatePrefix {
			h.ServeHTTP(w, r)
			return
		}
		strip.ServeHTTP(w, r)
	})
}

type contextKey struct{}

func withContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		c.SetRequest(r.WithContext(context.WithValue(r.Context(), contextKey{}, c)))
		return next(c)
	}
}

// FromRequest returns the echo.Context serving r, for use in request state
// generators and revalidation predicates.
//
//	RequestState(func(ctx context.Context, info hxrender.StateInfo, r *http.Request) (Profile, error) {
//	    c, _ := hxrenderecho.FromRequest(r)
//	    return loadProfile(ctx, c.Get("user").(string))
//	})
func FromRequest(r *http.Request) (echo.Context, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.Context().Value(contextKey{}).(echo.Context)
	return c, ok
}

// Render writes a templ component to the Echo response.
//
//	func handler(c echo.Context) error {
//	    return hxrenderecho.Render(c, myTemplate())
//	}
func Render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(c.Request().Context(), c.Response())
}
