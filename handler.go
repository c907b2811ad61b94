package hxrender

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// StatePrefix is the path prefix of the state endpoint used by clients for
// subsequent navigation and preloading:
//
//	GET /.hxrender/page/{locale}/{route}.json?entity={template}&was_incremental_match={bool}
const StatePrefix = "/.hxrender/page/"

// Handler returns the HTTP handler serving full pages and the state
// endpoint. Mount it at "/".
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			s.fail(w, r, errMethodNotAllowed)
			return
		}
		if strings.HasPrefix(r.URL.Path, StatePrefix) {
			s.serveState(w, r)
			return
		}
		s.servePage(w, r)
	})
}

var errMethodNotAllowed = ClientCause(errors.New("hxrender: method not allowed"), http.StatusMethodNotAllowed)

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	v := s.router.Resolve(r.URL.Path)
	switch v.Kind {
	case LocaleDetection:
		locale := s.app.Locales().Negotiate(r.Header.Get("Accept-Language"))
		http.Redirect(w, r, s.router.LocalizedRedirect(v, locale), http.StatusTemporaryRedirect)
		return
	case NotFound:
		s.fail(w, r, ErrPageNotFound)
		return
	}
	if v.Template.IsCapsule() {
		s.fail(w, r, ErrPageNotFound)
		return
	}

	page, err := s.ResolvePage(r.Context(), PageRequest{
		Path:                v.Path,
		Locale:              v.Locale,
		Template:            v.Template,
		WasIncrementalMatch: v.WasIncrementalMatch,
		Request:             r,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.renderDocument(r.Context(), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) serveState(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, StatePrefix)
	locale, route, _ := strings.Cut(rest, "/")
	if locale == "" && route == "" {
		s.fail(w, r, ErrPageNotFound)
		return
	}
	// the root route is requested as "{locale}/.json"
	route = strings.TrimSuffix(route, ".json")
	if !s.app.Locales().IsSupported(locale) {
		s.fail(w, r, ErrPageNotFound)
		return
	}

	req, ok := s.stateRequest(route, r.URL.Query().Get("entity"))
	if !ok {
		s.fail(w, r, ErrPageNotFound)
		return
	}
	if raw := r.URL.Query().Get("was_incremental_match"); raw != "" && !req.implicit {
		// the router is authoritative; a mismatching hint means a stale client
		if hint, err := strconv.ParseBool(raw); err == nil && hint != req.WasIncrementalMatch {
			s.app.Logger().Debug("incremental hint mismatch", "route", route, "hint", hint)
		}
	}
	req.Locale = locale
	req.Request = r
	req.StateOnly = true

	page, err := s.ResolvePage(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

// stateRequest finds the template serving route, honoring an explicit
// capsule name for widgets the render config does not list.
func (s *Server) stateRequest(route, entity string) (PageRequest, bool) {
	route = cleanPath(route)
	if v := s.router.Match(route); v.Kind == Found && (entity == "" || entity == v.Template.Name()) {
		return PageRequest{Path: v.Path, Template: v.Template, WasIncrementalMatch: v.WasIncrementalMatch}, true
	}
	if entity == "" {
		return PageRequest{}, false
	}
	t, ok := s.app.Template(entity)
	if !ok || !t.IsCapsule() {
		return PageRequest{}, false
	}
	if route != t.Name() && !strings.HasPrefix(route, t.Name()+"/") {
		return PageRequest{}, false
	}
	return PageRequest{Path: route, Template: t, WasIncrementalMatch: true, implicit: true}, true
}

// fail writes the error view for err.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status >= 500 {
		s.app.Logger().Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.app.Logger().Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = s.app.opts.ErrorView(status, http.StatusText(status)).Render(r.Context(), w)
}
