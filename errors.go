package hxrender

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pthm/hxrender/lib/store"
)

// Sentinel errors for build and serve operations.
var (
	ErrTemplateNotFound          = errors.New("hxrender: template not found")
	ErrCapabilityMissing         = errors.New("hxrender: template does not have this capability")
	ErrInvalidTemplate           = errors.New("hxrender: invalid template definition")
	ErrNotExportable             = errors.New("hxrender: template cannot be exported")
	ErrDependencyNotFound        = errors.New("hxrender: widget dependency not found")
	ErrUnprerenderableDependency = errors.New("hxrender: widget dependency cannot be prerendered")
	ErrDependencyCycle           = errors.New("hxrender: widget dependency cycle")
	ErrInvalidState              = errors.New("hxrender: invalid template state")
	ErrMissingBuildData          = errors.New("hxrender: build artifact missing")
	ErrPageNotFound              = errors.New("hxrender: page not found")
)

// Cause attributes a generation failure to the client or the server, which
// decides between a 4xx and a 5xx response.
type Cause int

const (
	CauseServer Cause = iota
	CauseClient
)

func (c Cause) String() string {
	if c == CauseClient {
		return "client"
	}
	return "server"
}

type causeError struct {
	cause  Cause
	status int
	err    error
}

func (e *causeError) Error() string { return e.err.Error() }
func (e *causeError) Unwrap() error { return e.err }

// ClientCause marks err as the client's fault. Return it from a generation
// function to answer with 400 (or status, if given) instead of 500.
//
//	if post == nil {
//	    return Post{}, hxrender.ClientCause(fmt.Errorf("no post %q", info.Path), http.StatusNotFound)
//	}
func ClientCause(err error, status ...int) error {
	code := http.StatusBadRequest
	if len(status) > 0 {
		code = status[0]
	}
	return &causeError{cause: CauseClient, status: code, err: err}
}

// ServerCause marks err as a server failure. This is the default for
// unmarked errors; it exists to attach a specific 5xx status.
func ServerCause(err error, status ...int) error {
	code := http.StatusInternalServerError
	if len(status) > 0 {
		code = status[0]
	}
	return &causeError{cause: CauseServer, status: code, err: err}
}

// GenerationError reports a failing generation function together with where
// it ran.
type GenerationError struct {
	Template string
	Path     string
	Locale   string
	Stage    string // build_paths, build_state, request_state, should_revalidate, amalgamate, render
	Cause    Cause
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("hxrender: %s failed for %q (path %q, locale %q): %v",
		e.Stage, e.Template, e.Path, e.Locale, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func newGenerationError(tmpl, path, locale, stage string, err error) error {
	if err == nil {
		return nil
	}
	ge := &GenerationError{Template: tmpl, Path: path, Locale: locale, Stage: stage, Cause: CauseServer, Err: err}
	var ce *causeError
	if errors.As(err, &ce) {
		ge.Cause = ce.cause
	}
	return ge
}

// StatusCode maps an error produced by this package to an HTTP status.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ce *causeError
	if errors.As(err, &ce) {
		return ce.status
	}
	var ge *GenerationError
	if errors.As(err, &ge) && ge.Cause == CauseClient {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, ErrPageNotFound), errors.Is(err, ErrTemplateNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err means the requested page or template does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPageNotFound) || errors.Is(err, ErrTemplateNotFound)
}

// IsStoreNotFound reports whether err is a missing artifact in a store.
func IsStoreNotFound(err error) bool {
	return store.IsNotFound(err)
}

// IsClientError reports whether err was attributed to the client.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500
}
