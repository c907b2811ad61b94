package hxrender

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
)

// TestResult holds a rendered page or response for assertions.
type TestResult struct {
	HTML       string
	Head       string
	StatusCode int
	Headers    http.Header
	// Page is set for state endpoint responses.
	Page *PageData
}

// TestRender renders a template's view and head for state, without building
// or storing anything. Use it for unit tests of view logic:
//
//	result, err := hxrender.TestRender(ctx, post, Post{Title: "Hello"})
//	if !result.HTMLContains("Hello") {
//	    t.Fatal("missing title")
//	}
func TestRender[S any](ctx context.Context, t *Template[S], state S) (*TestResult, error) {
	var body bytes.Buffer
	if err := t.view(ctx, state).Render(ctx, &body); err != nil {
		return nil, err
	}
	result := &TestResult{HTML: body.String(), StatusCode: http.StatusOK, Headers: make(http.Header)}
	if t.head != nil {
		var head bytes.Buffer
		if err := t.head(ctx, state).Render(ctx, &head); err != nil {
			return nil, err
		}
		result.Head = head.String()
	}
	return result, nil
}

// TestBuild builds app and returns a server for it, ready for TestRequest.
// The app's stores are used as configured; apps created with New default to
// in-memory stores.
func TestBuild(ctx context.Context, app *App) (*Server, *BuildReport, error) {
	report, err := NewBuilder(app).Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	return NewServer(app, report.Config), report, nil
}

// TestRequest performs a GET request for path against srv's handler.
//
//	srv, _, err := hxrender.TestBuild(ctx, app)
//	result, err := hxrender.TestRequest(srv, "/en-US/blog/hello")
func TestRequest(srv *Server, path string) (*TestResult, error) {
	return NewTestRequest(http.MethodGet, path).Execute(srv)
}

// TestRequestBuilder builds requests with headers or a context attached.
//
//	result, err := hxrender.NewTestRequest("GET", "/").
//	    WithHeader("Accept-Language", "fr").
//	    Execute(srv)
type TestRequestBuilder struct {
	method  string
	path    string
	headers map[string]string
	ctx     context.Context
}

// NewTestRequest creates a request builder.
func NewTestRequest(method, path string) *TestRequestBuilder {
	return &TestRequestBuilder{
		method:  method,
		path:    path,
		headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

// WithHeader adds a header to the request.
func (b *TestRequestBuilder) WithHeader(key, value string) *TestRequestBuilder {
	b.headers[key] = value
	return b
}

// WithContext sets the request context.
func (b *TestRequestBuilder) WithContext(ctx context.Context) *TestRequestBuilder {
	b.ctx = ctx
	return b
}

// Execute runs the request against srv. Responses from the state endpoint
// are decoded into TestResult.Page.
func (b *TestRequestBuilder) Execute(srv *Server) (*TestResult, error) {
	req := httptest.NewRequest(b.method, b.path, nil).WithContext(b.ctx)
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	result := &TestResult{
		HTML:       rec.Body.String(),
		StatusCode: rec.Code,
		Headers:    rec.Header(),
	}
	if rec.Code == http.StatusOK && strings.HasPrefix(req.URL.Path, StatePrefix) {
		var page PageData
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			return nil, err
		}
		result.Page = &page
		result.Head = page.Head
	}
	return result, nil
}

// HTMLContains checks if the HTML contains a substring.
func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

// HTMLContainsAll checks if the HTML contains all the given substrings.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// IsOK checks if the status code is 200.
func (r *TestResult) IsOK() bool {
	return r.StatusCode == http.StatusOK
}

// HasStatus checks if the status code matches.
func (r *TestResult) HasStatus(code int) bool {
	return r.StatusCode == code
}

// RedirectedTo reports whether the response redirects to url.
func (r *TestResult) RedirectedTo(url string) bool {
	return r.StatusCode >= 300 && r.StatusCode < 400 && r.Headers.Get("Location") == url
}
