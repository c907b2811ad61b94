package hxrenderecho

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/pthm/hxrender"
)

func textView(ctx context.Context, s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>"+s+"</p>")
		return err
	})
}

func testServer(t *testing.T) *hxrender.Server {
	t.Helper()
	app := hxrender.New(hxrender.Options{Locales: hxrender.Locales{Default: "en"}})
	app.Add(
		hxrender.NewTemplate[string]("about").
			View(textView).
			BuildState(func(ctx context.Context, info hxrender.StateInfo) (string, error) {
				return "about us", nil
			}),
		hxrender.NewTemplate[string]("me").
			View(textView).
			RequestState(func(ctx context.Context, info hxrender.StateInfo, r *http.Request) (string, error) {
				c, ok := FromRequest(r)
				if !ok {
					return "no echo context", nil
				}
				user, _ := c.Get("user").(string)
				return "hello " + user, nil
			}),
	)
	report, err := hxrender.NewBuilder(app).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return hxrender.NewServer(app, report.Config)
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMount(t *testing.T) {
	e := echo.New()
	Mount(e, testServer(t))

	rec := get(e, "/about")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "<p>about us</p>") {
		t.Errorf("body missing page content: %s", rec.Body.String())
	}

	rec = get(e, "/.hxrender/page/en/about.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"value":"about us"`) {
		t.Errorf("state body = %s", rec.Body.String())
	}

	if rec := get(e, "/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing page status = %d, want 404", rec.Code)
	}
}

func TestMountWithPath(t *testing.T) {
	e := echo.New()
	Mount(e, testServer(t), WithPath("/site"))

	if rec := get(e, "/site/about"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec := get(e, "/.hxrender/page/en/about.json"); rec.Code != http.StatusOK {
		t.Fatalf("state status = %d, want 200", rec.Code)
	}
}

func TestMountGroupSharesMiddleware(t *testing.T) {
	e := echo.New()
	g := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user", "ada")
			return next(c)
		}
	})
	MountGroup(g, testServer(t))

	rec := get(e, "/me")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "<p>hello ada</p>") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestFromRequestWithoutEcho(t *testing.T) {
	if _, ok := FromRequest(nil); ok {
		t.Error("FromRequest(nil) ok = true")
	}
	if _, ok := FromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Error("FromRequest() ok = true for plain request")
	}
}

func TestRender(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := Render(c, textView(context.Background(), "hi")); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if rec.Body.String() != "<p>hi</p>" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
