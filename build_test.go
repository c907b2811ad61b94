package hxrender

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/pthm/hxrender/lib/store"
)

func readArtifact(t *testing.T, s store.Store, name string) string {
	t.Helper()
	v, err := s.Read(context.Background(), name)
	require.NoError(t, err, name)
	return v
}

func requireMissing(t *testing.T, s store.Store, name string) {
	t.Helper()
	_, err := s.Read(context.Background(), name)
	require.True(t, store.IsNotFound(err), "%s: got %v", name, err)
}

func TestBuildThenRequest(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, Options{})
	app.Add(NewTemplate[string]("foo").
		View(stringView).
		Head(stringHead).
		BuildState(func(ctx context.Context, info StateInfo) (string, error) {
			return "foo state", nil
		}))

	srv, report, err := TestBuild(ctx, app)
	require.NoError(t, err)
	require.Equal(t, RenderConfig{"foo": "foo"}, report.Config)
	require.Equal(t, 1, report.Rendered)

	imm := app.Immutable()
	require.Equal(t, `{"type":"string","value":"foo state"}`, readArtifact(t, imm, "static/en-foo.json"))
	require.Equal(t, "<p>foo state</p>", readArtifact(t, imm, "static/en-foo.html"))
	require.Equal(t, "<title>foo state</title>", readArtifact(t, imm, "static/en-foo.head.html"))
	requireMissing(t, imm, "static/en-foo.revld.txt")

	saved, err := LoadRenderConfig(ctx, imm)
	require.NoError(t, err)
	require.Equal(t, report.Config, saved)

	result, err := TestRequest(srv, "/foo")
	require.NoError(t, err)
	require.True(t, result.IsOK(), result.HTML)
	require.True(t, result.HTMLContainsAll("<title>foo state</title>", `<div id="root"><p>foo state</p></div>`))
}

func TestBuildPathsAndIncremental(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, Options{})
	app.Add(NewTemplate[string]("post").
		View(stringView).
		IncrementalPaths(func(ctx context.Context) (BuildPaths, error) {
			return BuildPaths{Paths: []string{"a", "/b/", "a"}, Extra: "shared"}, nil
		}).
		BuildState(func(ctx context.Context, info StateInfo) (string, error) {
			extra, err := StateAs[string](info.Extra)
			if err != nil {
				return "", err
			}
			return info.Path + ":" + extra, nil
		}))

	report, err := NewBuilder(app).Build(ctx)
	require.NoError(t, err)
	require.Equal(t, RenderConfig{"post/a": "post", "post/b": "post", "post/*": "post"}, report.Config)
	require.Equal(t, 2, report.Rendered)

	imm := app.Immutable()
	require.Equal(t, `{"type":"string","value":"shared"}`, readArtifact(t, imm, "static/post.extra.json"))
	require.Equal(t, "<p>a:shared</p>", readArtifact(t, imm, "static/en-post%2Fa.html"))
	require.Equal(t, "<p>b:shared</p>", readArtifact(t, imm, "static/en-post%2Fb.html"))
}

func TestBuildRevalidatingGoesToMutable(t *testing.T) {
	clock := newTestClock()
	app := newTestApp(t, Options{Now: clock.Now})
	app.Add(NewTemplate[string]("news").
		View(stringView).
		BuildState(buildString).
		RevalidateAfter(time.Hour))

	_, err := NewBuilder(app).Build(context.Background())
	require.NoError(t, err)

	requireMissing(t, app.Immutable(), "static/en-news.html")
	require.Equal(t, "<p>build</p>", readArtifact(t, app.Mutable(), "static/en-news.html"))
	require.Equal(t, "2024-03-01T13:00:00Z", readArtifact(t, app.Mutable(), "static/en-news.revld.txt"))
}

func TestBuildSkipsRequestOnlyTemplates(t *testing.T) {
	app := newTestApp(t, Options{})
	app.Add(NewTemplate[string]("dash").View(stringView).RequestState(requestString))

	report, err := NewBuilder(app).Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, RenderConfig{"dash": "dash"}, report.Config)
	require.Equal(t, 0, report.Rendered)
	requireMissing(t, app.Immutable(), "static/en-dash.html")
}

func TestBuildLocales(t *testing.T) {
	app := newTestApp(t, Options{Locales: Locales{Default: "en-US", Others: []string{"fr-FR"}, UsingI18n: true}})
	app.Add(NewTemplate[string]("index").
		View(stringView).
		BuildState(func(ctx context.Context, info StateInfo) (string, error) {
			return "hello " + info.Locale, nil
		}))

	report, err := NewBuilder(app).Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, RenderConfig{"": "index"}, report.Config)
	require.Equal(t, 2, report.Rendered)
	require.Equal(t, "<p>hello fr-FR</p>", readArtifact(t, app.Immutable(), "static/fr-FR-index.html"))
	require.Equal(t, "<p>hello en-US</p>", readArtifact(t, app.Immutable(), "static/en-US-index.html"))
}

func TestBuildGlobalState(t *testing.T) {
	app := newTestApp(t, Options{
		GlobalBuildState: func(ctx context.Context) (any, error) { return "site", nil },
	})
	app.Add(NewTemplate[string]("a").
		View(stringView).
		BuildState(func(ctx context.Context, info StateInfo) (string, error) {
			return StateAs[string](info.Global)
		}))

	_, err := NewBuilder(app).Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, "<p>site</p>", readArtifact(t, app.Immutable(), "static/en-a.html"))
	require.Equal(t, `{"type":"string","value":"site"}`, readArtifact(t, app.Immutable(), "static/global_state.json"))
}

func TestBuildFailureSavesNothing(t *testing.T) {
	boom := errors.New("db down")
	app := newTestApp(t, Options{})
	app.Add(
		NewTemplate[string]("ok").View(stringView).BuildState(buildString),
		NewTemplate[string]("bad").View(stringView).
			BuildState(func(ctx context.Context, info StateInfo) (string, error) { return "", boom }),
	)

	_, err := NewBuilder(app).Build(context.Background())
	require.True(t, errors.Is(err, boom))
	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	require.Equal(t, "bad", ge.Template)
	require.Equal(t, "build_state", ge.Stage)
	require.Equal(t, "en", ge.Locale)
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))

	_, err = LoadRenderConfig(context.Background(), app.Immutable())
	require.True(t, errors.Is(err, ErrMissingBuildData))
}

func pageWithWidget(name, capsule, path string) *Template[emptyState] {
	return NewTemplate[emptyState](name).View(func(ctx context.Context, _ emptyState) templ.Component {
		return seq(text("<h1>%s</h1>", name), Widget(capsule, path))
	})
}

func TestBuildWidgets(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, Options{})
	app.Add(
		pageWithWidget("page", "comments", "page"),
		NewCapsule[string]("comments").
			View(stringView).
			BuildState(func(ctx context.Context, info StateInfo) (string, error) {
				return "comments on " + info.Path, nil
			}),
	)

	srv, report, err := TestBuild(ctx, app)
	require.NoError(t, err)
	require.Equal(t, "comments", report.Config["comments/page"])

	imm := app.Immutable()
	require.Equal(t, "<h1>page</h1><!--hxrender:widget:comments|page-->", readArtifact(t, imm, "static/en-page.html"))
	require.Equal(t, "<p>comments on page</p>", readArtifact(t, imm, "static/en-comments%2Fpage.html"))

	result, err := TestRequest(srv, "/page")
	require.NoError(t, err)
	require.True(t, result.HTMLContains(`<h1>page</h1><div data-hxrender-widget="comments/page"><p>comments on page</p></div>`), result.HTML)

	// capsules are not pages
	result, err = TestRequest(srv, "/comments/page")
	require.NoError(t, err)
	require.True(t, result.HasStatus(http.StatusNotFound))
}

func TestBuildWidgetErrors(t *testing.T) {
	live := func() *Template[string] {
		return NewCapsule[string]("live").View(stringView).RequestState(requestString)
	}

	t.Run("missing capsule", func(t *testing.T) {
		app := newTestApp(t, Options{})
		app.Add(pageWithWidget("page", "ghost", "x"))
		_, err := NewBuilder(app).Build(context.Background())
		require.True(t, errors.Is(err, ErrDependencyNotFound), "got %v", err)
	})

	t.Run("request state widget", func(t *testing.T) {
		app := newTestApp(t, Options{})
		app.Add(pageWithWidget("page", "live", "x"), live())
		_, err := NewBuilder(app).Build(context.Background())
		require.True(t, errors.Is(err, ErrUnprerenderableDependency), "got %v", err)
	})

	t.Run("rescheduled", func(t *testing.T) {
		app := newTestApp(t, Options{})
		app.Add(pageWithWidget("page", "live", "x").AllowRescheduling(), live())
		srv, report, err := TestBuild(context.Background(), app)
		require.NoError(t, err)
		require.Equal(t, []string{"live/x"}, report.Deferred)

		result, err := TestRequest(srv, "/page")
		require.NoError(t, err)
		require.True(t, result.HTMLContains(`<div data-hxrender-widget="live/x"><p>request</p></div>`), result.HTML)
	})

	t.Run("cycle", func(t *testing.T) {
		app := newTestApp(t, Options{})
		app.Add(
			pageWithWidget("page", "a", "1"),
			NewCapsule[emptyState]("a").View(func(ctx context.Context, _ emptyState) templ.Component { return Widget("b", "1") }),
			NewCapsule[emptyState]("b").View(func(ctx context.Context, _ emptyState) templ.Component { return Widget("a", "1") }),
		)
		_, err := NewBuilder(app).Build(context.Background())
		require.True(t, errors.Is(err, ErrDependencyCycle), "got %v", err)

		_, err = LoadRenderConfig(context.Background(), app.Immutable())
		require.True(t, errors.Is(err, ErrMissingBuildData))
	})
}

func TestFindCycle(t *testing.T) {
	require.Nil(t, findCycle(map[string][]string{"a": {"b"}, "b": {"c"}, "x": {"c"}}))
	require.Equal(t, []string{"a", "b", "a"}, findCycle(map[string][]string{"a": {"b"}, "b": {"a"}}))
	require.Equal(t, []string{"s", "s"}, findCycle(map[string][]string{"s": {"s"}}))
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, Options{})
	app.Add(
		NewTemplate[emptyState]("index").View(staticView("<h1>home</h1>")),
		pageWithWidget("about", "comments", "about"),
		NewCapsule[string]("comments").View(stringView).BuildState(buildString),
	)

	out := store.NewMemory()
	report, err := NewBuilder(app).Export(ctx, out)
	require.NoError(t, err)
	require.NotEmpty(t, report.Config)

	index := readArtifact(t, out, "index.html")
	require.Contains(t, index, "<h1>home</h1>")
	about := readArtifact(t, out, "about.html")
	require.Contains(t, about, `<div data-hxrender-widget="comments/about"><p>build</p></div>`)
	requireMissing(t, out, "comments.html")
}

func TestExportRejectsServerTemplates(t *testing.T) {
	app := newTestApp(t, Options{})
	app.Add(NewTemplate[string]("news").View(stringView).BuildState(buildString).RevalidateAfter(time.Minute))

	_, err := NewBuilder(app).Export(context.Background(), store.NewMemory())
	require.True(t, errors.Is(err, ErrNotExportable), "got %v", err)
}
