// Package hxrender renders server-side web pages with per-template rendering
// strategies: static generation, incremental generation, request-time
// rendering, revalidation and state amalgamation. Markup comes from Templ
// components; hxrender decides when they run and where their output is
// cached.
//
// # Templates
//
// A template is a route (or, for capsules, a kind of embeddable widget)
// with a typed state S and a set of generation functions:
//
//	post := hxrender.NewTemplate[Post]("post").
//	    View(func(ctx context.Context, p Post) templ.Component { return postView(p) }).
//	    IncrementalPaths(listPosts).
//	    BuildState(loadPost).
//	    RevalidateAfter(time.Hour)
//
// The configured functions determine the template's Capabilities:
//   - BuildPaths / IncrementalPaths: which sub-paths exist at build time,
//     and whether unknown sub-paths are generated on first request
//   - BuildState: state computed once per path at build time
//   - RequestState: state computed on every request, never cached
//   - RevalidateAfter / ShouldRevalidate: when cached output is regenerated
//   - Amalgamate: how build and request state are merged
//
// A template with none of them is basic: it is rendered once, statelessly.
//
// # Build
//
// Builder.Build walks every template, resolves its paths, prerenders each
// path in each locale and writes the artifacts to one of two stores: the
// immutable store for output that never changes, the mutable store for
// output that revalidation may overwrite. It also produces the
// RenderConfig, the route → template mapping used for routing, where a
// "prefix/*" key marks an incremental domain. The config is only saved when
// the whole build succeeds.
//
// # Serving
//
// Server routes each request with the render config and resolves the page:
// prebuilt output is read back, incremental routes are generated on first
// request, due output is revalidated in place, request state is generated
// and amalgamated. Concurrent requests for the same route and locale share
// a single generation.
//
//	app := hxrender.New(hxrender.Options{Locales: hxrender.Locales{Default: "en-US"}})
//	app.Add(index, post, comments)
//	report, err := hxrender.NewBuilder(app).Build(ctx)
//	srv := hxrender.NewServer(app, report.Config)
//	http.ListenAndServe(":8080", srv.Handler())
//
// # Widgets
//
// Pages embed capsule output with Widget. Widgets are cached and revalidated
// independently of the pages embedding them; the build prerenders widgets
// discovered while rendering pages and rejects dependency cycles.
//
// # State
//
// TemplateState carries state across stores and the client without the
// engine knowing its type. StateAs recovers the concrete value and fails
// with ErrInvalidState when the stored type does not match.
//
// The client-side page state cache lives in lib/pss.
package hxrender
