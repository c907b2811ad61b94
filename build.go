package hxrender

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm/hxrender/lib/store"
)

// Builder prerenders an App into its stores.
type Builder struct {
	app *App
}

// NewBuilder creates a builder for app.
func NewBuilder(app *App) *Builder {
	return &Builder{app: app}
}

// BuildReport summarises a finished build.
type BuildReport struct {
	Config RenderConfig
	// Rendered counts the route × locale combinations prerendered.
	Rendered int
	// Deferred lists widget routes left for request time.
	Deferred []string
	Duration time.Duration
}

type buildJob struct {
	template Entity
	route    string
	locale   string
}

type pendingWidget struct {
	ref    WidgetRef
	locale string
	owner  Entity
}

// buildRun is the state shared by the jobs of one build.
type buildRun struct {
	mu       sync.Mutex
	cfg      RenderConfig
	graph    map[string][]string
	built    map[string]struct{}
	pending  []pendingWidget
	rendered int
}

func (r *buildRun) record(job buildJob, widgets []WidgetRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered++
	r.built[job.locale+"\x00"+job.route] = struct{}{}
	for _, w := range widgets {
		r.graph[job.route] = appendUnique(r.graph[job.route], w.Route())
		r.pending = append(r.pending, pendingWidget{ref: w, locale: job.locale, owner: job.template})
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Build prerenders every template and saves the render config to the
// immutable store. Nothing is saved unless every template succeeds.
func (b *Builder) Build(ctx context.Context) (*BuildReport, error) {
	return b.build(ctx, false)
}

// Export builds the app and writes every page as a complete HTML document
// to out, for hosting without a server. Templates that need a server
// (revalidation, incremental generation, request state, amalgamation) make
// the export fail.
func (b *Builder) Export(ctx context.Context, out store.Store) (*BuildReport, error) {
	report, err := b.build(ctx, true)
	if err != nil {
		return nil, err
	}

	srv := NewServer(b.app, report.Config)
	locales := b.app.Locales()
	for _, route := range report.Config.Routes() {
		t, ok := b.app.Template(report.Config[route])
		if !ok || t.IsCapsule() {
			continue
		}
		for _, locale := range locales.All() {
			page, err := srv.ResolvePage(ctx, PageRequest{Path: route, Locale: locale, Template: t})
			if err != nil {
				return nil, err
			}
			doc, err := srv.renderDocument(ctx, page)
			if err != nil {
				return nil, err
			}
			if err := out.Write(ctx, exportName(locales, locale, route), doc); err != nil {
				return nil, err
			}
		}
	}
	b.app.Logger().Info("export complete", "routes", len(report.Config), "locales", len(locales.All()))
	return report, nil
}

func exportName(locales Locales, locale, route string) string {
	p := cleanPath(route)
	if p == "" {
		p = indexName
	}
	if locales.UsingI18n {
		p = locale + "/" + p
	}
	return p + ".html"
}

func (b *Builder) build(ctx context.Context, exporting bool) (*BuildReport, error) {
	start := time.Now()
	log := b.app.Logger()
	templates := b.app.Templates()

	if exporting {
		for _, t := range templates {
			if caps := t.Capabilities(); !caps.Exportable() {
				return nil, fmt.Errorf("%w: %q uses %s", ErrNotExportable, t.Name(), caps)
			}
		}
	}

	global, err := b.globalState(ctx)
	if err != nil {
		return nil, err
	}

	run := &buildRun{
		cfg:   RenderConfig{},
		graph: make(map[string][]string),
		built: make(map[string]struct{}),
	}

	var (
		jobsMu sync.Mutex
		jobs   []buildJob
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.app.opts.BuildConcurrency)
	for _, t := range templates {
		g.Go(func() error {
			planned, err := b.plan(gctx, t, run)
			if err != nil {
				return err
			}
			jobsMu.Lock()
			jobs = append(jobs, planned...)
			jobsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(b.app.opts.BuildConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			return b.runJob(gctx, job, global, run)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	deferred, err := b.buildWidgets(ctx, global, run)
	if err != nil {
		return nil, err
	}
	if cycle := findCycle(run.graph); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
	}
	if err := run.cfg.Validate(b.app); err != nil {
		return nil, err
	}
	if err := b.app.Immutable().Write(ctx, globalStateArtifact, global.String()); err != nil {
		return nil, err
	}
	if err := run.cfg.Save(ctx, b.app.Immutable()); err != nil {
		return nil, err
	}

	report := &BuildReport{
		Config:   run.cfg,
		Rendered: run.rendered,
		Deferred: deferred,
		Duration: time.Since(start),
	}
	log.Info("build complete",
		"templates", len(templates),
		"routes", len(run.cfg),
		"rendered", report.Rendered,
		"deferred", len(deferred),
		"duration", report.Duration,
	)
	return report, nil
}

func (b *Builder) globalState(ctx context.Context) (TemplateState, error) {
	fn := b.app.opts.GlobalBuildState
	if fn == nil {
		return TemplateState{}, nil
	}
	v, err := fn(ctx)
	if err != nil {
		return TemplateState{}, newGenerationError("<global>", "", "", "global_build_state", err)
	}
	return anyState(v)
}

// plan resolves the routes of t, registers them in the render config and
// returns the generation jobs for them.
func (b *Builder) plan(ctx context.Context, t Entity, run *buildRun) ([]buildJob, error) {
	caps := t.Capabilities()
	root := templateRoot(t.Name())

	paths := []string{""}
	if caps.BuildPaths {
		bp, err := t.generatePaths(ctx)
		if err != nil {
			return nil, err
		}
		extra, err := anyState(bp.Extra)
		if err != nil {
			return nil, err
		}
		if err := b.app.Immutable().Write(ctx, extraArtifact(t.Name()), extra.String()); err != nil {
			return nil, err
		}
		paths = dedupe(bp.Paths)
	}

	routes := make([]string, 0, len(paths))
	run.mu.Lock()
	for _, p := range paths {
		route := joinPath(root, p)
		run.cfg[route] = t.Name()
		routes = append(routes, route)
	}
	if caps.Incremental {
		run.cfg[wildcardKey(root)] = t.Name()
	}
	run.mu.Unlock()

	// Templates rendered purely from request state have nothing to prerender.
	if caps.RequestState && !caps.BuildState {
		return nil, nil
	}

	locales := b.app.Locales().All()
	jobs := make([]buildJob, 0, len(routes)*len(locales))
	for _, route := range routes {
		for _, locale := range locales {
			jobs = append(jobs, buildJob{template: t, route: route, locale: locale})
		}
	}
	return jobs, nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = cleanPath(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (b *Builder) runJob(ctx context.Context, job buildJob, global TemplateState, run *buildRun) error {
	info, err := b.app.stateInfo(ctx, job.template, job.route, job.locale, global)
	if err != nil {
		return err
	}
	art, widgets, err := b.app.prerender(ctx, job.template, info)
	if err != nil {
		return err
	}
	if err := writeArtifacts(ctx, b.app.tierFor(job.template), artifactBase(job.locale, job.route), art); err != nil {
		return err
	}
	run.record(job, widgets)
	b.app.Logger().Debug("prerendered", "template", job.template.Name(), "route", job.route, "locale", job.locale)
	return nil
}

// buildWidgets prerenders widgets that pages depend on but that no template
// listed among its build paths. It walks the dependencies with an explicit
// stack, so widgets depending on widgets are handled without recursion.
func (b *Builder) buildWidgets(ctx context.Context, global TemplateState, run *buildRun) ([]string, error) {
	router := NewRouter(b.app, run.cfg)
	stack := append([]pendingWidget(nil), run.pending...)
	visited := make(map[string]struct{})
	var deferred []string

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		route := w.ref.Route()
		key := w.locale + "\x00" + route
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		capsule, ok := b.app.Template(w.ref.Capsule)
		if !ok || !capsule.IsCapsule() {
			return nil, fmt.Errorf("%w: %q (used by %q)", ErrDependencyNotFound, w.ref.Capsule, w.owner.Name())
		}
		if _, ok := run.built[key]; ok {
			continue
		}
		if v := router.Match(route); v.Kind == Found && v.WasIncrementalMatch && v.Template.Name() == capsule.Name() {
			// generated on first request like any incremental route
			continue
		}

		caps := capsule.Capabilities()
		if caps.RequestState {
			if w.owner.CanReschedule() {
				deferred = appendUnique(deferred, route)
				continue
			}
			return nil, fmt.Errorf("%w: %q needs request state (used by %q)", ErrUnprerenderableDependency, route, w.owner.Name())
		}

		info, err := b.app.stateInfo(ctx, capsule, route, w.locale, global)
		if err != nil {
			return nil, err
		}
		art, widgets, err := b.app.prerender(ctx, capsule, info)
		if err != nil {
			return nil, err
		}
		if err := writeArtifacts(ctx, b.app.tierFor(capsule), artifactBase(w.locale, route), art); err != nil {
			return nil, err
		}
		run.cfg[route] = capsule.Name()
		run.built[key] = struct{}{}
		run.rendered++
		for _, dep := range widgets {
			run.graph[route] = appendUnique(run.graph[route], dep.Route())
			stack = append(stack, pendingWidget{ref: dep, locale: w.locale, owner: w.owner})
		}
	}
	sort.Strings(deferred)
	return deferred, nil
}

// findCycle returns a dependency cycle in graph as a route list whose first
// and last elements are equal, or nil. Iterative depth-first search.
func findCycle(graph map[string][]string) []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	type frame struct {
		node string
		next int
	}
	state := make(map[string]int, len(graph))
	for _, root := range nodes {
		if state[root] != unvisited {
			continue
		}
		state[root] = inProgress
		stack := []frame{{node: root}}
		path := []string{root}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := graph[top.node]
			if top.next >= len(deps) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			dep := deps[top.next]
			top.next++
			switch state[dep] {
			case inProgress:
				for i, n := range path {
					if n == dep {
						return append(append([]string(nil), path[i:]...), dep)
					}
				}
			case unvisited:
				state[dep] = inProgress
				stack = append(stack, frame{node: dep})
				path = append(path, dep)
			}
		}
	}
	return nil
}
