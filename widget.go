package hxrender

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	"github.com/a-h/templ"
)

// WidgetRef identifies one widget: a capsule and a sub-path below it.
type WidgetRef struct {
	Capsule string
	Path    string
}

// Route is the full route of the widget, as used in render configs and
// artifact names.
func (w WidgetRef) Route() string {
	return joinPath(w.Capsule, w.Path)
}

const (
	widgetOpen  = "<!--hxrender:widget:"
	widgetClose = "-->"
	widgetSep   = "|"
)

func (w WidgetRef) placeholder() string {
	return widgetOpen + w.Capsule + widgetSep + cleanPath(w.Path) + widgetClose
}

// Widget embeds the widget capsule/path into a page.
//
// Pages are rendered and cached with a placeholder in place of the widget;
// the placeholder is swapped for the widget's own (separately cached and
// revalidated) output whenever the page is served. Rendering a widget also
// records it as a dependency of the page, so the build can prerender it and
// the client cache can track it.
//
//	templ postPage(p Post) {
//	    <article>{ p.Body }</article>
//	    @hxrender.Widget("comments", p.Slug)
//	}
func Widget(capsule, path string) templ.Component {
	ref := WidgetRef{Capsule: cleanPath(capsule), Path: cleanPath(path)}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ref.Capsule == "" {
			return fmt.Errorf("hxrender: widget with empty capsule name")
		}
		if strings.ContainsAny(ref.Capsule+ref.Path, widgetSep+">") {
			return fmt.Errorf("hxrender: invalid widget reference %q", ref.Route())
		}
		if c := collectorFrom(ctx); c != nil {
			c.add(ref)
		}
		_, err := io.WriteString(w, ref.placeholder())
		return err
	})
}

type collectorKey struct{}

// widgetCollector records the widgets rendered into one page.
type widgetCollector struct {
	mu   sync.Mutex
	seen map[WidgetRef]struct{}
	refs []WidgetRef
}

func withWidgetCollector(ctx context.Context) (context.Context, *widgetCollector) {
	c := &widgetCollector{seen: make(map[WidgetRef]struct{})}
	return context.WithValue(ctx, collectorKey{}, c), c
}

func collectorFrom(ctx context.Context) *widgetCollector {
	c, _ := ctx.Value(collectorKey{}).(*widgetCollector)
	return c
}

func (c *widgetCollector) add(ref WidgetRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[ref]; ok {
		return
	}
	c.seen[ref] = struct{}{}
	c.refs = append(c.refs, ref)
}

func (c *widgetCollector) list() []WidgetRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WidgetRef(nil), c.refs...)
}

// parseWidgets returns the widget placeholders in content, in order of
// first appearance.
func parseWidgets(content string) []WidgetRef {
	var out []WidgetRef
	seen := make(map[WidgetRef]struct{})
	for {
		ref, _, end, ok := nextWidget(content)
		if !ok {
			return out
		}
		if _, dup := seen[ref]; !dup {
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
		content = content[end:]
	}
}

// nextWidget locates the first placeholder in content.
func nextWidget(content string) (ref WidgetRef, start, end int, ok bool) {
	start = strings.Index(content, widgetOpen)
	if start < 0 {
		return WidgetRef{}, 0, 0, false
	}
	rest := content[start+len(widgetOpen):]
	n := strings.Index(rest, widgetClose)
	if n < 0 {
		return WidgetRef{}, 0, 0, false
	}
	capsule, path, found := strings.Cut(rest[:n], widgetSep)
	if !found {
		return WidgetRef{}, 0, 0, false
	}
	end = start + len(widgetOpen) + n + len(widgetClose)
	return WidgetRef{Capsule: capsule, Path: path}, start, end, true
}

// expandWidgets replaces every placeholder with the output of resolve,
// wrapped in an element identifying the widget.
func expandWidgets(content string, resolve func(WidgetRef) (string, error)) (string, error) {
	var b strings.Builder
	for {
		ref, start, end, ok := nextWidget(content)
		if !ok {
			b.WriteString(content)
			return b.String(), nil
		}
		inner, err := resolve(ref)
		if err != nil {
			return "", err
		}
		b.WriteString(content[:start])
		b.WriteString(`<div data-hxrender-widget="`)
		b.WriteString(html.EscapeString(ref.Route()))
		b.WriteString(`">`)
		b.WriteString(inner)
		b.WriteString(`</div>`)
		content = content[end:]
	}
}
