package pages

import (
	"context"
	"html"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/hxrender"
)

// Shell is the document layout shared by every page.
func Shell(ctx context.Context, page hxrender.PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		state, err := page.State.MarshalJSON()
		if err != nil {
			return err
		}
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="` + html.EscapeString(page.Locale) + `"><head><meta charset="utf-8">`)
		b.WriteString(page.Head)
		b.WriteString(`</head><body><nav><a href="/">Home</a> <a href="/about">About</a> <a href="/clock">Clock</a></nav>`)
		b.WriteString(`<main id="root">` + page.Content + `</main>`)
		b.WriteString(`<script type="application/json" id="hxrender-state">` + string(state) + `</script></body></html>`)
		_, err = io.WriteString(w, b.String())
		return err
	})
}

func raw(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func title(s string) templ.Component {
	return raw(`<title>` + html.EscapeString(s) + `</title>`)
}

func indexView(s IndexState) templ.Component {
	var b strings.Builder
	b.WriteString(`<h1>` + html.EscapeString(s.Site) + `</h1><ul>`)
	for _, p := range s.Posts {
		b.WriteString(`<li><a href="/post/` + html.EscapeString(p.Slug) + `">` + html.EscapeString(p.Title) + `</a> `)
		b.WriteString(`<time>` + p.Published.Format(time.DateOnly) + `</time></li>`)
	}
	b.WriteString(`</ul>`)
	return raw(b.String())
}

func postView(p Post) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<article><h1>`+html.EscapeString(p.Title)+`</h1><p>`+
			html.EscapeString(p.Body)+`</p></article><section class="comments">`); err != nil {
			return err
		}
		if err := hxrender.Widget("comments", p.Slug).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</section>`)
		return err
	})
}

func commentsView(s CommentsState) templ.Component {
	if len(s.Comments) == 0 {
		return raw(`<p>No comments yet.</p>`)
	}
	var b strings.Builder
	b.WriteString(`<ul>`)
	for _, c := range s.Comments {
		b.WriteString(`<li><b>` + html.EscapeString(c.Author) + `</b> ` + html.EscapeString(c.Text) + `</li>`)
	}
	b.WriteString(`</ul>`)
	return raw(b.String())
}

func clockView(s ClockState) templ.Component {
	return raw(`<p>Built at ` + s.BuiltAt.Format(time.RFC3339) + `, served at ` +
		s.ServedAt.Format(time.RFC3339) + ` to ` + html.EscapeString(s.Agent) + `</p>`)
}
