package hxrender

import (
	"context"
	"html"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// DefaultShell renders a minimal HTML document around a page: the head
// markup, the content inside #root, and the page state as JSON for the
// client to pick up without a second request.
func DefaultShell(ctx context.Context, page PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		state, err := page.State.MarshalJSON()
		if err != nil {
			return err
		}
		parts := []string{
			`<!DOCTYPE html><html lang="`, html.EscapeString(page.Locale), `"><head><meta charset="utf-8">`,
			page.Head,
			`</head><body><div id="root">`,
			page.Content,
			`</div><script type="application/json" id="hxrender-state">`,
			string(state),
			`</script></body></html>`,
		}
		for _, p := range parts {
			if _, err := io.WriteString(w, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// DefaultErrorView renders a bare error page.
func DefaultErrorView(status int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="hxrender-error"><h1>`+strconv.Itoa(status)+`</h1><p>`+
			html.EscapeString(message)+`</p></div>`)
		return err
	})
}
