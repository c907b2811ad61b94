package hxrender

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWidgetRecordsDependency(t *testing.T) {
	ctx, c := withWidgetCollector(context.Background())
	var buf bytes.Buffer

	require.NoError(t, Widget("comments", "/posts/hello/").Render(ctx, &buf))
	require.NoError(t, Widget("comments", "posts/hello").Render(ctx, &buf))
	require.NoError(t, Widget("/likes", "").Render(ctx, &buf))

	require.Equal(t, []WidgetRef{
		{Capsule: "comments", Path: "posts/hello"},
		{Capsule: "likes", Path: ""},
	}, c.list())
	require.Equal(t,
		"<!--hxrender:widget:comments|posts/hello--><!--hxrender:widget:comments|posts/hello--><!--hxrender:widget:likes|-->",
		buf.String())
}

func TestWidgetRejectsBadReferences(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, Widget("", "x").Render(context.Background(), &buf))
	require.Error(t, Widget("a|b", "x").Render(context.Background(), &buf))
	require.Error(t, Widget("a", "x-->y").Render(context.Background(), &buf))
}

func TestParseWidgets(t *testing.T) {
	content := "<p>a</p><!--hxrender:widget:c|x--><!-- plain comment --><!--hxrender:widget:d|--><!--hxrender:widget:c|x-->"
	require.Equal(t, []WidgetRef{{Capsule: "c", Path: "x"}, {Capsule: "d"}}, parseWidgets(content))
	require.Nil(t, parseWidgets("<p>no widgets</p>"))
	require.Nil(t, parseWidgets("<!--hxrender:widget:unterminated"))
}

func TestExpandWidgets(t *testing.T) {
	content := "<main><!--hxrender:widget:c|x--></main><!--hxrender:widget:d|-->"
	out, err := expandWidgets(content, func(ref WidgetRef) (string, error) {
		return strings.ToUpper(ref.Route()), nil
	})
	require.NoError(t, err)
	require.Equal(t, `<main><div data-hxrender-widget="c/x">C/X</div></main><div data-hxrender-widget="d">D</div>`, out)

	boom := errors.New("boom")
	_, err = expandWidgets(content, func(WidgetRef) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
}

func TestWidgetRoute(t *testing.T) {
	require.Equal(t, "comments/a/b", WidgetRef{Capsule: "comments", Path: "a/b"}.Route())
	require.Equal(t, "comments", WidgetRef{Capsule: "comments"}.Route())
}
