package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/hxrender"
)

func setupDist(t *testing.T) (string, func(string) string) {
	t.Helper()
	dir := t.TempDir()
	dist := filepath.Join(dir, "dist")
	cfgPath := filepath.Join(dir, "hxrender.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("dist: "+dist+"\n"), 0o644))

	cfg, err := hxrender.LoadConfig(cfgPath)
	require.NoError(t, err)
	imm, mut, closeFn, err := cfg.OpenStores()
	require.NoError(t, err)
	defer closeFn()

	ctx := context.Background()
	rc := hxrender.RenderConfig{"": "index", "blog/*": "post", "blog/hello": "post"}
	require.NoError(t, rc.Save(ctx, imm))
	require.NoError(t, imm.Write(ctx, "static/xx-XX-index.html", "<h1>home</h1>"))
	require.NoError(t, mut.Write(ctx, "static/xx-XX-blog%2Fnew.html", "<p>new</p>"))

	return dist, func(name string) string {
		if name == "HXRENDER_CONFIG" {
			return cfgPath
		}
		return ""
	}
}

func TestRoutes(t *testing.T) {
	_, getenv := setupDist(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"routes"}, &out, getenv))

	got := out.String()
	require.Contains(t, got, "/blog/*")
	require.Contains(t, got, "incremental")
	require.Contains(t, got, "/blog/hello")
}

func TestArtifacts(t *testing.T) {
	_, getenv := setupDist(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"artifacts", "static/"}, &out, getenv))

	got := out.String()
	require.Contains(t, got, "static/xx-XX-index.html")
	require.Contains(t, got, "static/xx-XX-blog%2Fnew.html")
	require.NotContains(t, got, "render_conf.json")
}

func TestClean(t *testing.T) {
	dist, getenv := setupDist(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"clean", "--dry-run"}, &out, getenv))
	require.Contains(t, out.String(), "would remove")
	_, err := os.Stat(dist)
	require.NoError(t, err)

	require.NoError(t, run(context.Background(), []string{"clean"}, &out, getenv))
	_, err = os.Stat(dist)
	require.True(t, os.IsNotExist(err))
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run(context.Background(), []string{"generate"}, &out, func(string) string { return "" }))
	require.Error(t, run(context.Background(), nil, &out, func(string) string { return "" }))
	require.NoError(t, run(context.Background(), []string{"version"}, &out, func(string) string { return "" }))
	require.Contains(t, out.String(), "hxrender version")
}
