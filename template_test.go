package hxrender

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noPaths(ctx context.Context) (BuildPaths, error) {
	return BuildPaths{}, nil
}

func buildString(ctx context.Context, info StateInfo) (string, error) {
	return "build", nil
}

func requestString(ctx context.Context, info StateInfo, r *http.Request) (string, error) {
	return "request", nil
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name string
		tmpl *Template[string]
		want Capabilities
	}{
		{
			name: "basic",
			tmpl: NewTemplate[string]("a"),
			want: Capabilities{},
		},
		{
			name: "build paths",
			tmpl: NewTemplate[string]("a").BuildPaths(noPaths),
			want: Capabilities{BuildPaths: true},
		},
		{
			name: "incremental implies build paths",
			tmpl: NewTemplate[string]("a").IncrementalPaths(noPaths),
			want: Capabilities{BuildPaths: true, Incremental: true},
		},
		{
			name: "build paths after incremental resets incremental",
			tmpl: NewTemplate[string]("a").IncrementalPaths(noPaths).BuildPaths(noPaths),
			want: Capabilities{BuildPaths: true},
		},
		{
			name: "revalidation",
			tmpl: NewTemplate[string]("a").BuildState(buildString).RevalidateAfter(time.Hour).
				ShouldRevalidate(func(context.Context, StateInfo, *http.Request) (bool, error) { return true, nil }),
			want: Capabilities{BuildState: true, RevalidateTime: true, RevalidateLogic: true},
		},
		{
			name: "amalgamation",
			tmpl: NewTemplate[string]("a").BuildState(buildString).RequestState(requestString).
				Amalgamate(func(ctx context.Context, info StateInfo, b, r string) (string, error) { return b + r, nil }),
			want: Capabilities{BuildState: true, RequestState: true, Amalgamate: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tmpl.Capabilities()
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.name == "basic", got.IsBasic())
		})
	}
}

func TestCapabilitiesExportable(t *testing.T) {
	require.True(t, Capabilities{}.Exportable())
	require.True(t, Capabilities{BuildPaths: true, BuildState: true}.Exportable())
	require.False(t, Capabilities{BuildPaths: true, Incremental: true}.Exportable())
	require.False(t, Capabilities{RevalidateTime: true}.Exportable())
	require.False(t, Capabilities{RequestState: true}.Exportable())
	require.Equal(t, "basic", Capabilities{}.String())
	require.Equal(t, "build_paths,incremental", Capabilities{BuildPaths: true, Incremental: true}.String())
}

func TestTemplateValidate(t *testing.T) {
	tests := []struct {
		name string
		tmpl Entity
		ok   bool
	}{
		{"valid", NewTemplate[string]("a").View(stringView).Head(stringHead), true},
		{"empty name", NewTemplate[string]("/").View(stringView), false},
		{"no view", NewTemplate[string]("a"), false},
		{"capsule with head", NewCapsule[string]("c").View(stringView).Head(stringHead), false},
		{"amalgamate without request state", NewTemplate[string]("a").View(stringView).BuildState(buildString).
			Amalgamate(func(ctx context.Context, info StateInfo, b, r string) (string, error) { return b, nil }), false},
		{"negative interval", NewTemplate[string]("a").View(stringView).RevalidateAfter(-time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tmpl.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, ErrInvalidTemplate), "got %v", err)
		})
	}
}

func TestAppAddPanics(t *testing.T) {
	app := newTestApp(t, Options{})
	require.Panics(t, func() { app.Add(NewTemplate[string]("a")) })

	app.Add(NewTemplate[string]("a").View(stringView))
	require.Panics(t, func() { app.Add(NewTemplate[string]("a").View(stringView)) })
}

func TestAmalgamation(t *testing.T) {
	merge := func(ctx context.Context, info StateInfo, b, r string) (string, error) {
		return b + "+" + r, nil
	}
	withFn := NewTemplate[string]("a").View(stringView).BuildState(buildString).RequestState(requestString).Amalgamate(merge)
	withoutFn := NewTemplate[string]("b").View(stringView).BuildState(buildString).RequestState(requestString)

	build, request := MustState("build"), MustState("request")

	tests := []struct {
		name   string
		tmpl   Entity
		states States
		want   string
	}{
		{"build only", withFn, States{Build: build}, "build"},
		{"request only", withFn, States{Request: request}, "request"},
		{"both with function", withFn, States{Build: build, Request: request}, "build+request"},
		{"both without function", withoutFn, States{Build: build, Request: request}, "request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.tmpl.amalgamateStates(context.Background(), StateInfo{}, tt.states)
			require.NoError(t, err)
			v, err := StateAs[string](got)
			require.NoError(t, err)
			require.Equal(t, tt.want, v)
		})
	}
}

func TestAmalgamationError(t *testing.T) {
	boom := errors.New("boom")
	tmpl := NewTemplate[string]("a").View(stringView).BuildState(buildString).RequestState(requestString).
		Amalgamate(func(ctx context.Context, info StateInfo, b, r string) (string, error) {
			return "", ClientCause(boom)
		})

	_, err := tmpl.amalgamateStates(context.Background(), StateInfo{Path: "x", Locale: "en"},
		States{Build: MustState("b"), Request: MustState("r")})

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	require.Equal(t, "amalgamate", ge.Stage)
	require.Equal(t, CauseClient, ge.Cause)
	require.True(t, errors.Is(err, boom))
	require.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestMissingCapability(t *testing.T) {
	tmpl := NewTemplate[string]("a").View(stringView)
	_, err := tmpl.generateBuildState(context.Background(), StateInfo{})
	require.True(t, errors.Is(err, ErrCapabilityMissing))
	_, err = tmpl.generatePaths(context.Background())
	require.True(t, errors.Is(err, ErrCapabilityMissing))
}

func TestTestRender(t *testing.T) {
	tmpl := NewTemplate[string]("a").View(stringView).Head(stringHead)
	result, err := TestRender(context.Background(), tmpl, "hello")
	require.NoError(t, err)
	require.True(t, result.HTMLContains("<p>hello</p>"))
	require.Equal(t, "<title>hello</title>", result.Head)
	require.True(t, result.IsOK())
}
