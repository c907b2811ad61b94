package hxrender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pthm/hxrender/lib/store"
)

// artifacts is everything stored for one route in one locale.
type artifacts struct {
	state    TemplateState
	content  string
	head     string
	deadline time.Time
}

// stateInfo assembles the generation input for route in locale, loading the
// template's shared build data when it has a path generator.
func (a *App) stateInfo(ctx context.Context, t Entity, route, locale string, global TemplateState) (StateInfo, error) {
	info := StateInfo{
		Path:   subPath(templateRoot(t.Name()), route),
		Locale: locale,
		Global: global,
	}
	if !t.Capabilities().BuildPaths {
		return info, nil
	}
	raw, err := a.opts.Immutable.Read(ctx, extraArtifact(t.Name()))
	if store.IsNotFound(err) {
		return StateInfo{}, fmt.Errorf("%w: extra data for %q", ErrMissingBuildData, t.Name())
	}
	if err != nil {
		return StateInfo{}, err
	}
	extra, err := ParseState(raw)
	if err != nil {
		return StateInfo{}, err
	}
	info.Extra = extra
	return info, nil
}

// prerender generates build state (if any) and renders the template. The
// returned widgets are the dependencies discovered while rendering.
func (a *App) prerender(ctx context.Context, t Entity, info StateInfo) (artifacts, []WidgetRef, error) {
	caps := t.Capabilities()

	var art artifacts
	if caps.BuildState {
		state, err := t.generateBuildState(ctx, info)
		if err != nil {
			return artifacts{}, nil, err
		}
		art.state = state
	}

	content, head, widgets, err := a.renderState(ctx, t, info, art.state)
	if err != nil {
		return artifacts{}, nil, err
	}
	art.content, art.head = content, head
	if caps.RevalidateTime {
		art.deadline = a.now().Add(t.RevalidateInterval())
	}
	return art, widgets, nil
}

// renderState renders t with state, collecting widget dependencies.
func (a *App) renderState(ctx context.Context, t Entity, info StateInfo, state TemplateState) (string, string, []WidgetRef, error) {
	rctx, collector := withWidgetCollector(ctx)
	content, head, err := t.render(rctx, state)
	if err != nil {
		var ge *GenerationError
		if errors.As(err, &ge) {
			ge.Path, ge.Locale = info.Path, info.Locale
		}
		return "", "", nil, err
	}
	return content, head, collector.list(), nil
}

func writeArtifacts(ctx context.Context, tier store.Store, base string, art artifacts) error {
	if !art.state.IsEmpty() {
		if err := tier.Write(ctx, base+suffixState, art.state.String()); err != nil {
			return err
		}
	}
	if err := tier.Write(ctx, base+suffixContent, art.content); err != nil {
		return err
	}
	if err := tier.Write(ctx, base+suffixHead, art.head); err != nil {
		return err
	}
	if !art.deadline.IsZero() {
		if err := writeDeadline(ctx, tier, base, art.deadline); err != nil {
			return err
		}
	}
	return nil
}

func writeDeadline(ctx context.Context, tier store.Store, base string, deadline time.Time) error {
	return tier.Write(ctx, base+suffixDeadline, deadline.UTC().Format(time.RFC3339Nano))
}

// readArtifacts loads the cached output of a route. ok is false when no
// content has been stored yet; state is optional.
func readArtifacts(ctx context.Context, tier store.Store, base string) (art artifacts, ok bool, err error) {
	content, ok, err := store.ReadOptional(ctx, tier, base+suffixContent)
	if err != nil || !ok {
		return artifacts{}, false, err
	}
	head, _, err := store.ReadOptional(ctx, tier, base+suffixHead)
	if err != nil {
		return artifacts{}, false, err
	}
	rawState, _, err := store.ReadOptional(ctx, tier, base+suffixState)
	if err != nil {
		return artifacts{}, false, err
	}
	state, err := ParseState(rawState)
	if err != nil {
		return artifacts{}, false, err
	}
	return artifacts{state: state, content: content, head: head}, true, nil
}

// readDeadline loads the stored revalidation deadline of a route.
func readDeadline(ctx context.Context, tier store.Store, base string) (time.Time, error) {
	raw, err := tier.Read(ctx, base+suffixDeadline)
	if store.IsNotFound(err) {
		return time.Time{}, fmt.Errorf("%w: revalidation deadline %s", ErrMissingBuildData, base)
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("hxrender: parse deadline %s: %w", base, err)
	}
	return t, nil
}
