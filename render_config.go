package hxrender

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pthm/hxrender/lib/store"
)

// RenderConfig maps routes to template names. Keys are either exact routes
// ("blog/hello") or wildcard keys ("blog/*") standing for every route under
// the prefix that is rendered incrementally.
type RenderConfig map[string]string

const wildcardSuffix = "/*"

// wildcardKey returns the wildcard key for routes under prefix.
func wildcardKey(prefix string) string {
	prefix = cleanPath(prefix)
	if prefix == "" {
		return "*"
	}
	return prefix + wildcardSuffix
}

// IsWildcard reports whether key is a wildcard key.
func IsWildcard(key string) bool {
	return key == "*" || strings.HasSuffix(key, wildcardSuffix)
}

// Routes returns the keys in sorted order.
func (c RenderConfig) Routes() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every wildcard key belongs to an incremental
// template and that every key names a registered template.
func (c RenderConfig) Validate(app *App) error {
	for _, route := range c.Routes() {
		name := c[route]
		t, ok := app.Template(name)
		if !ok {
			return fmt.Errorf("%w: route %q maps to %q", ErrTemplateNotFound, route, name)
		}
		if IsWildcard(route) && !t.Capabilities().Incremental {
			return fmt.Errorf("%w: wildcard %q for non-incremental template %q", ErrInvalidTemplate, route, name)
		}
	}
	return nil
}

// Save writes the config to s as JSON.
func (c RenderConfig) Save(ctx context.Context, s store.Store) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return s.Write(ctx, renderConfigArtifact, string(b))
}

// LoadRenderConfig reads the config a build saved to s.
func LoadRenderConfig(ctx context.Context, s store.Store) (RenderConfig, error) {
	raw, err := s.Read(ctx, renderConfigArtifact)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s (has the app been built?)", ErrMissingBuildData, renderConfigArtifact)
		}
		return nil, err
	}
	var cfg RenderConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("hxrender: parse %s: %w", renderConfigArtifact, err)
	}
	return cfg, nil
}
