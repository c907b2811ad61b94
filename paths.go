package hxrender

import (
	"net/url"
	"strings"
)

// indexName is the template (and artifact) name of the site root.
const indexName = "index"

// Artifact suffixes appended to the base name returned by artifactBase.
const (
	suffixContent  = ".html"
	suffixState    = ".json"
	suffixHead     = ".head.html"
	suffixDeadline = ".revld.txt"
)

// renderConfigArtifact is where the build stores the render config in the
// immutable store.
const renderConfigArtifact = "render_conf.json"

// globalStateArtifact holds the global build state, so request-time
// generation sees the value the build rendered with.
const globalStateArtifact = "static/global_state.json"

// templateRoot is the route prefix of a template.
func templateRoot(name string) string {
	if name == indexName {
		return ""
	}
	return name
}

func cleanPath(p string) string {
	return strings.Trim(p, "/")
}

// joinPath joins a template root and a sub-path into a full route.
func joinPath(root, sub string) string {
	root, sub = cleanPath(root), cleanPath(sub)
	switch {
	case root == "":
		return sub
	case sub == "":
		return root
	}
	return root + "/" + sub
}

// subPath strips the template root from a full route.
func subPath(root, full string) string {
	root, full = cleanPath(root), cleanPath(full)
	if root == "" {
		return full
	}
	if full == root {
		return ""
	}
	return strings.TrimPrefix(full, root+"/")
}

// artifactBase names the artifacts of one route in one locale, without
// suffix: static/{locale}-{url-encoded route}.
func artifactBase(locale, route string) string {
	route = cleanPath(route)
	if route == "" {
		route = indexName
	}
	return "static/" + locale + "-" + url.PathEscape(route)
}

// extraArtifact names the shared build data of a template.
func extraArtifact(template string) string {
	return "static/" + url.PathEscape(template) + ".extra.json"
}
