package media

import (
	"log"
	"net/http"
	"regexp"
	"strings"
)

// Projector turns stored relative paths into externally dereferenceable
// URLs. It is idempotent: already-absolute URLs pass through untouched.
type Projector struct {
	base  string // configured public base URL, may be empty
	mount string // static file mount prefix, e.g. "/static"
}

func NewProjector(publicBaseURL, staticMount string) *Projector {
	mount := "/" + strings.Trim(staticMount, "/")
	return &Projector{
		base:  strings.TrimRight(publicBaseURL, "/"),
		mount: mount,
	}
}

// BaseFor returns the external base URL for the current request: the
// configured public base when present, otherwise inferred from the request
// so the system deploys without static configuration.
func (p *Projector) BaseFor(r *http.Request) string {
	if p.base != "" {
		return p.base
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// embeddedPath recognizes a storage path leaked inside a serialized-object
// fragment: cluster/project/code/kind/filename under the static mount.
var embeddedPath = regexp.MustCompile(`/static/[^/'"{}\s,]+/[^/'"{}\s,]+/[^/'"{}\s,]+/[^/'"{}\s,]+/[^'"{}\s,]+`)

// External projects one stored path onto the given base. Absolute URLs are
// returned unchanged, so applying External to its own output is a no-op.
func (p *Projector) External(base, stored string) string {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return ""
	}
	if strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://") {
		return stored
	}
	stored = p.repair(stored)
	if !strings.HasPrefix(stored, "/") {
		stored = p.mount + "/" + stored
	} else if !strings.HasPrefix(stored, p.mount+"/") {
		stored = p.mount + stored
	}
	return strings.TrimRight(base, "/") + stored
}

// ExternalItems projects a whole item list, returning a fresh slice.
func (p *Projector) ExternalItems(base string, items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		item.URL = p.External(base, item.URL)
		out[i] = item
	}
	return out
}

// repair extracts the real storage path from a known-malformed historical
// value (a serialized object fragment embedded in the URL column). Values
// it cannot recognize pass through; recovery is best-effort by design.
func (p *Projector) repair(stored string) string {
	if !strings.ContainsAny(stored, "{}") {
		return stored
	}
	if match := embeddedPath.FindString(stored); match != "" {
		log.Printf("media: repaired malformed url %.80q -> %q", stored, match)
		return match
	}
	log.Printf("media: unrecognized malformed url %.80q", stored)
	return stored
}
