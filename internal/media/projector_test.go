package media

import (
	"net/http/httptest"
	"testing"
)

func TestExternalJoinsBaseAndMount(t *testing.T) {
	p := NewProjector("https://qartha.example.com", "/static")

	got := p.External("https://qartha.example.com", "Trinity/sabinas/IDF-1/images/a.png")
	want := "https://qartha.example.com/static/Trinity/sabinas/IDF-1/images/a.png"
	if got != want {
		t.Errorf("External = %q, want %q", got, want)
	}
}

func TestExternalIsIdempotent(t *testing.T) {
	p := NewProjector("https://qartha.example.com", "/static")
	base := "https://qartha.example.com"

	stored := "Trinity/sabinas/IDF-1/images/a.png"
	once := p.External(base, stored)
	twice := p.External(base, once)
	if once != twice {
		t.Errorf("double projection changed the URL: %q != %q", once, twice)
	}
}

func TestExternalKeepsAbsoluteURLs(t *testing.T) {
	p := NewProjector("https://qartha.example.com", "/static")

	abs := "http://cdn.example.net/legacy/a.png"
	if got := p.External("https://qartha.example.com", abs); got != abs {
		t.Errorf("absolute URL was rewritten to %q", got)
	}
}

func TestExternalPreservesExistingMount(t *testing.T) {
	p := NewProjector("", "/static")

	got := p.External("http://localhost:8080", "/static/Trinity/sabinas/IDF-1/dfo/d.pdf")
	want := "http://localhost:8080/static/Trinity/sabinas/IDF-1/dfo/d.pdf"
	if got != want {
		t.Errorf("External = %q, want %q", got, want)
	}
}

func TestExternalEmptyStays(t *testing.T) {
	p := NewProjector("https://qartha.example.com", "/static")
	if got := p.External("https://qartha.example.com", "   "); got != "" {
		t.Errorf("External(blank) = %q, want empty", got)
	}
}

func TestExternalRepairsEmbeddedObjectFragment(t *testing.T) {
	p := NewProjector("https://qartha.example.com", "/static")

	malformed := `{"url": "/static/Trinity/sabinas/IDF-1/images/1693412345678.jpg"`
	got := p.External("https://qartha.example.com", malformed)
	want := "https://qartha.example.com/static/Trinity/sabinas/IDF-1/images/1693412345678.jpg"
	if got != want {
		t.Errorf("repair = %q, want %q", got, want)
	}
}

func TestExternalItemsReturnsFreshSlice(t *testing.T) {
	p := NewProjector("https://qartha.example.com", "/static")
	items := []Item{{URL: "a/b/c/d/e.png", Name: "e.png", Kind: KindImage}}

	projected := p.ExternalItems("https://qartha.example.com", items)
	if items[0].URL == projected[0].URL {
		t.Errorf("input slice was mutated: %q", items[0].URL)
	}
	if projected[0].Name != "e.png" || projected[0].Kind != KindImage {
		t.Errorf("projection altered non-URL fields: %+v", projected[0])
	}
}

func TestBaseForPrefersConfiguredBase(t *testing.T) {
	p := NewProjector("https://public.example.com", "/static")
	r := httptest.NewRequest("GET", "http://internal:8080/api/health", nil)
	if got := p.BaseFor(r); got != "https://public.example.com" {
		t.Errorf("BaseFor = %q", got)
	}
}

func TestBaseForFallsBackToRequestHost(t *testing.T) {
	p := NewProjector("", "/static")

	r := httptest.NewRequest("GET", "http://localhost:8080/api/health", nil)
	if got := p.BaseFor(r); got != "http://localhost:8080" {
		t.Errorf("BaseFor = %q", got)
	}

	r.Header.Set("X-Forwarded-Proto", "https")
	if got := p.BaseFor(r); got != "https://localhost:8080" {
		t.Errorf("BaseFor with forwarded proto = %q", got)
	}
}
