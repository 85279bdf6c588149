package tenant

import (
	"errors"
	"testing"
)

func newTestResolver() *Resolver {
	return NewResolver([]string{"Trinity", "trk", "lab"})
}

func TestResolveFoldsProjectAliases(t *testing.T) {
	resolver := newTestResolver()

	variants := []string{
		"sabinas",
		"Sabinas",
		"Sabinas Project",
		"Sabinas%20Project",
		"trinity/sabinas",
		"sabinas/trinity",
	}

	for _, variant := range variants {
		cluster, project, err := resolver.Resolve("trk", variant)
		if err != nil {
			t.Fatalf("Resolve(trk, %q) failed: %v", variant, err)
		}
		if cluster != "trk" {
			t.Errorf("Resolve(trk, %q) cluster = %q", variant, cluster)
		}
		if project != "Sabinas Project" {
			t.Errorf("Resolve(trk, %q) project = %q, want %q", variant, project, "Sabinas Project")
		}
	}
}

func TestResolveUnknownProjectPassesThrough(t *testing.T) {
	resolver := newTestResolver()

	_, project, err := resolver.Resolve("lab", "research")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if project != "research" {
		t.Errorf("project = %q, want passthrough %q", project, "research")
	}
}

func TestResolveRejectsUnknownCluster(t *testing.T) {
	resolver := newTestResolver()

	_, _, err := resolver.Resolve("nonexistent", "sabinas")
	if !errors.Is(err, ErrUnknownCluster) {
		t.Errorf("expected ErrUnknownCluster, got %v", err)
	}
}

func TestCanonicalProjectDecodesPercentEncoding(t *testing.T) {
	if got := CanonicalProject("Sabinas%20Project"); got != "Sabinas Project" {
		t.Errorf("CanonicalProject = %q", got)
	}
	// Broken escapes fall back to the raw value instead of erroring.
	if got := CanonicalProject("bad%zz"); got != "bad%zz" {
		t.Errorf("CanonicalProject(bad escape) = %q", got)
	}
}

func TestFolderName(t *testing.T) {
	tests := []struct {
		project string
		want    string
	}{
		{"Sabinas Project", "sabinas"},
		{"Trinity", "trinity"},
		{"Monclova Project", "monclova"},
		{"New Site Project", "new-site-project"},
	}
	for _, tt := range tests {
		if got := FolderName(tt.project); got != tt.want {
			t.Errorf("FolderName(%q) = %q, want %q", tt.project, got, tt.want)
		}
	}
}
