package search

import (
	"strings"
)

// Record is the indexed projection of one frame. Only identity and the
// free-text fields live in the index; hits are rehydrated from Postgres by
// identity.
type Record struct {
	ID          string `json:"id"`
	Cluster     string `json:"cluster"`
	Project     string `json:"project"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	Site        string `json:"site"`
	Room        string `json:"room"`
	Description string `json:"description"`
}

// Query describes a tenant-scoped search request.
type Query struct {
	Cluster string
	Project string
	Text    string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Record `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DocID derives a stable index document ID from a frame identity. Meilisearch
// document IDs only allow alphanumerics, hyphens and underscores.
func DocID(cluster, project, code string) string {
	return slug(cluster) + "__" + slug(project) + "__" + slug(code)
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
