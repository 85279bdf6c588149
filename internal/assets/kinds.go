// Package assets persists uploaded frame attachments and hands back the
// media items that describe them.
package assets

import (
	"strings"

	"qartha/api/internal/media"
)

// Kind names one attachment slot on a frame record. The string value doubles
// as the path segment under which files of that kind are stored.
type Kind string

const (
	KindImages    Kind = "images"
	KindDocuments Kind = "documents"
	KindDiagrams  Kind = "diagrams"
	KindDFO       Kind = "dfo"
	KindLocation  Kind = "location"
	KindLogo      Kind = "logo"
)

// ParseKind validates a route segment against the known upload kinds.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindImages, KindDocuments, KindDiagrams, KindDFO, KindLocation, KindLogo:
		return k, true
	}
	return "", false
}

// Single reports whether the kind holds at most one item. Uploads to a
// single slot replace the previous file instead of appending.
func (k Kind) Single() bool {
	return k == KindLocation || k == KindLogo
}

// MediaKind returns the item classification recorded for uploads of this
// kind. The reference sheet infers per file since it accepts both images
// and documents.
func (k Kind) MediaKind(filename string) media.Kind {
	switch k {
	case KindImages, KindLocation, KindLogo:
		return media.KindImage
	case KindDiagrams:
		return media.KindDiagram
	case KindDFO:
		return media.InferKind(filename)
	default:
		return media.KindDocument
	}
}

// AcceptsContentType gates uploads by declared content type. Image slots
// take only images, the reference sheet takes images and PDFs, and the
// document and diagram galleries take anything a browser will send.
func (k Kind) AcceptsContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch k {
	case KindImages, KindLocation, KindLogo:
		return strings.HasPrefix(ct, "image/")
	case KindDFO:
		return strings.HasPrefix(ct, "image/") || ct == "application/pdf"
	default:
		return true
	}
}
