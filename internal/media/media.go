// Package media reconciles the stored representations of frame attachments.
//
// The media columns have carried at least four shapes over the life of the
// system: a bare relative path, a JSON-encoded object, a JSON-encoded array,
// and natively decoded values handed over by drivers. Normalize absorbs all
// of them into one canonical in-memory list; Serialize always writes the
// canonical array-of-objects form back, so the schema self-heals on every
// write. Nothing past this boundary branches on shape again.
package media

import (
	"encoding/json"
	"log"
	"path"
	"strings"
)

// Kind classifies an attachment for rendering purposes.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindDiagram  Kind = "diagram"
)

func validKind(s string) bool {
	switch Kind(s) {
	case KindImage, KindDocument, KindDiagram:
		return true
	}
	return false
}

// Item is one attached file reference. Items are replaced wholesale, never
// mutated in place.
type Item struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Arity describes how many items a record field may hold.
type Arity int

const (
	ArityMany Arity = iota
	AritySingle
)

// Normalize converts any historical stored shape into a canonical item list.
// It never fails: malformed JSON degrades to "no data" so reads stay
// available, and calling it on its own output is a no-op.
func Normalize(raw any, arity Arity) []Item {
	items := normalizeValue(raw)
	if arity == AritySingle && len(items) > 1 {
		// The field historically held a single value. Deliberate lossy
		// coercion: the first element is authoritative.
		items = items[:1]
	}
	return items
}

func normalizeValue(raw any) []Item {
	switch v := raw.(type) {
	case nil:
		return []Item{}
	case Item:
		return []Item{fillDefaults(v)}
	case *Item:
		if v == nil {
			return []Item{}
		}
		return []Item{fillDefaults(*v)}
	case []Item:
		items := make([]Item, 0, len(v))
		for _, item := range v {
			items = append(items, fillDefaults(item))
		}
		return items
	case string:
		return normalizeText(v)
	case []byte:
		return normalizeText(string(v))
	case json.RawMessage:
		return normalizeText(string(v))
	case map[string]any:
		if item, ok := itemFromMap(v); ok {
			return []Item{item}
		}
		return []Item{}
	case []any:
		items := make([]Item, 0, len(v))
		for _, element := range v {
			switch e := element.(type) {
			case string:
				if trimmed := strings.TrimSpace(e); trimmed != "" {
					items = append(items, wrapPath(trimmed))
				}
			case map[string]any:
				if item, ok := itemFromMap(e); ok {
					items = append(items, item)
				}
			case Item:
				items = append(items, fillDefaults(e))
			}
		}
		return items
	default:
		return []Item{}
	}
}

func normalizeText(text string) []Item {
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return []Item{}
	}

	if strings.HasPrefix(text, "[") || strings.HasPrefix(text, "{") || strings.HasPrefix(text, `"`) {
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			// Looked like JSON but is not. Availability over strictness:
			// treat as no data rather than fail the read.
			log.Printf("media: discarding malformed stored value %.60q", text)
			return []Item{}
		}
		if inner, ok := decoded.(string); ok {
			// A JSON-encoded bare path.
			if trimmed := strings.TrimSpace(inner); trimmed != "" {
				return []Item{wrapPath(trimmed)}
			}
			return []Item{}
		}
		return normalizeValue(decoded)
	}

	// Legacy shape: a bare relative path.
	return []Item{wrapPath(text)}
}

func itemFromMap(m map[string]any) (Item, bool) {
	url, _ := m["url"].(string)
	url = strings.TrimSpace(url)
	if url == "" {
		return Item{}, false
	}
	item := Item{URL: url}
	if name, ok := m["name"].(string); ok {
		item.Name = strings.TrimSpace(name)
	}
	if kind, ok := m["kind"].(string); ok && validKind(kind) {
		item.Kind = Kind(kind)
	}
	return fillDefaults(item), true
}

func wrapPath(p string) Item {
	return fillDefaults(Item{URL: p})
}

func fillDefaults(item Item) Item {
	if item.Name == "" {
		item.Name = displayName(item.URL)
	}
	if item.Kind == "" {
		item.Kind = InferKind(item.URL)
	}
	return item
}

func displayName(url string) string {
	base := path.Base(strings.TrimSpace(url))
	if base == "." || base == "/" {
		return "file"
	}
	return base
}

// InferKind guesses an attachment kind from its file extension. Diagrams
// cannot be told apart from plain images by extension, so drawing formats
// are the only ones tagged as diagram here.
func InferKind(url string) Kind {
	switch strings.ToLower(path.Ext(url)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp":
		return KindImage
	case ".dwg", ".dxf", ".vsd", ".vsdx", ".drawio":
		return KindDiagram
	default:
		return KindDocument
	}
}

// Serialize emits the canonical array-of-objects form, regardless of what
// shape was read. Never returns malformed output.
func Serialize(items []Item) []byte {
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		// Item has no unmarshalable fields; keep the column well-formed anyway.
		return []byte("[]")
	}
	return data
}

// SerializeSingle emits a single canonical object, or JSON null when the
// slot is empty.
func SerializeSingle(items []Item) []byte {
	if len(items) == 0 {
		return []byte("null")
	}
	data, err := json.Marshal(fillDefaults(items[0]))
	if err != nil {
		return []byte("null")
	}
	return data
}
