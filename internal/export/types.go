// Package export renders printable frame sheets as PDF.
package export

import (
	"errors"
	"time"

	"qartha/api/internal/health"
	"qartha/api/internal/media"
	"qartha/api/internal/store"
)

// Sheet is the fully assembled data for one frame sheet. All media URLs are
// already projected to external form by the caller.
type Sheet struct {
	Cluster     string
	Project     string
	Code        string
	Title       string
	Description string
	Site        string
	Room        string
	LogoURL     string
	LocationURL string
	Images      []media.Item
	Documents   []media.Item
	Diagrams    []media.Item
	DFO         []media.Item
	Health      health.Health
	Table       *health.Table
	Devices     []store.Device
	GeneratedAt time.Time
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless browser is not installed.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
