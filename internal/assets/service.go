package assets

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"qartha/api/internal/media"
	"qartha/api/internal/tenant"
)

var (
	// ErrUnsupportedContentType rejects uploads whose declared type does not
	// fit the target slot.
	ErrUnsupportedContentType = errors.New("unsupported content type")
	// ErrIndexOutOfRange rejects delete-by-index past the end of the list.
	ErrIndexOutOfRange = errors.New("asset index out of range")
)

// Service stores uploaded files and produces the media items recorded on the
// frame. It owns filename generation and the storage path layout
// cluster/projectFolder/code/kind/filename.
type Service struct {
	blobs BlobStore
	mount string
	seq   atomic.Int64
}

func NewService(blobs BlobStore, staticMount string) *Service {
	return &Service{
		blobs: blobs,
		mount: "/" + strings.Trim(staticMount, "/"),
	}
}

// Store validates and writes one upload, returning the item to record.
// Single-slot kinds use a fixed basename so a new upload lands on the same
// path as the old file; list kinds get a timestamped name that cannot
// collide under rapid sequential uploads in one process.
func (s *Service) Store(ctx context.Context, id tenant.Identity, kind Kind, filename string, data []byte, contentType string) (media.Item, error) {
	if !kind.AcceptsContentType(contentType) {
		return media.Item{}, fmt.Errorf("%w: %s for %s", ErrUnsupportedContentType, contentType, kind)
	}

	name := s.generateName(kind, filename)
	relPath := path.Join(id.Cluster, tenant.FolderName(id.Project), id.Code, string(kind), name)
	if err := s.blobs.Put(ctx, relPath, data, contentType); err != nil {
		return media.Item{}, err
	}

	display := strings.TrimSpace(path.Base(filename))
	if display == "" || display == "." || display == "/" {
		display = name
	}
	return media.Item{URL: relPath, Name: display, Kind: kind.MediaKind(filename)}, nil
}

func (s *Service) generateName(kind Kind, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if kind.Single() {
		return string(kind) + ext
	}
	return fmt.Sprintf("%d_%d%s", time.Now().UnixMilli(), s.seq.Add(1), ext)
}

// Remove deletes the stored file behind a recorded URL, best effort. Storage
// and record metadata are allowed to drift; a miss here self-corrects on the
// next upload or delete, so failures are logged and swallowed.
func (s *Service) Remove(ctx context.Context, storedURL string) {
	relPath := s.storagePath(storedURL)
	if relPath == "" {
		return
	}
	if err := s.blobs.Remove(ctx, relPath); err != nil {
		log.Printf("assets: remove %s: %v", relPath, err)
	}
}

// storagePath recovers the relative storage path from any recorded URL
// shape: relative path, mount-prefixed path, or fully projected URL.
func (s *Service) storagePath(storedURL string) string {
	stored := strings.TrimSpace(storedURL)
	if stored == "" {
		return ""
	}
	if strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://") {
		if u, err := url.Parse(stored); err == nil {
			stored = u.Path
		}
	}
	stored = strings.TrimPrefix(stored, s.mount)
	return strings.TrimPrefix(stored, "/")
}

// DeleteAt removes the item at index from a normalized list, preserving the
// relative order of the remainder.
func DeleteAt(items []media.Item, index int) (media.Item, []media.Item, error) {
	if index < 0 || index >= len(items) {
		return media.Item{}, items, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(items))
	}
	removed := items[index]
	rest := make([]media.Item, 0, len(items)-1)
	rest = append(rest, items[:index]...)
	rest = append(rest, items[index+1:]...)
	return removed, rest, nil
}
