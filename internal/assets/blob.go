package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore writes and removes attachment bytes under relative storage
// paths. Paths use forward slashes regardless of backend.
type BlobStore interface {
	Put(ctx context.Context, relPath string, data []byte, contentType string) error
	Remove(ctx context.Context, relPath string) error
}

// FSStore keeps attachments on the local filesystem under a root directory,
// which is also the directory the static file server exposes.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) Put(_ context.Context, relPath string, data []byte, _ string) error {
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write media file: %w", err)
	}
	return nil
}

func (s *FSStore) Remove(_ context.Context, relPath string) error {
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

// resolve maps a storage path to an absolute file path, rejecting anything
// that would escape the root.
func (s *FSStore) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(relPath, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid media path %q", relPath)
	}
	return filepath.Join(s.root, clean), nil
}
