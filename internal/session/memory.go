package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the fallback backend when Redis is not configured. Sessions
// do not survive a restart, which is acceptable for single-node deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	sess      Session
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, tokenID string, sess Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenID] = memoryEntry{sess: sess, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, tokenID string) (Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[tokenID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, tokenID)
		s.mu.Unlock()
		return Session{}, ErrNotFound
	}
	return entry.sess, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenID)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
