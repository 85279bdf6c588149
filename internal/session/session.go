// Package session provides storage backends for login sessions.
package session

import (
	"context"
	"errors"
	"time"
)

// Session is the server-side state behind one access token.
type Session struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound is returned for unknown or expired tokens.
var ErrNotFound = errors.New("session not found")

// Store persists sessions keyed by token ID.
type Store interface {
	Save(ctx context.Context, tokenID string, sess Session, ttl time.Duration) error
	Lookup(ctx context.Context, tokenID string) (Session, error)
	Revoke(ctx context.Context, tokenID string) error
	Ping(ctx context.Context) error
	Close() error
}
