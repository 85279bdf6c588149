// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"qartha/api/internal/store"
)

// ErrInvalidCredentials covers unknown email, wrong password, and disabled
// accounts alike, so responses do not reveal which one it was.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore defines the storage interface for authentication.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	TouchUserLogin(ctx context.Context, userID int64) error
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := s.store.TouchUserLogin(ctx, user.ID); err != nil {
		// Last-login is informational; a failed touch must not block sign-in.
		log.Printf("authpw: touch login for %s: %v", user.Email, err)
	}

	return user, nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
