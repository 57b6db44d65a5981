package session

import (
	"context"
	"errors"
	"time"

	"github.com/lewadaa/task-manager/kv"
)

// DefaultPrefix is the key prefix for session records.
const DefaultPrefix = "refresh:"

// ErrEmptyPrincipal is returned when a session operation is given no principal.
var ErrEmptyPrincipal = errors.New("session principal is empty")

// Store maps principals to their current refresh credential.
type Store struct {
	kv     kv.Store
	prefix string
}

// NewStore wraps backend. An empty prefix selects [DefaultPrefix].
func NewStore(backend kv.Store, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{kv: backend, prefix: prefix}
}

func (s *Store) key(principal string) string {
	return s.prefix + principal
}

// Put stores refreshToken as principal's session for ttl, replacing any
// existing record.
//
//	Performance: 1 SET.
func (s *Store) Put(ctx context.Context, principal, refreshToken string, ttl time.Duration) error {
	if principal == "" {
		return ErrEmptyPrincipal
	}
	return s.kv.Set(ctx, s.key(principal), refreshToken, ttl)
}

// Get returns principal's stored refresh credential. ok is false when no
// unexpired record exists.
//
//	Performance: 1 GET.
func (s *Store) Get(ctx context.Context, principal string) (token string, ok bool, err error) {
	if principal == "" {
		return "", false, nil
	}
	return s.kv.Get(ctx, s.key(principal))
}

// Delete removes principal's session. Deleting a missing session is not an error.
//
//	Performance: 1 DEL.
func (s *Store) Delete(ctx context.Context, principal string) error {
	if principal == "" {
		return nil
	}
	return s.kv.Delete(ctx, s.key(principal))
}

// Matches reports whether token equals principal's stored session.
func (s *Store) Matches(ctx context.Context, principal, token string) (bool, error) {
	stored, ok, err := s.Get(ctx, principal)
	if err != nil || !ok {
		return false, err
	}
	return stored == token, nil
}
