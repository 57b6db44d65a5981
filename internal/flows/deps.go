package flows

import (
	"context"
	"time"

	"github.com/lewadaa/task-manager/jwt"
)

// TokenCodec is the subset of jwt.Codec the flows use.
type TokenCodec interface {
	IssueAccess(subject, role string) (string, error)
	IssueRefresh(subject string) (string, error)
	Inspect(token string) (*jwt.Claims, error)
	Expired(claims *jwt.Claims) bool
	Remaining(claims *jwt.Claims) time.Duration
	RefreshTTL() time.Duration
}

// SessionStore holds each principal's current refresh credential.
type SessionStore interface {
	Put(ctx context.Context, principal, refreshToken string, ttl time.Duration) error
	Get(ctx context.Context, principal string) (string, bool, error)
	Delete(ctx context.Context, principal string) error
}

// RevocationStore is the access-credential revocation list.
type RevocationStore interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Principal is the flow-local principal record.
type Principal struct {
	Username     string
	Role         string
	PasswordHash string
}

// LookupFunc resolves a username. found is false for unknown principals; err is
// reserved for directory failures.
type LookupFunc func(ctx context.Context, username string) (p Principal, found bool, err error)

// LoginLimiter throttles failed logins.
type LoginLimiter interface {
	CheckLogin(ctx context.Context, username, ip string) error
	IncrementLogin(ctx context.Context, username, ip string) error
	ResetLogin(ctx context.Context, username string) error
}

// Deps groups flow dependency sets. The Engine builds this once and delegates
// request methods to the matching flow.
type Deps struct {
	Login        LoginDeps
	Logout       LogoutDeps
	Refresh      RefreshDeps
	Authenticate AuthenticateDeps
}
