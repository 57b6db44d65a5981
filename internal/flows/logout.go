package flows

import (
	"context"
	"time"

	"github.com/lewadaa/task-manager/jwt"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureRevoke
	LogoutFailureSessionDelete
)

// LogoutResult reports what logout did. Skipped is set when there was nothing
// to revoke (absent, malformed or non-access credential).
type LogoutResult struct {
	Failure       LogoutFailureKind
	Err           error
	Subject       string
	Skipped       bool
	RevocationTTL time.Duration
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Codec       TokenCodec
	Sessions    SessionStore
	Revocations RevocationStore
	// FixedRevocationTTL overrides the remaining-lifetime policy when positive.
	FixedRevocationTTL time.Duration
}

// RunLogout revokes accessToken and deletes its principal's session.
func RunLogout(ctx context.Context, accessToken string, deps LogoutDeps) LogoutResult {
	if accessToken == "" {
		return LogoutResult{Skipped: true}
	}
	claims, err := deps.Codec.Inspect(accessToken)
	if err != nil || claims.Type != jwt.TypeAccess {
		return LogoutResult{Skipped: true}
	}

	ttl := RevocationTTL(claims, deps)
	if err := deps.Revocations.Revoke(ctx, accessToken, ttl); err != nil {
		return LogoutResult{Failure: LogoutFailureRevoke, Err: err, Subject: claims.Subject, RevocationTTL: ttl}
	}
	if err := deps.Sessions.Delete(ctx, claims.Subject); err != nil {
		return LogoutResult{Failure: LogoutFailureSessionDelete, Err: err, Subject: claims.Subject, RevocationTTL: ttl}
	}

	return LogoutResult{Subject: claims.Subject, RevocationTTL: ttl}
}

// RevocationTTL is the fixed window when configured, else the credential's
// remaining lifetime (leeway included) floored at one second.
func RevocationTTL(claims *jwt.Claims, deps LogoutDeps) time.Duration {
	if deps.FixedRevocationTTL > 0 {
		return deps.FixedRevocationTTL
	}
	ttl := deps.Codec.Remaining(claims).Round(time.Second)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
