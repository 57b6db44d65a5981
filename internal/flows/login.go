package flows

import (
	"context"
	"errors"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureThrottleUnavailable
	LoginFailureDirectory
	LoginFailureUnknownPrincipal
	LoginFailureBadPassword
	LoginFailureVerify
	LoginFailureIssue
	LoginFailureSessionCreate
)

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Subject      string
	Role         string
	AccessToken  string
	RefreshToken string
	// Limited is set when this failure exhausted the throttle budget.
	Limited bool
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Codec    TokenCodec
	Sessions SessionStore
	Lookup   LookupFunc
	Verify   func(password, encodedHash string) (bool, error)

	// DummyHash is verified against when the principal is unknown so both
	// failure paths cost one hash computation.
	DummyHash string

	Limiter     LoginLimiter
	RateLimited error
	Warn        func(msg string, args ...any)
}

// RunLogin authenticates username/password and opens a session.
func RunLogin(ctx context.Context, username, password, clientIP string, deps LoginDeps) LoginResult {
	if deps.Limiter != nil {
		if err := deps.Limiter.CheckLogin(ctx, username, clientIP); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err, Subject: username}
			}
			return LoginResult{Failure: LoginFailureThrottleUnavailable, Err: err, Subject: username}
		}
	}

	rec, found, err := deps.Lookup(ctx, username)
	if err != nil {
		return LoginResult{Failure: LoginFailureDirectory, Err: err, Subject: username}
	}
	if !found {
		if deps.DummyHash != "" {
			_, _ = deps.Verify(password, deps.DummyHash)
		}
		res := LoginResult{Failure: LoginFailureUnknownPrincipal, Subject: username}
		res.Limited = recordFailure(ctx, username, clientIP, deps)
		return res
	}

	ok, err := deps.Verify(password, rec.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureVerify, Err: err, Subject: username}
	}
	if !ok {
		res := LoginResult{Failure: LoginFailureBadPassword, Subject: username}
		res.Limited = recordFailure(ctx, username, clientIP, deps)
		return res
	}

	access, err := deps.Codec.IssueAccess(rec.Username, rec.Role)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Subject: rec.Username}
	}
	refresh, err := deps.Codec.IssueRefresh(rec.Username)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Subject: rec.Username}
	}

	if err := deps.Sessions.Put(ctx, rec.Username, refresh, deps.Codec.RefreshTTL()); err != nil {
		return LoginResult{Failure: LoginFailureSessionCreate, Err: err, Subject: rec.Username}
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.ResetLogin(ctx, rec.Username); err != nil && deps.Warn != nil {
			deps.Warn("login throttle reset failed", "error", err)
		}
	}

	return LoginResult{
		Subject:      rec.Username,
		Role:         rec.Role,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

func recordFailure(ctx context.Context, username, clientIP string, deps LoginDeps) bool {
	if deps.Limiter == nil {
		return false
	}
	err := deps.Limiter.IncrementLogin(ctx, username, clientIP)
	if err == nil {
		return false
	}
	if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
		return true
	}
	if deps.Warn != nil {
		deps.Warn("login throttle increment failed", "error", err)
	}
	return false
}
