package flows

import (
	"context"

	"github.com/lewadaa/task-manager/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureMalformed
	RefreshFailureStore
	RefreshFailureMismatch
	RefreshFailureExpired
	RefreshFailureDirectory
	RefreshFailureUnknownPrincipal
	RefreshFailureIssue
	RefreshFailureSessionWrite
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	Subject      string
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Codec    TokenCodec
	Sessions SessionStore
	Lookup   LookupFunc
	// Warn reports store errors that do not change the flow result.
	Warn func(msg string, args ...any)
}

// RunRefresh rotates refreshToken: the stored session must equal it exactly,
// then the old session is deleted and a new pair is issued and stored.
//
// Two concurrent calls with the same token may both pass the equality check;
// the later Put wins and the other caller's refresh credential is orphaned.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing}
	}

	claims, err := deps.Codec.Inspect(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}
	subject := claims.Subject

	stored, ok, err := deps.Sessions.Get(ctx, subject)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, Subject: subject}
	}
	if !ok || stored != refreshToken {
		return RefreshResult{Failure: RefreshFailureMismatch, Subject: subject}
	}

	if claims.Type != jwt.TypeRefresh {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: jwt.ErrWrongType, Subject: subject}
	}
	if deps.Codec.Expired(claims) {
		return RefreshResult{Failure: RefreshFailureExpired, Err: jwt.ErrExpired, Subject: subject}
	}

	rec, found, err := deps.Lookup(ctx, subject)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDirectory, Err: err, Subject: subject}
	}
	if !found {
		if err := deps.Sessions.Delete(ctx, subject); err != nil && deps.Warn != nil {
			deps.Warn("session delete for unknown principal failed", "subject", subject, "error", err)
		}
		return RefreshResult{Failure: RefreshFailureUnknownPrincipal, Subject: subject}
	}

	if err := deps.Sessions.Delete(ctx, subject); err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, Subject: subject}
	}

	access, err := deps.Codec.IssueAccess(rec.Username, rec.Role)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Subject: subject}
	}
	next, err := deps.Codec.IssueRefresh(rec.Username)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Subject: subject}
	}
	if err := deps.Sessions.Put(ctx, rec.Username, next, deps.Codec.RefreshTTL()); err != nil {
		return RefreshResult{Failure: RefreshFailureSessionWrite, Err: err, Subject: subject}
	}

	return RefreshResult{
		Subject:      rec.Username,
		AccessToken:  access,
		RefreshToken: next,
	}
}
