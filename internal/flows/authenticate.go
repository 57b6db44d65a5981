package flows

import (
	"context"

	"github.com/lewadaa/task-manager/jwt"
)

// AuthenticateFailureKind classifies per-request authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMissing
	AuthenticateFailureRevoked
	AuthenticateFailureMalformed
	AuthenticateFailureUnknownPrincipal
	AuthenticateFailureRenewal
	AuthenticateFailureStore
	AuthenticateFailureDirectory
)

// RenewalFailureKind says why silent renewal did not happen.
type RenewalFailureKind int

const (
	RenewalFailureNone RenewalFailureKind = iota
	RenewalFailureNoCookie
	RenewalFailureInvalidCookie
	RenewalFailureSubjectMismatch
	RenewalFailureSessionMismatch
	RenewalFailureUnknownPrincipal
	RenewalFailureIssue
)

// AuthenticateResult is the outcome for one request.
type AuthenticateResult struct {
	Failure        AuthenticateFailureKind
	Renewal        RenewalFailureKind
	Err            error
	Subject        string
	Role           string
	Renewed        bool
	NewAccessToken string
}

// AuthenticateDeps captures per-request authentication dependencies.
type AuthenticateDeps struct {
	Codec       TokenCodec
	Sessions    SessionStore
	Revocations RevocationStore
	Lookup      LookupFunc
}

// RunAuthenticate evaluates one bearer credential:
//
//  1. absent: reject
//  2. revoked: reject without looking further
//  3. expired: renew from refreshCookie or reject
//  4. otherwise the signature, type and principal must check out
func RunAuthenticate(ctx context.Context, accessToken, refreshCookie string, deps AuthenticateDeps) AuthenticateResult {
	if accessToken == "" {
		return AuthenticateResult{Failure: AuthenticateFailureMissing}
	}

	revoked, err := deps.Revocations.IsRevoked(ctx, accessToken)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureStore, Err: err}
	}
	if revoked {
		return AuthenticateResult{Failure: AuthenticateFailureRevoked}
	}

	claims, err := deps.Codec.Inspect(accessToken)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureMalformed, Err: err}
	}
	if claims.Type != jwt.TypeAccess {
		return AuthenticateResult{Failure: AuthenticateFailureMalformed, Err: jwt.ErrWrongType, Subject: claims.Subject}
	}

	if deps.Codec.Expired(claims) {
		return renew(ctx, claims.Subject, refreshCookie, deps)
	}

	rec, found, err := deps.Lookup(ctx, claims.Subject)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureDirectory, Err: err, Subject: claims.Subject}
	}
	if !found {
		return AuthenticateResult{Failure: AuthenticateFailureUnknownPrincipal, Subject: claims.Subject}
	}

	return AuthenticateResult{Subject: rec.Username, Role: rec.Role}
}

func renew(ctx context.Context, subject, refreshCookie string, deps AuthenticateDeps) AuthenticateResult {
	fail := func(kind RenewalFailureKind, err error) AuthenticateResult {
		return AuthenticateResult{Failure: AuthenticateFailureRenewal, Renewal: kind, Err: err, Subject: subject}
	}

	if refreshCookie == "" {
		return fail(RenewalFailureNoCookie, nil)
	}
	rc, err := deps.Codec.Inspect(refreshCookie)
	if err != nil {
		return fail(RenewalFailureInvalidCookie, err)
	}
	if rc.Type != jwt.TypeRefresh {
		return fail(RenewalFailureInvalidCookie, jwt.ErrWrongType)
	}
	if deps.Codec.Expired(rc) {
		return fail(RenewalFailureInvalidCookie, jwt.ErrExpired)
	}
	if rc.Subject != subject {
		return fail(RenewalFailureSubjectMismatch, nil)
	}

	stored, ok, err := deps.Sessions.Get(ctx, subject)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureStore, Err: err, Subject: subject}
	}
	if !ok || stored != refreshCookie {
		return fail(RenewalFailureSessionMismatch, nil)
	}

	rec, found, err := deps.Lookup(ctx, subject)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureDirectory, Err: err, Subject: subject}
	}
	if !found {
		return fail(RenewalFailureUnknownPrincipal, nil)
	}

	access, err := deps.Codec.IssueAccess(rec.Username, rec.Role)
	if err != nil {
		return fail(RenewalFailureIssue, err)
	}

	return AuthenticateResult{
		Subject:        rec.Username,
		Role:           rec.Role,
		Renewed:        true,
		NewAccessToken: access,
	}
}
