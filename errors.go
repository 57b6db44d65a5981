package taskmanager

import (
	"errors"
	"net/http"
)

var (
	// ErrMissingCredential is returned when a request carries no bearer credential.
	ErrMissingCredential = errors.New("missing credential")
	// ErrMalformedCredential is returned for credentials that fail signature or structure checks.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrRevokedCredential is returned for access credentials on the revocation list.
	ErrRevokedCredential = errors.New("revoked credential")
	// ErrExpiredCredential is returned for expired credentials that could not be renewed.
	ErrExpiredCredential = errors.New("expired credential")
	// ErrSessionMismatch is returned when a refresh credential is not the principal's current session.
	ErrSessionMismatch = errors.New("session mismatch")
	// ErrUnknownPrincipal is returned by directories for usernames they do not hold.
	ErrUnknownPrincipal = errors.New("unknown principal")
	// ErrBadPassword is returned when a password does not match the stored hash.
	ErrBadPassword = errors.New("bad password")
	// ErrInvalidCredentials is the external face of both ErrUnknownPrincipal and ErrBadPassword at login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when a protected operation has no authenticated identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrLoginRateLimited is returned when the failed-login budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrStoreUnavailable wraps session, revocation and throttle backend failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrSessionCreationFailed is returned when a login could not persist its session.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// IsCredentialError reports whether err means the caller failed authentication.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrMalformedCredential) ||
		errors.Is(err, ErrRevokedCredential) ||
		errors.Is(err, ErrExpiredCredential) ||
		errors.Is(err, ErrSessionMismatch) ||
		errors.Is(err, ErrUnknownPrincipal) ||
		errors.Is(err, ErrBadPassword) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrUnauthorized)
}

// HTTPStatus maps engine errors onto response codes. Every credential failure
// collapses into 401.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsCredentialError(err):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrLoginRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
