package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lewadaa/task-manager/cookie"
	"github.com/lewadaa/task-manager/internal/audit"
	"github.com/lewadaa/task-manager/internal/flows"
	"github.com/lewadaa/task-manager/internal/rate"
	"github.com/lewadaa/task-manager/jwt"
	"github.com/lewadaa/task-manager/kv"
	"github.com/lewadaa/task-manager/revocation"
	"github.com/lewadaa/task-manager/session"
)

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Engine coordinates credential issuance, session storage, revocation and
// per-request authentication.
//
// Engine instances are configured through [Builder] and treated as immutable
// afterwards.
type Engine struct {
	config      Config
	codec       *jwt.Codec
	sessions    *session.Store
	revocations *revocation.Store
	cookies     *cookie.Manager
	directory   PrincipalDirectory
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	clock       func() time.Time
	backend     pinger
	flows       flows.Deps
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot copies the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Cookies returns the refresh cookie manager built from Config.Cookie.
func (e *Engine) Cookies() *cookie.Manager {
	if e == nil {
		return nil
	}
	return e.cookies
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

// Ping checks the session backend when it supports it.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.backend == nil {
		return nil
	}
	if _, err := e.backend.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login verifies username/password, issues a credential pair and stores the
// refresh credential as the principal's only session.
//
// Unknown usernames and wrong passwords both return an error wrapping
// [ErrInvalidCredentials]; the wrapped [ErrUnknownPrincipal] or
// [ErrBadPassword] is for logs only.
//
//	Flow: throttle check, directory lookup, password verify, issue, session SET.
func (e *Engine) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if e == nil || e.codec == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, username, password, clientIPFromContext(ctx), e.flows.Login)
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.Subject, nil, nil)
		return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil

	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, username, ErrLoginRateLimited, nil)
		return TokenPair{}, ErrLoginRateLimited

	case flows.LoginFailureUnknownPrincipal, flows.LoginFailureBadPassword:
		cause := ErrBadPassword
		if res.Failure == flows.LoginFailureUnknownPrincipal {
			cause = ErrUnknownPrincipal
		}
		err := fmt.Errorf("%w: %w", ErrInvalidCredentials, cause)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, username, err, func() map[string]string {
			if res.Limited {
				return map[string]string{"throttled": "true"}
			}
			return nil
		})
		return TokenPair{}, err

	case flows.LoginFailureThrottleUnavailable:
		e.metricInc(MetricStoreUnavailable)
		err := storeError("login throttle", res.Err)
		e.logger.WarnContext(ctx, "login throttle unavailable", "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, username, err, nil)
		return TokenPair{}, err

	case flows.LoginFailureSessionCreate:
		e.metricInc(MetricLoginFailure)
		err := fmt.Errorf("%w: %w", ErrSessionCreationFailed, storeError("session put", res.Err))
		e.logger.ErrorContext(ctx, "session creation failed", "subject", res.Subject, "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.Subject, err, nil)
		return TokenPair{}, err

	default:
		e.metricInc(MetricLoginFailure)
		err := fmt.Errorf("login: %s: %w", loginFailureName(res.Failure), res.Err)
		e.logger.ErrorContext(ctx, "login failed", "subject", res.Subject, "error", err)
		e.emitAudit(ctx, auditEventLoginFailure, false, username, err, nil)
		return TokenPair{}, err
	}
}

// Logout revokes accessToken and deletes its principal's session. An absent or
// malformed credential is a no-op.
//
//	Flow: verify signature, revocation SET, session DEL.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, accessToken, e.flows.Logout)
	if res.Skipped {
		return nil
	}
	if res.Failure != flows.LogoutFailureNone {
		e.metricInc(MetricStoreUnavailable)
		err := storeError("logout", res.Err)
		e.logger.WarnContext(ctx, "logout failed", "subject", res.Subject, "error", res.Err)
		e.emitAudit(ctx, auditEventLogout, false, res.Subject, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, res.Subject, nil, func() map[string]string {
		return map[string]string{"revocation_ttl": res.RevocationTTL.String()}
	})
	return nil
}

// Refresh rotates a refresh credential. The supplied token must equal the
// stored session byte for byte; the old session is replaced by the new pair.
//
//	Flow: verify signature, session GET, compare, directory lookup, session DEL, issue, session SET.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.codec == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Subject, nil, nil)
		return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
	}

	var err error
	switch res.Failure {
	case flows.RefreshFailureMissing:
		err = ErrMissingCredential
	case flows.RefreshFailureMalformed:
		err = fmt.Errorf("%w: %v", ErrMalformedCredential, res.Err)
	case flows.RefreshFailureMismatch:
		e.metricInc(MetricRefreshMismatch)
		err = ErrSessionMismatch
	case flows.RefreshFailureExpired:
		err = ErrExpiredCredential
	case flows.RefreshFailureUnknownPrincipal:
		e.metricInc(MetricSessionInvalidated)
		err = ErrUnknownPrincipal
	case flows.RefreshFailureStore, flows.RefreshFailureSessionWrite:
		e.metricInc(MetricStoreUnavailable)
		err = storeError("refresh", res.Err)
		e.logger.WarnContext(ctx, "refresh store failure", "subject", res.Subject, "error", res.Err)
	default:
		err = fmt.Errorf("refresh: %w", res.Err)
		e.logger.ErrorContext(ctx, "refresh failed", "subject", res.Subject, "error", res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshRejected, false, res.Subject, err, nil)
	return TokenPair{}, err
}

// Authenticate evaluates the bearer credential of one request. When the access
// credential has expired, refreshCookie is used for silent renewal and the
// result carries the new access credential.
//
//	Flow: revocation EXISTS, verify, directory lookup (+ session GET on renewal).
func (e *Engine) Authenticate(ctx context.Context, accessToken, refreshCookie string) (*AuthResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	res := flows.RunAuthenticate(ctx, accessToken, refreshCookie, e.flows.Authenticate)
	if res.Failure == flows.AuthenticateFailureNone {
		e.metricInc(MetricAuthenticateSuccess)
		if res.Renewed {
			e.metricInc(MetricSilentRenewalSuccess)
			e.emitAudit(ctx, auditEventSilentRenewal, true, res.Subject, nil, nil)
		}
		return &AuthResult{
			Subject:        res.Subject,
			Role:           res.Role,
			Renewed:        res.Renewed,
			NewAccessToken: res.NewAccessToken,
		}, nil
	}

	var err error
	switch res.Failure {
	case flows.AuthenticateFailureMissing:
		err = ErrMissingCredential
	case flows.AuthenticateFailureRevoked:
		e.metricInc(MetricRevokedCredentialRejected)
		e.emitAudit(ctx, auditEventRevokedUse, false, "", ErrRevokedCredential, nil)
		err = ErrRevokedCredential
	case flows.AuthenticateFailureMalformed:
		err = fmt.Errorf("%w: %v", ErrMalformedCredential, res.Err)
	case flows.AuthenticateFailureUnknownPrincipal:
		err = ErrUnknownPrincipal
	case flows.AuthenticateFailureRenewal:
		e.metricInc(MetricSilentRenewalFailure)
		e.emitAudit(ctx, auditEventSilentRenewalFailed, false, res.Subject, ErrExpiredCredential, func() map[string]string {
			return map[string]string{"reason": renewalFailureName(res.Renewal)}
		})
		if e.config.Security.PermissiveRenewalFallthrough {
			return &AuthResult{Anonymous: true}, nil
		}
		err = ErrExpiredCredential
	case flows.AuthenticateFailureStore:
		e.metricInc(MetricStoreUnavailable)
		e.logger.WarnContext(ctx, "authenticate store failure", "error", res.Err)
		err = storeError("authenticate", res.Err)
	default:
		e.logger.ErrorContext(ctx, "authenticate failed", "subject", res.Subject, "error", res.Err)
		err = fmt.Errorf("authenticate: %w", res.Err)
	}

	e.metricInc(MetricAuthenticateRejected)
	return nil, err
}

func (e *Engine) lookupPrincipal(ctx context.Context, username string) (flows.Principal, bool, error) {
	rec, err := e.directory.LookupPrincipal(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUnknownPrincipal) {
			return flows.Principal{}, false, nil
		}
		return flows.Principal{}, false, err
	}
	if rec.Username == "" {
		rec.Username = username
	}
	return flows.Principal{
		Username:     rec.Username,
		Role:         rec.Role,
		PasswordHash: rec.PasswordHash,
	}, true, nil
}

// storeError tags backend outages with ErrStoreUnavailable so callers can
// answer 503 instead of 500.
func storeError(op string, err error) error {
	if errors.Is(err, kv.ErrUnavailable) || errors.Is(err, rate.ErrUnavailable) {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func loginFailureName(kind flows.LoginFailureKind) string {
	switch kind {
	case flows.LoginFailureDirectory:
		return "directory lookup"
	case flows.LoginFailureVerify:
		return "password verification"
	case flows.LoginFailureIssue:
		return "credential issuance"
	default:
		return "unknown failure"
	}
}

func renewalFailureName(kind flows.RenewalFailureKind) string {
	switch kind {
	case flows.RenewalFailureNoCookie:
		return "no_cookie"
	case flows.RenewalFailureInvalidCookie:
		return "invalid_cookie"
	case flows.RenewalFailureSubjectMismatch:
		return "subject_mismatch"
	case flows.RenewalFailureSessionMismatch:
		return "session_mismatch"
	case flows.RenewalFailureUnknownPrincipal:
		return "unknown_principal"
	case flows.RenewalFailureIssue:
		return "issue_failed"
	default:
		return "unknown"
	}
}
