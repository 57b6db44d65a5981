package taskmanager

import (
	"context"
	"errors"
	"time"

	"github.com/lewadaa/task-manager/internal/audit"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshRejected     = "refresh_rejected"
	auditEventLogout              = "logout"
	auditEventRevokedUse          = "revoked_credential_used"
	auditEventSilentRenewal       = "silent_renewal"
	auditEventSilentRenewalFailed = "silent_renewal_failed"
)

// AuditErrorCode is the stable error label attached to audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrSessionMismatch       AuditErrorCode = "session_mismatch"
	auditErrExpired               AuditErrorCode = "expired_credential"
	auditErrMalformed             AuditErrorCode = "malformed_credential"
	auditErrRevoked               AuditErrorCode = "revoked_credential"
	auditErrUnknownPrincipal      AuditErrorCode = "unknown_principal"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrSessionMismatch):
		return auditErrSessionMismatch
	case errors.Is(err, ErrExpiredCredential):
		return auditErrExpired
	case errors.Is(err, ErrMalformedCredential):
		return auditErrMalformed
	case errors.Is(err, ErrRevokedCredential):
		return auditErrRevoked
	case errors.Is(err, ErrUnknownPrincipal):
		return auditErrUnknownPrincipal
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// now is the engine clock; audit timestamps and tests share it.
func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
