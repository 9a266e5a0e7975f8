package authcore

import (
	"context"
	"errors"

	internalaudit "github.com/ehp-platform/authcore/internal/audit"
	"github.com/ehp-platform/authcore/jwt"
	"github.com/ehp-platform/authcore/session"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventLockoutCleared        = "lockout_cleared"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventEmailChangeRequest    = "email_change_request"
	auditEventEmailChangeConfirm    = "email_change_confirm"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode is the stable, non-sensitive error label attached to audit events.
type AuditErrorCode string

const (
	auditErrMissingCredentials AuditErrorCode = "missing_credentials"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountUnconfirmed AuditErrorCode = "account_unconfirmed"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrAntiReplay         AuditErrorCode = "anti_replay_mismatch"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrPrincipalNotFound  AuditErrorCode = "principal_not_found"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrResetToken         AuditErrorCode = "reset_token_invalid_or_expired"
	auditErrEmailConflict      AuditErrorCode = "email_conflict"
	auditErrNotification       AuditErrorCode = "notification_failed"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := internalaudit.NewEvent(eventType, success)
	event.PrincipalID = principalID
	event.SessionID = sessionID
	event.IP = ClientIPFromContext(ctx)
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["request_id"] = rid
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
	case errors.Is(err, ErrMissingCredentials):
		return auditErrMissingCredentials
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountUnconfirmed):
		return auditErrAccountUnconfirmed
	case errors.Is(err, jwt.ErrExpired):
		return auditErrTokenExpired
	case errors.Is(err, jwt.ErrInvalidAntiReplay):
		return auditErrAntiReplay
	case errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, session.ErrNotAccessToken),
		errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, session.ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrResetTokenInvalidOrExpired),
		errors.Is(err, ErrNoPendingEmailChange):
		return auditErrResetToken
	case errors.Is(err, ErrEmailInUse),
		errors.Is(err, ErrEmailUnchanged):
		return auditErrEmailConflict
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotification
	case errors.Is(err, ErrRequestRateLimited):
		return auditErrRateLimited
	case errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, ErrPrincipalStore),
		errors.Is(err, ErrSessionCreationFailed),
		errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
