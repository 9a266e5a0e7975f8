package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehp-platform/authcore/internal/limiters"
	"github.com/ehp-platform/authcore/internal/resettoken"
)

func (e *Engine) checkRequestBudget(ctx context.Context, flow limiters.Flow, identifier string) error {
	err := e.requests.Check(ctx, flow, identifier, ClientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRequestRateLimited):
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRequestRateLimited, func() map[string]string {
			return map[string]string{"scope": string(flow)}
		})
		return ErrRequestRateLimited
	default:
		return err
	}
}

// clearRequestBudget drops the identifier throttle once a flow completes.
// A failure only delays the next request.
func (e *Engine) clearRequestBudget(ctx context.Context, flow limiters.Flow, identifier string) {
	if err := e.requests.Clear(ctx, flow, identifier); err != nil {
		e.logger.Warn().Err(err).Str("flow", string(flow)).Msg("request throttle clear failed")
	}
}

// deliver sends n and, when delivery fails, restores the principal to
// previous and persists it. The token never stays stored for an undelivered
// message unless the restoring update itself fails.
func (e *Engine) deliver(ctx context.Context, n Notification, previous *Principal) error {
	var err error
	if e.notifier == nil {
		err = errors.New("no notifier configured")
	} else {
		err = e.notifier.Notify(ctx, n)
	}
	if err == nil {
		return nil
	}

	e.metricInc(MetricNotificationFailure)
	e.logger.Warn().Err(err).
		Str("principal_id", n.PrincipalID).
		Str("kind", string(n.Kind)).
		Msg("notification failed; rolling back pending token")

	if rerr := e.updatePrincipal(ctx, previous); rerr != nil {
		e.logger.Error().Err(rerr).Str("principal_id", n.PrincipalID).Msg("pending token rollback failed")
		return errors.Join(fmt.Errorf("%w: %v", ErrNotificationFailed, err), rerr)
	}
	return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
}

// RequestPasswordReset stores a fresh reset token on the principal owning
// email and notifies them.
//
// An unknown email returns nil so callers cannot probe for accounts.
// Delivery failure restores the previous reset state and returns ErrNotificationFailed.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if email == "" {
		return ErrMissingCredentials
	}
	if err := e.checkRequestBudget(ctx, limiters.FlowPasswordReset, email); err != nil {
		return err
	}

	p, err := e.findPrincipal(ctx, e.principals.FindByEmail, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
				return map[string]string{"known": "false"}
			})
			return nil
		}
		return err
	}

	pending, err := resettoken.Issue(e.now(), e.config.Reset.PasswordTTL)
	if err != nil {
		return err
	}

	previous := p.Clone()
	p.ResetToken = pending.Token
	p.ResetTokenExpires = &pending.ExpiresAt
	p.ResetPending = true
	if err := e.updatePrincipal(ctx, p); err != nil {
		return err
	}

	err = e.deliver(ctx, Notification{
		Kind:        NotifyPasswordReset,
		PrincipalID: p.ID,
		To:          p.Email,
		Token:       pending.Token,
		ExpiresAt:   pending.ExpiresAt,
	}, previous)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, p.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, p.ID, "", nil, nil)
	return nil
}

// ResetPassword consumes a reset token and sets a new password. The token
// fields are cleared in the same update that stores the new hash. When
// logoutAll is set every session of the principal is revoked afterwards.
func (e *Engine) ResetPassword(ctx context.Context, principalID, token, newPassword string, logoutAll bool) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if token == "" || newPassword == "" {
		return ErrMissingCredentials
	}

	p, err := e.findPrincipal(ctx, e.principals.FindByID, principalID)
	if err != nil {
		return err
	}

	if err := e.checkResetToken(ctx, p, token); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, p.ID, "", err, nil)
		return err
	}

	if same, _ := e.passwords.Verify(newPassword, p.PasswordHash); same {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, p.ID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	clearReset(p)
	if err := e.updatePrincipal(ctx, p); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, p.ID, "", nil, nil)
	e.clearRequestBudget(ctx, limiters.FlowPasswordReset, p.Email)

	if logoutAll {
		if _, err := e.LogoutAll(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// checkResetToken maps token state to engine errors. An expired token is
// cleared from the record before returning.
func (e *Engine) checkResetToken(ctx context.Context, p *Principal, token string) error {
	stored := p.ResetToken
	if !p.ResetPending {
		stored = ""
	}
	switch err := resettoken.Check(stored, p.ResetTokenExpires, token, e.now()); {
	case err == nil:
		return nil
	case errors.Is(err, resettoken.ErrExpired):
		clearReset(p)
		if uerr := e.updatePrincipal(ctx, p); uerr != nil {
			return errors.Join(ErrResetTokenExpired, uerr)
		}
		return ErrResetTokenExpired
	default:
		return ErrResetTokenInvalid
	}
}

func clearReset(p *Principal) {
	p.ResetToken = ""
	p.ResetTokenExpires = nil
	p.ResetPending = false
}
