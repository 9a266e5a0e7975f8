package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/ehp-platform/authcore/internal/limiters"
	"github.com/ehp-platform/authcore/internal/resettoken"
)

// RequestEmailChange records newEmail as pending for principalID and sends a
// confirmation token to the new address.
func (e *Engine) RequestEmailChange(ctx context.Context, principalID, newEmail string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	newEmail = strings.TrimSpace(newEmail)
	if newEmail == "" {
		return ErrMissingCredentials
	}

	p, err := e.findPrincipal(ctx, e.principals.FindByID, principalID)
	if err != nil {
		return err
	}
	if strings.EqualFold(p.Email, newEmail) {
		e.emitAudit(ctx, auditEventEmailChangeRequest, false, p.ID, "", ErrEmailUnchanged, nil)
		return ErrEmailUnchanged
	}

	if err := e.checkRequestBudget(ctx, limiters.FlowEmailChange, p.ID); err != nil {
		return err
	}

	owner, err := e.findPrincipal(ctx, e.principals.FindByEmail, newEmail)
	switch {
	case err == nil && owner.ID != p.ID:
		e.emitAudit(ctx, auditEventEmailChangeRequest, false, p.ID, "", ErrEmailInUse, nil)
		return ErrEmailInUse
	case err != nil && !errors.Is(err, ErrPrincipalNotFound):
		return err
	}

	pending, err := resettoken.Issue(e.now(), e.config.Reset.EmailChangeTTL)
	if err != nil {
		return err
	}

	previous := p.Clone()
	p.PendingEmail = newEmail
	p.EmailChangeToken = pending.Token
	p.EmailChangeTokenExpires = &pending.ExpiresAt
	if err := e.updatePrincipal(ctx, p); err != nil {
		return err
	}

	err = e.deliver(ctx, Notification{
		Kind:        NotifyEmailChange,
		PrincipalID: p.ID,
		To:          newEmail,
		Token:       pending.Token,
		ExpiresAt:   pending.ExpiresAt,
	}, previous)
	if err != nil {
		e.emitAudit(ctx, auditEventEmailChangeRequest, false, p.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricEmailChangeRequest)
	e.emitAudit(ctx, auditEventEmailChangeRequest, true, p.ID, "", nil, nil)
	return nil
}

// ConfirmEmailChange consumes the email-change token and promotes the pending
// email. The three pending fields are cleared in the same update.
func (e *Engine) ConfirmEmailChange(ctx context.Context, principalID, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	p, err := e.findPrincipal(ctx, e.principals.FindByID, principalID)
	if err != nil {
		return err
	}
	if p.PendingEmail == "" {
		e.metricInc(MetricEmailChangeConfirmFailure)
		e.emitAudit(ctx, auditEventEmailChangeConfirm, false, p.ID, "", ErrNoPendingEmailChange, nil)
		return ErrNoPendingEmailChange
	}

	switch cerr := resettoken.Check(p.EmailChangeToken, p.EmailChangeTokenExpires, token, e.now()); {
	case errors.Is(cerr, resettoken.ErrExpired):
		clearEmailChange(p)
		err = ErrResetTokenExpired
		if uerr := e.updatePrincipal(ctx, p); uerr != nil {
			err = errors.Join(err, uerr)
		}
	case cerr != nil:
		err = ErrResetTokenInvalid
	}
	if err != nil {
		e.metricInc(MetricEmailChangeConfirmFailure)
		e.emitAudit(ctx, auditEventEmailChangeConfirm, false, p.ID, "", err, nil)
		return err
	}

	previousEmail := p.Email
	p.Email = p.PendingEmail
	clearEmailChange(p)
	if err := e.updatePrincipal(ctx, p); err != nil {
		return err
	}

	e.metricInc(MetricEmailChangeConfirmSuccess)
	e.clearRequestBudget(ctx, limiters.FlowEmailChange, p.ID)
	e.emitAudit(ctx, auditEventEmailChangeConfirm, true, p.ID, "", nil, func() map[string]string {
		return map[string]string{"previous_email_domain": emailDomain(previousEmail)}
	})
	return nil
}

func clearEmailChange(p *Principal) {
	p.PendingEmail = ""
	p.EmailChangeToken = ""
	p.EmailChangeTokenExpires = nil
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
