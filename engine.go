package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	internalaudit "github.com/ehp-platform/authcore/internal/audit"
	"github.com/ehp-platform/authcore/internal/limiters"
	"github.com/ehp-platform/authcore/jwt"
	"github.com/ehp-platform/authcore/password"
	"github.com/ehp-platform/authcore/session"
)

// Engine is the authentication core: login with lockout accounting, session
// validation and revocation, and the reset-token flows.
//
// Engine is safe for concurrent use once built.
type Engine struct {
	config     Config
	codec      *jwt.Manager
	sessions   *session.Manager
	lockout    *limiters.LockoutPolicy
	requests   *limiters.RequestLimiter
	principals PrincipalStore
	notifier   Notifier
	passwords  password.Hasher
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Sessions exposes the session manager for operator tooling.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Codec exposes the token codec for operator tooling.
func (e *Engine) Codec() *jwt.Manager {
	return e.codec
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.codec != nil && e.sessions != nil && e.principals != nil && e.passwords != nil
}

func (e *Engine) updatePrincipal(ctx context.Context, p *Principal) error {
	if err := e.principals.Update(ctx, p); err != nil {
		return fmt.Errorf("%w: %v", ErrPrincipalStore, err)
	}
	return nil
}

func (e *Engine) findPrincipal(ctx context.Context, find func(context.Context, string) (*Principal, error), key string) (*Principal, error) {
	p, err := find(ctx, key)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPrincipalStore, err)
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}

// Login checks credentials against the principal's lockout state and, on
// success, creates a session.
//
// Rejections surface as *LoginError (locked or wrong password) carrying the
// retry counter, or as ErrMissingCredentials, ErrInvalidCredentials,
// ErrAccountDisabled and ErrAccountUnconfirmed.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*jwt.TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if identifier == "" || secret == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrMissingCredentials, nil)
		return nil, ErrMissingCredentials
	}

	p, err := e.findPrincipal(ctx, e.principals.FindByIdentifier, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			err = ErrInvalidCredentials
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, nil)
		return nil, err
	}

	now := e.now()
	decision := e.lockout.Evaluate(p.RetryCount, p.LastLoginAttempt, now)
	switch decision.State {
	case limiters.LockoutLocked:
		lerr := &LoginError{Err: ErrAccountLocked, RetryCount: p.RetryCount, Wait: decision.Remaining}
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, p.ID, "", lerr, func() map[string]string {
			return map[string]string{"wait_seconds": strconv.FormatInt(int64(decision.Remaining.Seconds()), 10)}
		})
		return nil, lerr
	case limiters.LockoutEligibleForReset:
		p.RetryCount = 0
		p.LastLoginAttempt = now
		if err := e.updatePrincipal(ctx, p); err != nil {
			return nil, err
		}
		e.metricInc(MetricLockoutCleared)
		e.emitAudit(ctx, auditEventLockoutCleared, true, p.ID, "", nil, nil)
	}

	if !p.IsActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	if e.config.Login.RequireConfirmed && !p.IsConfirmed {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, "", ErrAccountUnconfirmed, nil)
		return nil, ErrAccountUnconfirmed
	}

	ok, verr := e.passwords.Verify(secret, p.PasswordHash)
	if verr != nil {
		e.logger.Warn().Err(verr).Str("principal_id", p.ID).Msg("stored password hash not verifiable")
	}
	if !ok {
		p.RetryCount++
		p.LastLoginAttempt = now
		if err := e.updatePrincipal(ctx, p); err != nil {
			return nil, err
		}
		lerr := &LoginError{
			Err:          ErrInvalidCredentials,
			RetryCount:   p.RetryCount,
			AttemptsLeft: e.lockout.AttemptsLeft(p.RetryCount),
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, "", lerr, func() map[string]string {
			return map[string]string{
				"retry_count":   strconv.Itoa(lerr.RetryCount),
				"attempts_left": strconv.Itoa(lerr.AttemptsLeft),
			}
		})
		return nil, lerr
	}

	dirty := false
	if e.lockout.Config().ResetOnSuccess && p.RetryCount != 0 {
		p.RetryCount = 0
		dirty = true
	}
	if e.config.Password.UpgradeOnLogin {
		if chain, ok := e.passwords.(*password.Chain); ok && chain.NeedsRehash(p.PasswordHash) {
			if hash, err := chain.Hash(secret); err == nil {
				p.PasswordHash = hash
				dirty = true
				e.metricInc(MetricPasswordRehashed)
			} else {
				e.logger.Warn().Err(err).Str("principal_id", p.ID).Msg("password rehash failed")
			}
		}
	}
	if dirty {
		if err := e.updatePrincipal(ctx, p); err != nil {
			return nil, err
		}
	}

	pair, err := e.sessions.CreateSession(ctx, p.ID, p.Email, e.config.Login.IssueRefreshOnLogin)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, "", err, nil)
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, p.ID, "", nil, nil)
	return pair, nil
}

// Validate applies the validity predicate to an access token: it must decode
// with expiry enforced AND have a live session record. Every failure, including
// a Redis outage, is returned wrapped in ErrUnauthorized together with its cause.
func (e *Engine) Validate(ctx context.Context, token string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, rec, err := e.sessions.Validate(ctx, token)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		switch {
		case errors.Is(err, jwt.ErrInvalidAntiReplay):
			e.metricInc(MetricReplayDetected)
		case errors.Is(err, session.ErrRedisUnavailable):
			e.metricInc(MetricStoreUnavailable)
			e.logger.Error().Err(err).Msg("session lookup failed; rejecting token")
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		PrincipalID: claims.Subject,
		Email:       claims.Email,
		SessionID:   rec.SessionID,
		ExpiresAt:   claims.ExpiresAtTime(),
		Claims:      claims,
	}, nil
}

// Logout revokes the session named by an unexpired access token.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	claims, err := e.sessions.RemoveSessionFromToken(ctx, accessToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", err, nil)
		if errors.Is(err, session.ErrRedisUnavailable) {
			return fmt.Errorf("%w: %w", ErrSessionInvalidationFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, claims.ID, nil, nil)
	return nil
}

// LogoutAll revokes every indexed session of principalID and returns how many
// records were deleted.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.WipeSessions(ctx, principalID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, principalID, "", err, nil)
		return n, fmt.Errorf("%w: %w", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, principalID, "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}

// ChangePassword replaces the password of principalID after checking current.
// When logoutAll is set every session of the principal is revoked afterwards.
func (e *Engine) ChangePassword(ctx context.Context, principalID, current, next string, logoutAll bool) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if current == "" || next == "" {
		return ErrMissingCredentials
	}

	p, err := e.findPrincipal(ctx, e.principals.FindByID, principalID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, "", err, nil)
		return err
	}

	ok, _ := e.passwords.Verify(current, p.PasswordHash)
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, p.ID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if current == next {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, p.ID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.passwords.Hash(next)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	if err := e.updatePrincipal(ctx, p); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, p.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, p.ID, "", nil, nil)

	if logoutAll {
		if _, err := e.LogoutAll(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// Refresh exchanges an unexpired refresh token for a new session and token
// pair. The token is rejected once its session was logged out or its
// principal's sessions were wiped, and the principal must still be active.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.sessions.CheckRefresh(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, session.ErrRedisUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			e.logger.Error().Err(err).Msg("revocation lookup failed; rejecting refresh token")
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, nil)
		return nil, fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	}

	p, err := e.findPrincipal(ctx, e.principals.FindByID, claims.Subject)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrPrincipalNotFound) {
			err = fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, "", err, nil)
		return nil, err
	}
	if !p.IsActive {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, p.ID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	pair, err := e.sessions.CreateSession(ctx, p.ID, p.Email, true)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, p.ID, "", nil, nil)
	return pair, nil
}

// ActiveSessions lists the live sessions of principalID, oldest first.
func (e *Engine) ActiveSessions(ctx context.Context, principalID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	infos, err := e.sessions.ListSessions(ctx, principalID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, len(infos))
	for i, info := range infos {
		out[i] = SessionInfo{
			SessionID: info.SessionID,
			IssuedAt:  time.Unix(info.IssuedAt, 0).UTC(),
			ExpiresAt: time.Unix(info.ExpiresAt, 0).UTC(),
		}
	}
	return out, nil
}

// Health pings Redis.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}
	latency, err := e.sessions.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
		AuditDropped:   e.AuditDropped(),
	}
}
