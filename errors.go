package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingCredentials is returned when the identifier or password is empty.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials is returned for an unknown identifier or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the retry counter is at the threshold and the lockout window is open.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned when the principal is not active.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountUnconfirmed is returned when confirmation is required and the principal has not confirmed.
	ErrAccountUnconfirmed = errors.New("account unconfirmed")
	// ErrPrincipalNotFound is returned by a PrincipalStore when no principal matches.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalStore wraps PrincipalStore failures other than not-found.
	ErrPrincipalStore = errors.New("principal store failure")
	// ErrUnauthorized is returned by Validate for every rejected token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshInvalid is returned when a refresh token is malformed, expired or not a refresh token.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from the current one")
	// ErrResetTokenInvalidOrExpired matches both reset-token failures.
	ErrResetTokenInvalidOrExpired = errors.New("reset token invalid or expired")
	// ErrResetTokenInvalid is returned when no token is pending or the token does not match.
	ErrResetTokenInvalid = fmt.Errorf("%w: invalid", ErrResetTokenInvalidOrExpired)
	// ErrResetTokenExpired is returned when the token matches but has expired.
	ErrResetTokenExpired = fmt.Errorf("%w: expired", ErrResetTokenInvalidOrExpired)
	// ErrEmailUnchanged is returned when the requested email equals the current one.
	ErrEmailUnchanged = errors.New("email unchanged")
	// ErrEmailInUse is returned when another principal already owns the requested email.
	ErrEmailInUse = errors.New("email already in use")
	// ErrNoPendingEmailChange is returned when no email change has been requested.
	ErrNoPendingEmailChange = errors.New("no pending email change")
	// ErrNotificationFailed is returned when a reset notification could not be delivered; the pending token has been rolled back.
	ErrNotificationFailed = errors.New("notification delivery failed")
	// ErrRequestRateLimited is returned when reset or email-change requests exceed the configured budget.
	ErrRequestRateLimited = errors.New("request rate limited")
	// ErrSessionCreationFailed wraps session-store failures during login or refresh.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed wraps session-store failures during logout or wipe.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LoginError carries the retry metadata of a rejected login.
// It unwraps to ErrAccountLocked or ErrInvalidCredentials.
type LoginError struct {
	Err          error
	RetryCount   int
	AttemptsLeft int
	// Wait is the remaining lockout time. Zero unless Err is ErrAccountLocked.
	Wait time.Duration
}

func (e *LoginError) Error() string {
	if errors.Is(e.Err, ErrAccountLocked) {
		return fmt.Sprintf("%v: retry in %s", e.Err, e.Wait.Round(time.Second))
	}
	return fmt.Sprintf("%v: %d attempts left", e.Err, e.AttemptsLeft)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
