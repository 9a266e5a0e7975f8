package limiters

import (
	"errors"
	"time"
)

// LockoutState is the position of a principal in the lockout state machine.
type LockoutState int

const (
	// LockoutNormal means the retry counter is below the threshold.
	LockoutNormal LockoutState = iota
	// LockoutLocked means the threshold is reached and the window has not elapsed.
	LockoutLocked
	// LockoutEligibleForReset means the threshold is reached but the window has elapsed.
	LockoutEligibleForReset
)

func (s LockoutState) String() string {
	switch s {
	case LockoutNormal:
		return "normal"
	case LockoutLocked:
		return "locked"
	case LockoutEligibleForReset:
		return "eligible_for_reset"
	default:
		return "unknown"
	}
}

// LockoutConfig holds the brute-force policy applied to principal records.
type LockoutConfig struct {
	MaxRetries int
	Window     time.Duration
	// ResetOnSuccess zeroes a sub-threshold counter after a successful login.
	ResetOnSuccess bool
}

// LockoutDecision is the outcome of evaluating a principal's counter.
type LockoutDecision struct {
	State     LockoutState
	Remaining time.Duration
}

// LockoutPolicy evaluates retry counters carried on principal records.
// It holds no state of its own; callers persist the counter.
type LockoutPolicy struct {
	config LockoutConfig
}

// NewLockoutPolicy validates cfg.
func NewLockoutPolicy(cfg LockoutConfig) (*LockoutPolicy, error) {
	if cfg.MaxRetries <= 0 {
		return nil, errors.New("lockout max retries must be > 0")
	}
	if cfg.Window < 0 {
		return nil, errors.New("lockout window must be >= 0")
	}
	return &LockoutPolicy{config: cfg}, nil
}

// Config returns the policy configuration.
func (p *LockoutPolicy) Config() LockoutConfig {
	return p.config
}

// Evaluate classifies retryCount and lastAttempt at now.
func (p *LockoutPolicy) Evaluate(retryCount int, lastAttempt, now time.Time) LockoutDecision {
	if retryCount < p.config.MaxRetries {
		return LockoutDecision{State: LockoutNormal}
	}

	remaining := p.config.Window - now.Sub(lastAttempt)
	if remaining > 0 {
		return LockoutDecision{State: LockoutLocked, Remaining: remaining}
	}
	return LockoutDecision{State: LockoutEligibleForReset}
}

// AttemptsLeft returns how many failures remain before the threshold, floored at zero.
func (p *LockoutPolicy) AttemptsLeft(retryCount int) int {
	left := p.config.MaxRetries - retryCount
	if left < 0 {
		return 0
	}
	return left
}
