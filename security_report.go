package authcore

import (
	"time"

	"github.com/ehp-platform/authcore/internal/security"
)

// SecurityReport summarizes the security posture of an engine's configuration.
type SecurityReport struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	RefreshOnLogin        bool
	Argon2                PasswordConfigReport
	LegacyHashUpgrade     bool
	LockoutActive         bool
	MaxLoginAttempts      int
	LockoutWindow         time.Duration
	ResetOnSuccess        bool
	ConfirmationRequired  bool
	RequestThrottleActive bool
	IPThrottleActive      bool
	SecretsManagerEnabled bool
	StaticFallbackSet     bool
	AuditEnabled          bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport returns the posture of the engine's configuration. It never
// includes secret material.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := security.BuildReport(security.ReportInput{
		SigningAlgorithm:    e.config.Token.SigningMethod,
		AccessTTL:           e.config.Session.Timeout,
		RefreshTTL:          e.config.Token.RefreshTTL,
		IssueRefreshOnLogin: e.config.Login.IssueRefreshOnLogin,
		Password: security.PasswordReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		UpgradeOnLogin:        e.config.Password.UpgradeOnLogin,
		MaxRetries:            e.config.Lockout.MaxRetries,
		LockoutWindow:         e.config.Lockout.Window,
		ResetOnSuccess:        e.config.Lockout.ResetOnSuccess,
		RequireConfirmed:      e.config.Login.RequireConfirmed,
		EnableRequestThrottle: e.config.Reset.EnableRequestThrottle,
		EnableIPThrottle:      e.config.Reset.EnableIPThrottle,
		MaxRequests:           e.config.Reset.MaxRequests,
		RequestWindow:         e.config.Reset.RequestWindow,
		SecretName:            e.config.Secret.Name,
		SecretFallback:        e.config.Secret.Fallback,
		AuditEnabled:          e.config.Audit.Enabled,
	})

	return SecurityReport{
		SigningAlgorithm:      r.SigningAlgorithm,
		AccessTTL:             r.AccessTTL,
		RefreshTTL:            r.RefreshTTL,
		RefreshOnLogin:        r.RefreshOnLogin,
		Argon2:                PasswordConfigReport(r.Argon2),
		LegacyHashUpgrade:     r.LegacyHashUpgrade,
		LockoutActive:         r.LockoutActive,
		MaxLoginAttempts:      r.MaxLoginAttempts,
		LockoutWindow:         r.LockoutWindow,
		ResetOnSuccess:        r.ResetOnSuccess,
		ConfirmationRequired:  r.ConfirmationRequired,
		RequestThrottleActive: r.RequestThrottleActive,
		IPThrottleActive:      r.IPThrottleActive,
		SecretsManagerEnabled: r.SecretsManagerEnabled,
		StaticFallbackSet:     r.StaticFallbackSet,
		AuditEnabled:          r.AuditEnabled,
	}
}
