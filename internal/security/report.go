package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	RefreshOnLogin        bool
	Argon2                PasswordReport
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

type ReportInput struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	IssueRefreshOnLogin   bool
	Password              PasswordReport
	UpgradeOnLogin        bool
	MaxRetries            int
	LockoutWindow         time.Duration
	ResetOnSuccess        bool
	RequireConfirmed      bool
	EnableRequestThrottle bool
	EnableIPThrottle      bool
	MaxRequests           int
	RequestWindow         time.Duration
	SecretName            string
	SecretFallback        string
	AuditEnabled          bool
}

func BuildReport(input ReportInput) Report {
	lockout := input.MaxRetries > 0 && input.LockoutWindow > 0
	throttle := input.EnableRequestThrottle &&
		input.MaxRequests > 0 &&
		input.RequestWindow > 0

	return Report{
		SigningAlgorithm:      input.SigningAlgorithm,
		AccessTTL:             input.AccessTTL,
		RefreshTTL:            input.RefreshTTL,
		RefreshOnLogin:        input.IssueRefreshOnLogin,
		Argon2:                input.Password,
		LegacyHashUpgrade:     input.UpgradeOnLogin,
		LockoutActive:         lockout,
		MaxLoginAttempts:      input.MaxRetries,
		LockoutWindow:         input.LockoutWindow,
		ResetOnSuccess:        input.ResetOnSuccess,
		ConfirmationRequired:  input.RequireConfirmed,
		RequestThrottleActive: throttle,
		IPThrottleActive:      throttle && input.EnableIPThrottle,
		SecretsManagerEnabled: input.SecretName != "",
		StaticFallbackSet:     input.SecretFallback != "",
		AuditEnabled:          input.AuditEnabled,
	}
}
