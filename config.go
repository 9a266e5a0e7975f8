package authcore

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ehp-platform/authcore/jwt"
	"github.com/ehp-platform/authcore/logger"
	"github.com/ehp-platform/authcore/password"
	"github.com/ehp-platform/authcore/secret"
)

// Config is the complete engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Lockout  LockoutConfig
	Login    LoginConfig
	Password PasswordConfig
	Reset    ResetConfig
	Secret   SecretConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Redis    RedisConfig
	Log      LogConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the JWT codec. The access-token lifetime is
// Session.Timeout.
type TokenConfig struct {
	SigningMethod string // "HS256" (default), "HS384", "HS512"
	Issuer        string
	RefreshTTL    time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session store.
type SessionConfig struct {
	// Timeout is both the access-token lifetime and the sliding record TTL.
	Timeout time.Duration
	// StoreTimeout bounds each Redis round trip.
	StoreTimeout time.Duration
	KeyPrefix    string
}

/*
====================================
LOCKOUT / LOGIN CONFIG
====================================
*/

// LockoutConfig is the brute-force policy applied to principal retry counters.
type LockoutConfig struct {
	MaxRetries int
	Window     time.Duration
	// ResetOnSuccess zeroes a non-zero counter after a successful login.
	ResetOnSuccess bool
}

// LoginConfig controls login outcomes.
type LoginConfig struct {
	RequireConfirmed    bool
	IssueRefreshOnLogin bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for new hashes.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// UpgradeOnLogin rewrites legacy or weaker hashes after a successful login.
	UpgradeOnLogin bool
}

/*
====================================
RESET CONFIG
====================================
*/

// ResetConfig controls the password-reset and email-change token flows.
type ResetConfig struct {
	PasswordTTL    time.Duration
	EmailChangeTTL time.Duration

	EnableRequestThrottle bool
	EnableIPThrottle      bool
	MaxRequests           int
	RequestWindow         time.Duration
}

/*
====================================
SECRET CONFIG
====================================
*/

// SecretConfig locates the signing secret.
type SecretConfig struct {
	// Name is the Secrets Manager secret id. Empty skips the lookup.
	Name string
	// Fallback is used whenever the lookup fails.
	Fallback string
	AWS      secret.AWSConfig
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
REDIS / LOG CONFIG
====================================
*/

// RedisConfig describes how operator tooling connects to Redis. The engine
// itself receives a ready client through [Builder.WithRedis].
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Password string
	Timeout  time.Duration
}

// Options converts c into go-redis client options.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		DB:           c.DB,
		Password:     c.Password,
		DialTimeout:  c.Timeout,
		ReadTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
	}
}

// LogConfig mirrors the logger package configuration.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// LoggerConfig converts c into a logger configuration.
func (c LogConfig) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	if c.File != "" {
		cfg = logger.ProductionConfig(c.File)
	}
	if c.Level != "" {
		cfg.Level = c.Level
	}
	if c.Format != "" {
		cfg.Format = logger.Format(strings.ToLower(c.Format))
	}
	return cfg
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Token.Issuer and
// Session.Timeout have no usable default and must be set.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Token: TokenConfig{
			SigningMethod: string(jwt.MethodHS256),
			RefreshTTL:    jwt.DefaultRefreshTTL,
		},
		Session: SessionConfig{
			StoreTimeout: 3 * time.Second,
			KeyPrefix:    "as",
		},
		Lockout: LockoutConfig{
			MaxRetries: 5,
			Window:     60 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Reset: ResetConfig{
			PasswordTTL:           30 * time.Minute,
			EmailChangeTTL:        30 * time.Minute,
			EnableRequestThrottle: true,
			EnableIPThrottle:      true,
			MaxRequests:           5,
			RequestWindow:         15 * time.Minute,
		},
		Secret: SecretConfig{
			Name: "EHP_JWT_SECRET",
			AWS:  secret.AWSConfig{Region: "us-east-1"},
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Redis: RedisConfig{
			Host:    "localhost",
			Port:    6379,
			Timeout: 3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(logger.ConsoleFormat),
		},
	}
}

// Config has no reference-typed fields today; the copy is kept explicit so
// the builder never aliases caller state if one is added.
func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	// Token
	switch jwt.SigningMethod(strings.ToUpper(c.Token.SigningMethod)) {
	case jwt.MethodHS256, jwt.MethodHS384, jwt.MethodHS512:
	default:
		return errors.New("Token SigningMethod must be HS256, HS384 or HS512")
	}
	if strings.TrimSpace(c.Token.Issuer) == "" {
		return errors.New("Token Issuer is required")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}

	// Session
	if c.Session.Timeout <= 0 {
		return errors.New("Session Timeout must be > 0")
	}
	if c.Session.StoreTimeout < 0 {
		return errors.New("Session StoreTimeout must be >= 0")
	}
	if strings.ContainsAny(c.Session.KeyPrefix, " \t\r\n") {
		return errors.New("Session KeyPrefix must not contain whitespace")
	}

	// Lockout
	if c.Lockout.MaxRetries <= 0 {
		return errors.New("Lockout MaxRetries must be > 0")
	}
	if c.Lockout.Window < 0 {
		return errors.New("Lockout Window must be >= 0")
	}

	// Reset
	if c.Reset.PasswordTTL <= 0 {
		return errors.New("Reset PasswordTTL must be > 0")
	}
	if c.Reset.EmailChangeTTL <= 0 {
		return errors.New("Reset EmailChangeTTL must be > 0")
	}
	if c.Reset.EnableRequestThrottle {
		if c.Reset.MaxRequests <= 0 {
			return errors.New("Reset MaxRequests must be > 0 when throttling is enabled")
		}
		if c.Reset.RequestWindow <= 0 {
			return errors.New("Reset RequestWindow must be > 0 when throttling is enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
