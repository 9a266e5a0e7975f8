package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/ehp-platform/authcore/internal/audit"
	"github.com/ehp-platform/authcore/internal/limiters"
	"github.com/ehp-platform/authcore/jwt"
	"github.com/ehp-platform/authcore/password"
	"github.com/ehp-platform/authcore/secret"
	"github.com/ehp-platform/authcore/session"
)

// Builder assembles an [Engine]. A Builder can be used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	principals PrincipalStore
	notifier   Notifier
	hasher     password.Hasher
	secrets    secret.Provider
	auditSink  AuditSink
	logger     zerolog.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and request throttling. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore sets the persistence collaborator. Required.
func (b *Builder) WithPrincipalStore(store PrincipalStore) *Builder {
	b.principals = store
	return b
}

// WithNotifier sets the reset-token transport. Without one, reset and
// email-change requests fail with ErrNotificationFailed and roll back.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithPasswordHasher overrides the default argon2id chain built from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithSecretProvider sets where the signing secret is fetched from. When unset
// and Config.Secret.Name is non-empty, an AWS Secrets Manager provider is
// created from Config.Secret.AWS.
func (b *Builder) WithSecretProvider(p secret.Provider) *Builder {
	b.secrets = p
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger shared by engine components.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for token issuance, lockout and reset expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, resolves the signing secret and wires
// every component.
//
// Build blocks while the secret is fetched; ctx bounds that call.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.Token.SigningMethod = strings.ToUpper(cfg.Token.SigningMethod)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.principals == nil {
		return nil, errors.New("principal store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.logger.With().Str("subsystem", "authcore").Logger()

	// -------- SIGNING SECRET --------
	provider := b.secrets
	if provider == nil && cfg.Secret.Name != "" {
		sm, err := secret.NewSecretsManagerFromConfig(ctx, cfg.Secret.AWS)
		if err != nil {
			log.Warn().Err(err).Msg("secrets manager client unavailable; using static secret")
		} else {
			provider = sm
		}
	}
	signingSecret, err := secret.Resolve(ctx, provider, cfg.Secret.Name, cfg.Secret.Fallback, log)
	if err != nil {
		return nil, err
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewManager(jwt.Config{
		Secret:        []byte(signingSecret),
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		Issuer:        cfg.Token.Issuer,
		AccessTTL:     cfg.Session.Timeout,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS --------
	store := session.NewStore(b.redis, cfg.Session.KeyPrefix)
	sessions, err := session.NewManager(codec, store, session.ManagerConfig{
		SessionTimeout: cfg.Session.Timeout,
		StoreTimeout:   cfg.Session.StoreTimeout,
		RevocationTTL:  cfg.Token.RefreshTTL,
		Now:            now,
	}, log)
	if err != nil {
		return nil, err
	}

	// -------- LOCKOUT / THROTTLE --------
	lockout, err := limiters.NewLockoutPolicy(limiters.LockoutConfig{
		MaxRetries:     cfg.Lockout.MaxRetries,
		Window:         cfg.Lockout.Window,
		ResetOnSuccess: cfg.Lockout.ResetOnSuccess,
	})
	if err != nil {
		return nil, err
	}

	var requests *limiters.RequestLimiter
	if cfg.Reset.EnableRequestThrottle {
		requests = limiters.NewRequestLimiter(b.redis, cfg.Session.KeyPrefix, limiters.RequestConfig{
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         cfg.Reset.EnableIPThrottle,
			MaxRequests:              cfg.Reset.MaxRequests,
			Window:                   cfg.Reset.RequestWindow,
		})
	}

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = password.NewChain(argon)
	}

	engine := &Engine{
		config:     cfg,
		codec:      codec,
		sessions:   sessions,
		lockout:    lockout,
		requests:   requests,
		principals: b.principals,
		notifier:   b.notifier,
		passwords:  hasher,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  log,
		now:     now,
	}

	b.built = true
	return engine, nil
}
