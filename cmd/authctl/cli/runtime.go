package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehp-platform/authcore"
	"github.com/ehp-platform/authcore/jwt"
	"github.com/ehp-platform/authcore/logger"
	"github.com/ehp-platform/authcore/secret"
	"github.com/ehp-platform/authcore/session"
)

// runtime holds what a command needs to talk to the session store.
type runtime struct {
	cfg      authcore.Config
	log      zerolog.Logger
	redis    redis.UniversalClient
	codec    *jwt.Manager
	sessions *session.Manager

	closers []io.Closer
}

// openRuntime loads configuration from the environment, resolves the
// signing secret and connects to Redis.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg := authcore.LoadConfigFromEnv()

	log, logCloser, err := logger.New(cfg.Log.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	codec, err := newCodec(ctx, cfg, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.codec = codec

	client := redis.NewClient(cfg.Redis.Options())
	rt.closers = append(rt.closers, client)
	if err := rt.attach(client); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// attach points the runtime at client, replacing any previous session manager.
func (r *runtime) attach(client redis.UniversalClient) error {
	sessions, err := session.NewManager(r.codec, session.NewStore(client, r.cfg.Session.KeyPrefix), session.ManagerConfig{
		SessionTimeout: r.cfg.Session.Timeout,
		StoreTimeout:   r.cfg.Session.StoreTimeout,
		RevocationTTL:  r.cfg.Token.RefreshTTL,
	}, r.log)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}
	r.redis = client
	r.sessions = sessions
	return nil
}

// Close releases every resource opened by the runtime.
func (r *runtime) Close() error {
	var result *multierror.Error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func newCodec(ctx context.Context, cfg authcore.Config, log zerolog.Logger) (*jwt.Manager, error) {
	if cfg.Session.Timeout <= 0 {
		return nil, errors.New("SESSION_TIMEOUT must be set")
	}

	var provider secret.Provider
	if cfg.Secret.Name != "" && !flagNoSecretsManager {
		sm, err := secret.NewSecretsManagerFromConfig(ctx, cfg.Secret.AWS)
		if err != nil {
			log.Warn().Err(err).Msg("secrets manager client unavailable")
		} else {
			provider = sm
		}
	}
	signingSecret, err := secret.Resolve(ctx, provider, cfg.Secret.Name, cfg.Secret.Fallback, log)
	if err != nil {
		return nil, err
	}

	codec, err := jwt.NewManager(jwt.Config{
		Secret:        []byte(signingSecret),
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		Issuer:        cfg.Token.Issuer,
		AccessTTL:     cfg.Session.Timeout,
		RefreshTTL:    cfg.Token.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	return codec, nil
}
