package secret

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNoSecret is returned by Resolve when neither the provider nor the fallback yields a value.
var ErrNoSecret = errors.New("no signing secret available")

// ErrSecretEmpty is returned by providers that found the secret but with no string value.
var ErrSecretEmpty = errors.New("secret has no string value")

// Provider maps a secret name to its value.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, name string) (string, error)

// GetSecret calls f.
func (f ProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Static always returns the same value.
type Static string

// GetSecret returns s, or ErrSecretEmpty when s is empty.
func (s Static) GetSecret(context.Context, string) (string, error) {
	if s == "" {
		return "", ErrSecretEmpty
	}
	return string(s), nil
}

// Resolve returns the provider's value for name. On any provider failure it
// logs a warning and returns fallback instead.
func Resolve(ctx context.Context, p Provider, name, fallback string, logger zerolog.Logger) (string, error) {
	if p != nil {
		value, err := p.GetSecret(ctx, name)
		if err == nil && value != "" {
			return value, nil
		}
		if err == nil {
			err = ErrSecretEmpty
		}
		logger.Warn().Err(err).Str("secret_name", name).Msg("secret unavailable, using configured fallback")
	}

	if fallback == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSecret, name)
	}
	return fallback, nil
}
