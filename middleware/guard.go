package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehp-platform/authcore"
	"github.com/ehp-platform/authcore/session"
)

// TokenHeader is the header carrying a bare access token.
const TokenHeader = "X-Token-Auth"

// TokenQueryParam is the query parameter consulted when no header carries a token.
const TokenQueryParam = "x-token-auth"

type authResultContextKey struct{}

// AuthResultFromContext returns the result stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

type validator interface {
	Validate(ctx context.Context, token string) (*authcore.AuthResult, error)
}

// Guard rejects requests without a valid access token. The token is read from
// X-Token-Auth, or from an "Authorization: Bearer" header. A session store
// outage is answered with 503; every other failure with 401.
func Guard(engine *authcore.Engine, logger zerolog.Logger) func(http.Handler) http.Handler {
	var v validator
	if engine != nil {
		v = engine
	}
	return guard(v, logger)
}

func guard(v validator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := tokenFromRequest(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := v.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, session.ErrRedisUnavailable) {
					logger.Error().Err(err).
						Str("request_id", authcore.RequestIDFromContext(r.Context())).
						Msg("session store unavailable")
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				logger.Debug().Err(err).
					Str("request_id", authcore.RequestIDFromContext(r.Context())).
					Msg("token rejected")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token, true
	}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if token := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)); token != "" {
		return token, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
