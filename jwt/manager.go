package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names the HMAC algorithm used to sign tokens.
type SigningMethod string

const (
	MethodHS256 SigningMethod = "HS256"
	MethodHS384 SigningMethod = "HS384"
	MethodHS512 SigningMethod = "HS512"
)

// DefaultRefreshTTL is the lifetime of refresh tokens.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret        []byte
	SigningMethod SigningMethod
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and verifies claim sets with a single shared secret.
type Manager struct {
	config Config
	method jwt.SigningMethod
	parser *jwt.Parser
}

// NewManager validates cfg and returns a ready Manager.
//
// NewManager may return an error when the secret is empty, the algorithm is not
// an HMAC variant, or a TTL is not positive.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.SigningMethod = SigningMethod(strings.ToUpper(string(cfg.SigningMethod)))

	var method jwt.SigningMethod
	switch cfg.SigningMethod {
	case MethodHS256:
		method = jwt.SigningMethodHS256
	case MethodHS384:
		method = jwt.SigningMethodHS384
	case MethodHS512:
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		config: cfg,
		method: method,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// AntiReplayID returns the deterministic jti for subject at issuedAt.
func (m *Manager) AntiReplayID(subject string, issuedAt time.Time) string {
	return antiReplayID(m.config.Secret, subject, issuedAt)
}

// Generate mints an access token and, when includeRefresh is set, a refresh
// token sharing the same issued-at instant and jti.
func (m *Manager) Generate(subject, email string, includeRefresh bool) (*TokenPair, error) {
	if subject == "" {
		return nil, errors.New("subject is required")
	}

	issuedAt := m.config.Now().UTC().Truncate(time.Microsecond)
	jti := m.AntiReplayID(subject, issuedAt)

	access := &Claims{
		Subject:   subject,
		Email:     email,
		ExpiresAt: issuedAt.Add(m.config.AccessTTL).Unix(),
		Issuer:    m.config.Issuer,
		IssuedAt:  issuedAtSeconds(issuedAt),
		ID:        jti,
		Kind:      KindAccess,
	}
	accessToken, err := m.sign(access, headerTypeAccess)
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   access.ExpiresAt,
	}

	if includeRefresh {
		refresh := &Claims{
			Subject:   subject,
			ExpiresAt: issuedAt.Add(m.config.RefreshTTL).Unix(),
			Issuer:    m.config.Issuer,
			IssuedAt:  access.IssuedAt,
			ID:        jti,
			Kind:      KindRefresh,
		}
		pair.RefreshToken, err = m.sign(refresh, headerTypeRefresh)
		if err != nil {
			return nil, err
		}
	}

	return pair, nil
}

// Decode verifies the signature and issuer of tokenStr, optionally enforces
// exp, and checks the anti-replay id.
//
// Failures wrap exactly one of ErrInvalidToken, ErrExpired or ErrInvalidAntiReplay.
func (m *Manager) Decode(tokenStr string, verifyExpiry bool) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt <= 0 || claims.ExpiresAt <= 0 {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalidToken)
	}
	if claims.Issuer != m.config.Issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}

	claims.Kind = KindAccess
	if typ, _ := token.Header["typ"].(string); typ == headerTypeRefresh {
		claims.Kind = KindRefresh
	}

	if verifyExpiry && m.config.Now().After(claims.ExpiresAtTime()) {
		return nil, ErrExpired
	}

	expected := m.AntiReplayID(claims.Subject, claims.IssuedAtTime())
	if !antiReplayEqual(expected, claims.ID) {
		return nil, ErrInvalidAntiReplay
	}

	return claims, nil
}

func (m *Manager) sign(claims *Claims, typ string) (string, error) {
	token := jwt.NewWithClaims(m.method, claims)
	token.Header["typ"] = typ
	return token.SignedString(m.config.Secret)
}
