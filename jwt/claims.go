package jwt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	headerTypeAccess  = "JWT"
	headerTypeRefresh = "refresh+jwt"
)

// Claims is the signed payload carried by every token.
//
// IssuedAt is kept as fractional Unix seconds so the anti-replay id can be
// recomputed at the exact precision it was minted with. Kind is read from the
// JOSE header and never serialized into the payload. Access payloads always
// carry email, refresh payloads never do.
type Claims struct {
	Subject   string  `json:"sub"`
	Email     string  `json:"email"`
	ExpiresAt int64   `json:"exp"`
	Issuer    string  `json:"iss"`
	IssuedAt  float64 `json:"iat"`
	ID        string  `json:"jti"`

	Kind Kind `json:"-"`
}

type refreshPayload struct {
	Subject   string  `json:"sub"`
	ExpiresAt int64   `json:"exp"`
	Issuer    string  `json:"iss"`
	IssuedAt  float64 `json:"iat"`
	ID        string  `json:"jti"`
}

func (c *Claims) MarshalJSON() ([]byte, error) {
	if c.Kind == KindRefresh {
		return json.Marshal(refreshPayload{
			Subject:   c.Subject,
			ExpiresAt: c.ExpiresAt,
			Issuer:    c.Issuer,
			IssuedAt:  c.IssuedAt,
			ID:        c.ID,
		})
	}
	type access Claims
	return json.Marshal((*access)(c))
}

// IssuedAtTime converts the fractional iat claim back to a microsecond-precision time.
func (c *Claims) IssuedAtTime() time.Time {
	return time.UnixMicro(int64(math.Round(c.IssuedAt * 1e6))).UTC()
}

// ExpiresAtTime returns exp as a time.
func (c *Claims) ExpiresAtTime() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

func issuedAtSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// The methods below satisfy jwt.Claims. Time-based validation is performed by
// Manager.Decode against its own clock, so the parser never consults them.

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(c.ExpiresAtTime()), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(c.IssuedAtTime()), nil
}

func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *Claims) GetIssuer() (string, error) {
	return c.Issuer, nil
}

func (c *Claims) GetSubject() (string, error) {
	return c.Subject, nil
}

func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// TokenPair is returned to clients after a session is created.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresAt    int64  `json:"expiresAt"`
}
