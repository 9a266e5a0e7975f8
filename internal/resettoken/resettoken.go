// Package resettoken generates and checks the single-use random tokens stored on
// principal records for password reset and email change.
//
// These tokens are deliberately unrelated to the JWT codec: they are opaque hex
// strings compared against a stored copy, with their own expiry.
package resettoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

// Size is the number of random bytes behind each token.
const Size = 32

// DefaultTTL is the usual lifetime of a pending token.
const DefaultTTL = 30 * time.Minute

var (
	// ErrInvalid means no token is pending or the provided token does not match.
	ErrInvalid = errors.New("reset token invalid")
	// ErrExpired means the provided token matches but its expiry has passed.
	ErrExpired = errors.New("reset token expired")
)

// Generate returns 64 lowercase hex characters drawn from crypto/rand.
func Generate() (string, error) {
	var raw [Size]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// Pending is a token together with its absolute expiry.
type Pending struct {
	Token     string
	ExpiresAt time.Time
}

// Issue generates a token expiring ttl after now.
func Issue(now time.Time, ttl time.Duration) (Pending, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token, err := Generate()
	if err != nil {
		return Pending{}, err
	}
	return Pending{Token: token, ExpiresAt: now.Add(ttl)}, nil
}

// Check compares provided against the stored token in constant time and then
// enforces expiry. A missing stored token or expiry is ErrInvalid.
func Check(stored string, expiresAt *time.Time, provided string, now time.Time) error {
	if stored == "" || provided == "" || expiresAt == nil {
		return ErrInvalid
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
		return ErrInvalid
	}
	if now.After(*expiresAt) {
		return ErrExpired
	}
	return nil
}
