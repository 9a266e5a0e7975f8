package jwt

import "errors"

var (
	// ErrInvalidToken is returned for malformed tokens, bad signatures, disallowed
	// algorithms, foreign issuers, and claim sets missing required fields.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpired is returned when the signature is valid but the token is past exp.
	ErrExpired = errors.New("token expired")
	// ErrInvalidAntiReplay is returned when the recomputed jti does not match the claim.
	ErrInvalidAntiReplay = errors.New("invalid anti-replay id")
)
