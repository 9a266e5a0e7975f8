package password

import (
	"errors"
	"strings"
)

// ErrUnsupportedHash is returned when no verifier recognizes an encoded hash.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Hasher produces and checks encoded password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Chain hashes with Primary and verifies with whichever member recognizes the encoding.
type Chain struct {
	Primary Hasher
	Argon2  *Argon2
	Bcrypt  *Bcrypt
	Scrypt  *Scrypt
}

// NewChain returns a chain hashing with argon2 and verifying all known encodings.
func NewChain(primary *Argon2) *Chain {
	return &Chain{
		Primary: primary,
		Argon2:  primary,
		Bcrypt:  NewBcrypt(0),
		Scrypt:  NewScrypt(),
	}
}

// Hash delegates to Primary.
func (c *Chain) Hash(password string) (string, error) {
	if c.Primary == nil {
		return "", errors.New("no primary password hasher configured")
	}
	return c.Primary.Hash(password)
}

// Verify picks a verifier from the encoding prefix. An empty hash never matches.
func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	if encodedHash == "" || password == "" {
		return false, nil
	}
	switch {
	case strings.HasPrefix(encodedHash, "$"+argon2AlgorithmID+"$") && c.Argon2 != nil:
		return c.Argon2.Verify(password, encodedHash)
	case isBcryptHash(encodedHash) && c.Bcrypt != nil:
		return c.Bcrypt.Verify(password, encodedHash)
	case strings.HasPrefix(encodedHash, scryptMethod+":") && c.Scrypt != nil:
		return c.Scrypt.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether encodedHash should be replaced with a fresh
// primary hash: it is in a legacy encoding, or argon2 with weaker parameters.
func (c *Chain) NeedsRehash(encodedHash string) bool {
	if c.Argon2 == nil || c.Primary != Hasher(c.Argon2) {
		return false
	}
	if !strings.HasPrefix(encodedHash, "$"+argon2AlgorithmID+"$") {
		return true
	}
	weaker, err := c.Argon2.NeedsRehash(encodedHash)
	return err == nil && weaker
}
