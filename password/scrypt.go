package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptMethod    = "scrypt"
	scryptKeyLength = 64
	scryptSaltChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Scrypt reads and writes Werkzeug-style scrypt hashes
// ("scrypt:n:r:p$salt$hex"), the format used by existing principal records.
type Scrypt struct {
	N, R, P    int
	SaltLength int
}

// NewScrypt returns the Werkzeug defaults: n=32768, r=8, p=1, 16-char salt.
func NewScrypt() *Scrypt {
	return &Scrypt{N: 1 << 15, R: 8, P: 1, SaltLength: 16}
}

// Hash returns a Werkzeug-compatible scrypt hash.
func (s *Scrypt) Hash(password string) (string, error) {
	salt, err := randomSalt(s.SaltLength)
	if err != nil {
		return "", err
	}
	key, err := scrypt.Key([]byte(password), []byte(salt), s.N, s.R, s.P, scryptKeyLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%d:%d$%s$%s", scryptMethod, s.N, s.R, s.P, salt, hex.EncodeToString(key)), nil
}

// Verify recomputes the hash with the stored parameters and salt.
func (s *Scrypt) Verify(password, encodedHash string) (bool, error) {
	method, rest, ok := strings.Cut(encodedHash, "$")
	if !ok {
		return false, errors.New("invalid scrypt hash")
	}
	salt, digest, ok := strings.Cut(rest, "$")
	if !ok {
		return false, errors.New("invalid scrypt hash")
	}

	params := strings.Split(method, ":")
	if params[0] != scryptMethod {
		return false, ErrUnsupportedHash
	}
	n, r, p := 1<<15, 8, 1
	if len(params) == 4 {
		var errs [3]error
		n, errs[0] = strconv.Atoi(params[1])
		r, errs[1] = strconv.Atoi(params[2])
		p, errs[2] = strconv.Atoi(params[3])
		if errs[0] != nil || errs[1] != nil || errs[2] != nil {
			return false, errors.New("invalid scrypt parameters")
		}
	} else if len(params) != 1 {
		return false, errors.New("invalid scrypt parameters")
	}

	want, err := hex.DecodeString(digest)
	if err != nil || len(want) == 0 {
		return false, errors.New("invalid scrypt digest")
	}
	got, err := scrypt.Key([]byte(password), []byte(salt), n, r, p, len(want))
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func randomSalt(n int) (string, error) {
	if n <= 0 {
		n = 16
	}
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(scryptSaltChars)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(scryptSaltChars[idx.Int64()])
	}
	return b.String(), nil
}
