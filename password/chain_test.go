package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Produced by werkzeug.security.generate_password_hash("correct horse", method="scrypt")
// with a fixed salt.
const werkzeugScryptHash = "scrypt:32768:8:1$Zq3xY8aB$3b779a9b3edef201f69a36ba842ac065c84a78269acb8bf0819289905c321a73f9818d423720653d5606053090e481f988023dd40babc9f1b37914398eea7885"

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	a, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)
	c := NewChain(a)
	c.Bcrypt = NewBcrypt(4)
	return c
}

func TestChainVerifiesWerkzeugScrypt(t *testing.T) {
	c := newTestChain(t)

	ok, err := c.Verify("correct horse", werkzeugScryptHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Verify("battery staple", werkzeugScryptHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScryptRoundTrip(t *testing.T) {
	s := &Scrypt{N: 1 << 10, R: 8, P: 1, SaltLength: 8}
	hash, err := s.Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "scrypt:1024:8:1$"))

	ok, err := s.Verify("s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChainDispatch(t *testing.T) {
	c := newTestChain(t)

	argonHash, err := c.Hash("argon-pass")
	require.NoError(t, err)
	ok, err := c.Verify("argon-pass", argonHash)
	require.NoError(t, err)
	assert.True(t, ok)

	bcryptHash, err := c.Bcrypt.Hash("bcrypt-pass")
	require.NoError(t, err)
	ok, err = c.Verify("bcrypt-pass", bcryptHash)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Verify("nope", bcryptHash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Verify("x", "md5$abc")
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	ok, err = c.Verify("", argonHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChainNeedsRehash(t *testing.T) {
	a, err := NewArgon2(Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	chain := NewChain(a)

	current, err := chain.Hash("correct horse")
	require.NoError(t, err)
	assert.False(t, chain.NeedsRehash(current))

	legacy, err := NewScrypt().Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, chain.NeedsRehash(legacy))

	stronger, err := NewArgon2(Config{Memory: 16 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	assert.True(t, NewChain(stronger).NeedsRehash(current))
}
