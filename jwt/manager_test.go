package jwt

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "61a9fd867e810f7e846946bd3ba4e0c6"

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	cfg := Config{
		Secret:        []byte(testSecret),
		SigningMethod: MethodHS256,
		Issuer:        "ehp",
		AccessTTL:     30 * time.Minute,
	}
	if clock != nil {
		cfg.Now = clock.Now
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func TestNewManagerValidation(t *testing.T) {
	base := Config{Secret: []byte("s"), Issuer: "ehp", AccessTTL: time.Minute}

	cases := map[string]func(c *Config){
		"empty secret":     func(c *Config) { c.Secret = nil },
		"zero access ttl":  func(c *Config) { c.AccessTTL = 0 },
		"negative refresh": func(c *Config) { c.RefreshTTL = -time.Second },
		"blank issuer":     func(c *Config) { c.Issuer = "  " },
		"asymmetric alg":   func(c *Config) { c.SigningMethod = "RS256" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			_, err := NewManager(cfg)
			assert.Error(t, err)
		})
	}

	m, err := NewManager(Config{Secret: []byte("s"), Issuer: "ehp", AccessTTL: time.Minute, SigningMethod: "hs512"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRefreshTTL, m.config.RefreshTTL)
	assert.Equal(t, "HS512", m.method.Alg())
}

func TestGenerateDecodeRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	for _, tc := range []struct{ subject, email string }{
		{"42", "a@b.com"},
		{"7", ""},
		{"user-ü", "ü@example.org"},
	} {
		pair, err := m.Generate(tc.subject, tc.email, false)
		require.NoError(t, err)
		assert.Equal(t, "Bearer", pair.TokenType)
		assert.Empty(t, pair.RefreshToken)

		claims, err := m.Decode(pair.AccessToken, true)
		require.NoError(t, err)
		assert.Equal(t, tc.subject, claims.Subject)
		assert.Equal(t, tc.email, claims.Email)
		assert.Equal(t, "ehp", claims.Issuer)
		assert.Equal(t, pair.ExpiresAt, claims.ExpiresAt)
		assert.Equal(t, KindAccess, claims.Kind)
	}
}

func TestDecodeJTIMatchesAntiReplayID(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 4, 5, 6, 7, 891234567, time.UTC)}
	m := newTestManager(t, clock)

	pair, err := m.Generate("42", "a@b.com", false)
	require.NoError(t, err)

	claims, err := m.Decode(pair.AccessToken, true)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, m.AntiReplayID("42", claims.IssuedAtTime()), claims.ID)
	assert.Equal(t, time.Date(2025, 3, 4, 5, 6, 7, 891234000, time.UTC), claims.IssuedAtTime())
	assert.InDelta(t, 1741064767.891234, claims.IssuedAt, 1e-6)
}

func TestAntiReplayIDDeterministic(t *testing.T) {
	m := newTestManager(t, nil)
	at := time.Date(2024, 1, 1, 12, 0, 0, 123456000, time.UTC)

	first := m.AntiReplayID("42", at)
	assert.Equal(t, first, m.AntiReplayID("42", at))
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, m.AntiReplayID("43", at))
	assert.NotEqual(t, first, m.AntiReplayID("42", at.Add(time.Microsecond)))

	other, err := NewManager(Config{Secret: []byte("another-secret"), Issuer: "ehp", AccessTTL: time.Minute})
	require.NoError(t, err)
	assert.NotEqual(t, first, other.AntiReplayID("42", at))
}

func TestISOTimestampFormat(t *testing.T) {
	assert.Equal(t, "2024-01-01T12:00:00.123456+00:00", isoTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.UTC)))
	assert.Equal(t, "2024-01-01T12:00:00.000100+00:00", isoTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 100000, time.UTC)))
	assert.Equal(t, "2024-01-01T12:00:00+00:00", isoTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))

	loc := time.FixedZone("BRT", -3*3600)
	assert.Equal(t, "2024-01-01T15:00:00+00:00", isoTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, loc)))
}

func TestAntiReplayIDKnownVector(t *testing.T) {
	// hmac.new(b"secret", b"42-2024-01-01T00:00:00+00:00", sha256).hexdigest()
	got := antiReplayID([]byte("secret"), "42", time.Unix(1704067200, 0))
	assert.Equal(t, "edf91031ea365889f3344f0e72cef299a19db019f45c507d2c0e549e20015d7c", got)
}

func TestDecodeExpirySkipAndEnforce(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	pair, err := m.Generate("42", "a@b.com", false)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)

	claims, err := m.Decode(pair.AccessToken, false)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)

	_, err = m.Decode(pair.AccessToken, true)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDecodeTamperedPayloadIsInvalidToken(t *testing.T) {
	m := newTestManager(t, nil)
	pair, err := m.Generate("42", "a@b.com", false)
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(mutated) + "." + parts[2]

		_, err := m.Decode(forged, true)
		require.ErrorIs(t, err, ErrInvalidToken, "byte %d", i)
		require.NotErrorIs(t, err, ErrInvalidAntiReplay)
	}
}

func TestDecodeRejectsSignatureFromOtherSecret(t *testing.T) {
	m := newTestManager(t, nil)
	other, err := NewManager(Config{Secret: []byte("other"), Issuer: "ehp", AccessTTL: time.Minute})
	require.NoError(t, err)

	pair, err := other.Generate("42", "a@b.com", false)
	require.NoError(t, err)

	_, err = m.Decode(pair.AccessToken, true)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeRejectsInconsistentJTI(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now().UTC().Truncate(time.Microsecond)

	claims := &Claims{
		Subject:   "42",
		Email:     "a@b.com",
		ExpiresAt: now.Add(time.Minute).Unix(),
		Issuer:    "ehp",
		IssuedAt:  issuedAtSeconds(now),
		ID:        m.AntiReplayID("41", now),
	}
	token, err := m.sign(claims, headerTypeAccess)
	require.NoError(t, err)

	_, err = m.Decode(token, true)
	assert.ErrorIs(t, err, ErrInvalidAntiReplay)
}

func TestDecodeRejectsWrongAlgorithmAndIssuer(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now().UTC().Truncate(time.Microsecond)
	claims := &Claims{
		Subject:   "42",
		ExpiresAt: now.Add(time.Minute).Unix(),
		Issuer:    "ehp",
		IssuedAt:  issuedAtSeconds(now),
		ID:        m.AntiReplayID("42", now),
	}

	hs512, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = m.Decode(hs512, true)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Decode(none, true)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := *claims
	foreign.Issuer = "someone-else"
	token, err := m.sign(&foreign, headerTypeAccess)
	require.NoError(t, err)
	_, err = m.Decode(token, true)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeMalformed(t *testing.T) {
	m := newTestManager(t, nil)
	for _, raw := range []string{"", "abc", "a.b.c", "a.b", strings.Repeat(".", 5)} {
		_, err := m.Decode(raw, false)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestRefreshTokenShape(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	pair, err := m.Generate("42", "a@b.com", true)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)

	access, err := m.Decode(pair.AccessToken, true)
	require.NoError(t, err)
	refresh, err := m.Decode(pair.RefreshToken, true)
	require.NoError(t, err)

	assert.Equal(t, KindRefresh, refresh.Kind)
	assert.Empty(t, refresh.Email)
	assert.Equal(t, access.IssuedAt, refresh.IssuedAt)
	assert.Equal(t, access.ID, refresh.ID)
	assert.Equal(t, access.IssuedAtTime().Add(DefaultRefreshTTL).Unix(), refresh.ExpiresAt)

	clock.Advance(24 * time.Hour)
	_, err = m.Decode(pair.AccessToken, true)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = m.Decode(pair.RefreshToken, true)
	assert.NoError(t, err)
}

func payloadKeys(t *testing.T, token string) []string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestPayloadShapes(t *testing.T) {
	m := newTestManager(t, nil)

	pair, err := m.Generate("42", "", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"email", "exp", "iat", "iss", "jti", "sub"}, payloadKeys(t, pair.AccessToken))
	assert.Equal(t, []string{"exp", "iat", "iss", "jti", "sub"}, payloadKeys(t, pair.RefreshToken))

	claims, err := m.Decode(pair.AccessToken, true)
	require.NoError(t, err)
	assert.Empty(t, claims.Email)
}
