package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehp-platform/authcore/jwt"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type managerFixture struct {
	manager *Manager
	codec   *jwt.Manager
	mr      *miniredis.Miniredis
	clock   *testClock
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	store, mr := newSessionStoreTest(t)
	clock := &testClock{now: time.Now()}

	codec, err := jwt.NewManager(jwt.Config{
		Secret:    []byte("session-test-secret"),
		Issuer:    "ehp",
		AccessTTL: time.Hour,
		Now:       clock.Now,
	})
	require.NoError(t, err)

	m, err := NewManager(codec, store, ManagerConfig{
		SessionTimeout: time.Hour,
		StoreTimeout:   time.Second,
		RevocationTTL:  24 * time.Hour,
		Now:            clock.Now,
	}, zerolog.Nop())
	require.NoError(t, err)
	return &managerFixture{manager: m, codec: codec, mr: mr, clock: clock}
}

// tick moves the token clock forward so consecutive sessions get distinct jtis.
func (f *managerFixture) tick() {
	f.clock.now = f.clock.now.Add(time.Millisecond)
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	codec, err := jwt.NewManager(jwt.Config{Secret: []byte("s"), Issuer: "ehp", AccessTTL: time.Minute})
	require.NoError(t, err)

	_, err = NewManager(codec, store, ManagerConfig{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewManager(codec, nil, ManagerConfig{SessionTimeout: time.Minute}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewManager(codec, store, ManagerConfig{SessionTimeout: time.Minute, RevocationTTL: -time.Second}, zerolog.Nop())
	assert.Error(t, err)

	m, err := NewManager(codec, store, ManagerConfig{SessionTimeout: time.Minute}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, jwt.DefaultRefreshTTL, m.config.RevocationTTL)
}

func TestCreateThenGetSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)

	rec, err := f.manager.GetSession(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.AccessToken, rec.SessionToken)

	claims, err := f.codec.Decode(pair.AccessToken, true)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, rec.SessionID)
	assert.Equal(t, pair.AccessToken, f.mr.HGet("as:u:42", claims.ID))
	assert.Equal(t, time.Hour, f.mr.TTL("as:"+claims.ID))
}

func TestCreateSessionWithRefreshTracksOnlyAccess(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)

	index, err := f.manager.Store().Index(ctx, "42")
	require.NoError(t, err)
	require.Len(t, index, 1)
	for _, token := range index {
		assert.Equal(t, pair.AccessToken, token)
	}

	_, _, err = f.manager.Validate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrNotAccessToken)
}

func TestGetSessionIgnoresTokenExpiry(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(2 * time.Hour)

	rec, err := f.manager.GetSession(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.AccessToken, rec.SessionToken)

	_, _, err = f.manager.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrExpired)
}

func TestGetSessionSlidesTTL(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)
	claims, err := f.codec.Decode(pair.AccessToken, false)
	require.NoError(t, err)

	f.mr.FastForward(45 * time.Minute)
	_, err = f.manager.GetSession(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, f.mr.TTL("as:"+claims.ID))
}

func TestRemoveSessionFromToken(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)

	claims, err := f.manager.RemoveSessionFromToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)

	_, err = f.manager.GetSession(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, f.mr.Exists("as:u:42"))
}

func TestRemoveSessionFromTokenRejectsRefreshToken(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)

	_, err = f.manager.RemoveSessionFromToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrNotAccessToken)

	_, err = f.manager.GetSession(ctx, pair.AccessToken)
	assert.NoError(t, err)
}

func TestCheckRefresh(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)

	claims, err := f.manager.CheckRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)

	_, err = f.manager.CheckRefresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrNotRefreshToken)

	// the access session expiring on its own does not revoke the refresh token
	f.mr.FastForward(2 * time.Hour)
	_, err = f.manager.CheckRefresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestCheckRefreshAfterRemoveSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)
	f.tick()
	other, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)

	_, err = f.manager.RemoveSessionFromToken(ctx, pair.AccessToken)
	require.NoError(t, err)

	_, err = f.manager.CheckRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)
	_, err = f.manager.CheckRefresh(ctx, other.RefreshToken)
	assert.NoError(t, err)
}

func TestCheckRefreshAfterWipe(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	before, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)

	_, err = f.manager.WipeSessions(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, f.mr.TTL("as:rv:u:42"))

	_, err = f.manager.CheckRefresh(ctx, before.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	f.tick()
	after, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)
	_, err = f.manager.CheckRefresh(ctx, after.RefreshToken)
	assert.NoError(t, err)
}

func TestCheckRefreshFailsClosedOnStoreOutage(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", true)
	require.NoError(t, err)
	f.mr.Close()

	_, err = f.manager.CheckRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestCreateSessionPrunesExpiredIndexFields(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
		require.NoError(t, err)
		f.tick()
	}
	f.mr.FastForward(2 * time.Hour)

	_, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)

	index, err := f.manager.Store().Index(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, index, 1)
}

func TestRemoveSessionFromExpiredTokenFails(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)
	f.clock.now = f.clock.now.Add(2 * time.Hour)

	_, err = f.manager.RemoveSessionFromToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrExpired)
}

func TestValidateRejectsRevokedSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)

	claims, rec, err := f.manager.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, claims.ID, rec.SessionID)

	require.NoError(t, f.manager.RemoveSession(ctx, "42", claims.ID))
	_, _, err = f.manager.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestValidateFailsClosedOnStoreOutage(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)
	f.mr.Close()

	_, _, err = f.manager.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestWipeSessions(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	const n = 5
	tokens := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pair, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
		require.NoError(t, err)
		tokens = append(tokens, pair.AccessToken)
		f.tick()
	}
	other, err := f.manager.CreateSession(ctx, "7", "c@d.com", false)
	require.NoError(t, err)

	listed, err := f.manager.ListSessions(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, listed, n)

	deleted, err := f.manager.WipeSessions(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, n, deleted)

	for _, token := range tokens {
		_, err := f.manager.GetSession(ctx, token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	}
	index, err := f.manager.Store().Index(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, index)

	_, err = f.manager.GetSession(ctx, other.AccessToken)
	assert.NoError(t, err)
}

func TestListSessionsSkipsDanglingIndexEntries(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	first, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)
	f.tick()
	second, err := f.manager.CreateSession(ctx, "42", "a@b.com", false)
	require.NoError(t, err)

	firstClaims, err := f.codec.Decode(first.AccessToken, false)
	require.NoError(t, err)
	f.mr.Del("as:" + firstClaims.ID)

	_, err = f.manager.GetSession(ctx, first.AccessToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	listed, err := f.manager.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	secondClaims, err := f.codec.Decode(second.AccessToken, false)
	require.NoError(t, err)
	assert.Equal(t, secondClaims.ID, listed[0].SessionID)
	assert.Equal(t, secondClaims.ExpiresAt, listed[0].ExpiresAt)

	index, err := f.manager.Store().Index(ctx, "42")
	require.NoError(t, err)
	assert.NotContains(t, index, firstClaims.ID)
	assert.Len(t, index, 1)
}
