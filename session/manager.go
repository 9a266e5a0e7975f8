package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehp-platform/authcore/jwt"
)

var (
	// ErrNotAccessToken is returned when a refresh token is presented where an
	// access token is required.
	ErrNotAccessToken = errors.New("not an access token")
	// ErrNotRefreshToken is the converse of ErrNotAccessToken.
	ErrNotRefreshToken = errors.New("not a refresh token")
	// ErrSessionRevoked reports a refresh token whose session was logged out.
	ErrSessionRevoked = errors.New("session revoked")
)

// Codec is the subset of the token codec the session manager depends on.
type Codec interface {
	Generate(subject, email string, includeRefresh bool) (*jwt.TokenPair, error)
	Decode(token string, verifyExpiry bool) (*jwt.Claims, error)
}

// ManagerConfig controls session lifetimes.
type ManagerConfig struct {
	// SessionTimeout is the record TTL, refreshed on every successful lookup.
	SessionTimeout time.Duration
	// StoreTimeout bounds every individual store call. Zero disables the bound.
	StoreTimeout time.Duration
	// RevocationTTL is how long revocation markers are kept. It must cover the
	// refresh token lifetime; zero means jwt.DefaultRefreshTTL.
	RevocationTTL time.Duration

	// Now overrides the clock used for revocation cutoffs. Nil means time.Now.
	Now func() time.Time
}

// Manager composes a [Codec] and a [Store] into revocable sessions.
type Manager struct {
	codec  Codec
	store  *Store
	config ManagerConfig
	logger zerolog.Logger
}

// NewManager returns a Manager. A non-positive SessionTimeout is rejected.
func NewManager(codec Codec, store *Store, cfg ManagerConfig, logger zerolog.Logger) (*Manager, error) {
	if codec == nil || store == nil {
		return nil, errors.New("session manager requires codec and store")
	}
	if cfg.SessionTimeout <= 0 {
		return nil, errors.New("invalid session timeout configuration")
	}
	if cfg.StoreTimeout < 0 {
		return nil, errors.New("invalid store timeout configuration")
	}
	if cfg.RevocationTTL == 0 {
		cfg.RevocationTTL = jwt.DefaultRefreshTTL
	}
	if cfg.RevocationTTL < 0 {
		return nil, errors.New("invalid revocation TTL configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		codec:  codec,
		store:  store,
		config: cfg,
		logger: logger.With().Str("component", "session").Logger(),
	}, nil
}

// Store exposes the underlying session store.
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.StoreTimeout)
}

// CreateSession mints a token pair and records a session keyed by the access
// token's jti. The refresh token, when requested, is not tracked in the store.
func (m *Manager) CreateSession(ctx context.Context, principalID, email string, includeRefresh bool) (*jwt.TokenPair, error) {
	pair, err := m.codec.Generate(principalID, email, includeRefresh)
	if err != nil {
		return nil, err
	}
	claims, err := m.codec.Decode(pair.AccessToken, false)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		SessionID:    claims.ID,
		SessionToken: pair.AccessToken,
		Metadata:     map[string]interface{}{},
	}

	sctx, cancel := m.bound(ctx)
	defer cancel()
	if err := m.store.Save(sctx, principalID, rec, m.config.SessionTimeout); err != nil {
		return nil, err
	}

	m.logger.Debug().Str("principal_id", principalID).Str("session_id", rec.SessionID).Msg("session created")

	if n, err := m.store.Prune(sctx, principalID); err != nil {
		m.logger.Warn().Err(err).Str("principal_id", principalID).Msg("session index prune failed")
	} else if n > 0 {
		m.logger.Debug().Str("principal_id", principalID).Int("pruned", n).Msg("session index pruned")
	}
	return pair, nil
}

// GetSession resolves the record for token without enforcing the token's own
// expiry; store existence decides liveness. A hit slides the record TTL.
//
// GetSession returns ErrSessionNotFound when no record exists.
func (m *Manager) GetSession(ctx context.Context, token string) (*Record, error) {
	claims, err := m.codec.Decode(token, false)
	if err != nil {
		return nil, err
	}
	return m.lookup(ctx, claims.ID)
}

func (m *Manager) lookup(ctx context.Context, sessionID string) (*Record, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	return m.store.Get(sctx, sessionID, m.config.SessionTimeout)
}

// Validate applies the validity predicate: the token must be an unexpired
// access token AND its session record must exist. Store failures are returned
// as errors, so callers fail closed.
func (m *Manager) Validate(ctx context.Context, token string) (*jwt.Claims, *Record, error) {
	claims, err := m.codec.Decode(token, true)
	if err != nil {
		return nil, nil, err
	}
	if claims.Kind != jwt.KindAccess {
		return nil, nil, ErrNotAccessToken
	}

	rec, err := m.lookup(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	return claims, rec, nil
}

// CheckRefresh decodes an unexpired refresh token and rejects it when its
// session was removed or its principal's sessions were wiped after issue.
func (m *Manager) CheckRefresh(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := m.codec.Decode(token, true)
	if err != nil {
		return nil, err
	}
	if claims.Kind != jwt.KindRefresh {
		return nil, ErrNotRefreshToken
	}

	sctx, cancel := m.bound(ctx)
	defer cancel()
	revoked, err := m.store.Revoked(sctx, claims.Subject, claims.ID, claims.IssuedAtTime())
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

// RemoveSession deletes one session and its index entry, and revokes refresh
// tokens minted alongside it.
func (m *Manager) RemoveSession(ctx context.Context, principalID, sessionID string) error {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	if err := m.store.Revoke(sctx, sessionID, m.config.RevocationTTL); err != nil {
		return err
	}
	if err := m.store.Delete(sctx, principalID, sessionID); err != nil {
		return err
	}
	m.logger.Debug().Str("principal_id", principalID).Str("session_id", sessionID).Msg("session removed")
	return nil
}

// RemoveSessionFromToken decodes an unexpired access token and removes the
// session it names. It returns the decoded claims.
func (m *Manager) RemoveSessionFromToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := m.codec.Decode(token, true)
	if err != nil {
		return nil, err
	}
	if claims.Kind != jwt.KindAccess {
		return nil, ErrNotAccessToken
	}
	if err := m.RemoveSession(ctx, claims.Subject, claims.ID); err != nil {
		return nil, err
	}
	return claims, nil
}

// WipeSessions removes every indexed session of principalID and the index
// itself. Refresh tokens issued up to now are revoked first.
func (m *Manager) WipeSessions(ctx context.Context, principalID string) (int, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()

	if err := m.store.RevokeIssuedBefore(sctx, principalID, m.config.Now(), m.config.RevocationTTL); err != nil {
		m.logger.Warn().Err(err).Str("principal_id", principalID).Msg("session wipe aborted")
		return 0, err
	}
	n, err := m.store.DeleteAll(sctx, principalID)
	if err != nil {
		m.logger.Warn().Err(err).Str("principal_id", principalID).Int("deleted", n).Msg("session wipe incomplete")
		return n, err
	}
	m.logger.Info().Str("principal_id", principalID).Int("deleted", n).Msg("sessions wiped")
	return n, nil
}

// ListSessions returns the principal's live sessions ordered by issue time.
// Index entries whose record is gone are dropped from the index; entries whose
// token no longer decodes are skipped.
func (m *Manager) ListSessions(ctx context.Context, principalID string) ([]Info, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()

	entries, err := m.store.Index(sctx, principalID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for sid := range entries {
		ids = append(ids, sid)
	}
	alive, err := m.store.Existing(sctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Info, 0, len(ids))
	dead := make([]string, 0)
	for _, sid := range ids {
		if !alive[sid] {
			dead = append(dead, sid)
			continue
		}
		claims, err := m.codec.Decode(entries[sid], false)
		if err != nil {
			m.logger.Debug().Err(err).Str("session_id", sid).Msg("skipping undecodable index entry")
			continue
		}
		out = append(out, Info{
			SessionID:   sid,
			PrincipalID: principalID,
			IssuedAt:    claims.IssuedAtTime().Unix(),
			ExpiresAt:   claims.ExpiresAt,
		})
	}
	if err := m.store.dropIndexFields(sctx, principalID, dead); err != nil {
		m.logger.Warn().Err(err).Str("principal_id", principalID).Msg("session index prune failed")
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt == out[j].IssuedAt {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].IssuedAt < out[j].IssuedAt
	})
	return out, nil
}

// Ping reports store availability and latency.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	d, err := m.store.Ping(sctx)
	if err != nil {
		return d, fmt.Errorf("session store ping: %w", err)
	}
	return d, nil
}
