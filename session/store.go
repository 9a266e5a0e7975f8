package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when Redis cannot be reached or a command fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound reports that no live record exists for a session id.
// It is a negative result, not a backend failure.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a stored record cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

// Store is a Redis-backed session store using a GET/SET/EXPIRE/DEL and
// HSET/HDEL/HGETALL command subset.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; an empty prefix defaults to "as".
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) indexKey(principalID string) string {
	return s.prefix + ":u:" + principalID
}

func (s *Store) revokedKey(sessionID string) string {
	return s.prefix + ":rv:" + sessionID
}

func (s *Store) cutoffKey(principalID string) string {
	return s.prefix + ":rv:u:" + principalID
}

// Save writes rec with ttl and adds it to the principal's index.
//
//	Performance: 1 pipelined round trip (SET EX + HSET).
func (s *Store) Save(ctx context.Context, principalID string, rec *Record, ttl time.Duration) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.SessionID), data, ttl)
		pipe.HSet(ctx, s.indexKey(principalID), rec.SessionID, rec.SessionToken)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches a record and, when ttl is positive, pushes its expiry out to ttl.
//
//	Performance: 1 GET, plus 1 EXPIRE on hit.
func (s *Store) Get(ctx context.Context, sessionID string, ttl time.Duration) (*Record, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}

	if ttl > 0 {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return rec, nil
}

// Delete removes the record and its index field. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, principalID, sessionID string) error {
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.HDel(ctx, s.indexKey(principalID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Index returns the principal's session index as session id -> access token.
func (s *Store) Index(ctx context.Context, principalID string) (map[string]string, error) {
	entries, err := s.redis.HGetAll(ctx, s.indexKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return entries, nil
}

// Existing reports which of sessionIDs still have a live record.
func (s *Store) Existing(ctx context.Context, sessionIDs []string) (map[string]bool, error) {
	alive := make(map[string]bool, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return alive, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Exists(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for i, cmd := range cmds {
		alive[sessionIDs[i]] = cmd.Val() == 1
	}
	return alive, nil
}

// Prune removes index fields whose record no longer exists and returns how
// many were dropped. Records expire by TTL without touching the index.
func (s *Store) Prune(ctx context.Context, principalID string) (int, error) {
	entries, err := s.Index(ctx, principalID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(entries))
	for sid := range entries {
		ids = append(ids, sid)
	}
	alive, err := s.Existing(ctx, ids)
	if err != nil {
		return 0, err
	}
	dead := make([]string, 0, len(ids))
	for _, sid := range ids {
		if !alive[sid] {
			dead = append(dead, sid)
		}
	}
	return len(dead), s.dropIndexFields(ctx, principalID, dead)
}

func (s *Store) dropIndexFields(ctx context.Context, principalID string, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	if err := s.redis.HDel(ctx, s.indexKey(principalID), sessionIDs...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Revoke marks sessionID as revoked for ttl. Tokens sharing the session's jti
// are rejected by [Store.Revoked] until the marker expires.
func (s *Store) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.revokedKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeIssuedBefore revokes every token of principalID issued at or before at.
func (s *Store) RevokeIssuedBefore(ctx context.Context, principalID string, at time.Time, ttl time.Duration) error {
	err := s.redis.Set(ctx, s.cutoffKey(principalID), strconv.FormatInt(at.UnixMicro(), 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Revoked reports whether a token with sessionID issued at issuedAt was
// revoked individually or by a principal-wide cutoff.
func (s *Store) Revoked(ctx context.Context, principalID, sessionID string, issuedAt time.Time) (bool, error) {
	pipe := s.redis.Pipeline()
	marker := pipe.Exists(ctx, s.revokedKey(sessionID))
	cutoff := pipe.Get(ctx, s.cutoffKey(principalID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if marker.Val() == 1 {
		return true, nil
	}

	micros, err := cutoff.Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return issuedAt.UnixMicro() <= micros, nil
}

// DeleteAll removes every session enumerated in the principal's index and then
// the index itself. It returns the number of records that were actually deleted.
//
// ATOMICITY NOTE: enumeration and deletion are separate round trips. A session
// saved in between survives the wipe and still expires on its own TTL.
func (s *Store) DeleteAll(ctx context.Context, principalID string) (int, error) {
	entries, err := s.Index(ctx, principalID)
	if err != nil {
		return 0, err
	}

	pipe := s.redis.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(entries))
	for sid := range entries {
		cmds[sid] = pipe.Del(ctx, s.key(sid))
	}
	indexCmd := pipe.Del(ctx, s.indexKey(principalID))
	// Exec reports only the first failure; the per-command loop below collects the rest.
	_, _ = pipe.Exec(ctx)

	var (
		result  *multierror.Error
		deleted int
	)
	for sid, cmd := range cmds {
		n, err := cmd.Result()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("delete session %s: %w", sid, err))
			continue
		}
		deleted += int(n)
	}
	if err := indexCmd.Err(); err != nil {
		result = multierror.Append(result, fmt.Errorf("delete index: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return deleted, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
