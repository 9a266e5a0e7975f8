package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ehp-platform/authcore/password"
	"github.com/ehp-platform/authcore/secret"
)

const testPassword = "correct-password-123"

type memoryPrincipalStore struct {
	mu         sync.Mutex
	byID       map[string]*Principal
	updates    int
	failUpdate error
}

func newMemoryPrincipalStore() *memoryPrincipalStore {
	return &memoryPrincipalStore{byID: map[string]*Principal{}}
}

func (s *memoryPrincipalStore) put(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p.Clone()
}

func (s *memoryPrincipalStore) get(id string) *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id].Clone()
}

func (s *memoryPrincipalStore) FindByIdentifier(_ context.Context, identifier string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if strings.EqualFold(p.Email, identifier) {
			return p.Clone(), nil
		}
	}
	for _, p := range s.byID {
		if p.Username == identifier {
			return p.Clone(), nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (s *memoryPrincipalStore) FindByID(_ context.Context, id string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

func (s *memoryPrincipalStore) FindByEmail(_ context.Context, email string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if strings.EqualFold(p.Email, email) {
			return p.Clone(), nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (s *memoryPrincipalStore) Update(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	if _, ok := s.byID[p.ID]; !ok {
		return ErrPrincipalNotFound
	}
	s.updates++
	s.byID[p.ID] = p.Clone()
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	fail error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no notification sent")
	}
	return n.sent[len(n.sent)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineFixture struct {
	engine   *Engine
	store    *memoryPrincipalStore
	notifier *recordingNotifier
	clock    *testClock
	mr       *miniredis.Miniredis
	hasher   *password.Chain
	sink     *ChannelSink
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Issuer = "ehp"
	cfg.Session.Timeout = time.Hour
	cfg.Secret.Name = ""
	cfg.Secret.Fallback = "engine-test-secret"
	cfg.Lockout.MaxRetries = 3
	cfg.Lockout.Window = time.Minute
	cfg.Reset.EnableRequestThrottle = false
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newEngineFixture(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	argon, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}
	hasher := password.NewChain(argon)
	hasher.Bcrypt = password.NewBcrypt(4)

	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	store := newMemoryPrincipalStore()
	store.put(&Principal{
		ID:           "42",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		IsActive:     true,
		IsConfirmed:  true,
	})

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	sink := NewChannelSink(256)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithNotifier(notifier).
		WithPasswordHasher(hasher).
		WithSecretProvider(secret.ProviderFunc(func(context.Context, string) (string, error) {
			return "", errors.New("secrets manager unreachable")
		})).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{
		engine:   engine,
		store:    store,
		notifier: notifier,
		clock:    clock,
		mr:       mr,
		hasher:   hasher,
		sink:     sink,
	}
}
