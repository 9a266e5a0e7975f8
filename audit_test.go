package authcore

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func collectEvents(sink *ChannelSink, max int, wait time.Duration) []AuditEvent {
	events := make([]AuditEvent, 0, max)
	timeout := time.After(wait)
	for len(events) < max {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	f := newEngineFixture(t, func(c *Config) { c.Audit.Enabled = false })

	_, _ = f.engine.Login(context.Background(), "alice", "wrong-password")
	if evs := collectEvents(f.sink, 1, 50*time.Millisecond); len(evs) != 0 {
		t.Fatalf("expected no audit events when disabled, got %d", len(evs))
	}
}

func TestAuditLockoutSequence(t *testing.T) {
	f := newEngineFixture(t, func(c *Config) { c.Audit.Enabled = true })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = f.engine.Login(ctx, "alice", "wrong")
	}
	_, _ = f.engine.Login(ctx, "alice", testPassword)
	f.clock.Advance(2 * time.Minute)
	if _, err := f.engine.Login(ctx, "alice", testPassword); err != nil {
		t.Fatalf("login after window: %v", err)
	}

	got := make([]string, 0, 6)
	for _, ev := range collectEvents(f.sink, 6, 2*time.Second) {
		got = append(got, ev.Type)
	}
	want := []string{
		auditEventLoginFailure, auditEventLoginFailure, auditEventLoginFailure,
		auditEventLoginLocked, auditEventLockoutCleared, auditEventLoginSuccess,
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected event sequence\n got: %v\nwant: %v", got, want)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	f := newEngineFixture(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.DropIfFull = false
		c.Login.IssueRefreshOnLogin = true
	})
	ctx := context.Background()

	pair, err := f.engine.Login(ctx, "alice", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	f.clock.Advance(time.Millisecond)
	if _, err := f.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if err := f.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("reset request failed: %v", err)
	}

	needles := []string{
		testPassword,
		pair.AccessToken,
		pair.RefreshToken,
		f.store.get("42").PasswordHash,
		f.notifier.last(t).Token,
	}

	events := collectEvents(f.sink, 3, 2*time.Second)
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata: %q", needle)
				}
			}
		}
	}
}

func TestAuditCustomSinkDrainedOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testEngineConfig()
	cfg.Audit.Enabled = true

	sink := &countingSink{}
	store := newMemoryPrincipalStore()
	store.put(&Principal{ID: "42", Username: "alice", Email: "alice@example.com", IsActive: true})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithAuditSink(sink).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, _ = engine.Login(context.Background(), "alice", "wrong")
	_, _ = engine.Login(context.Background(), "", "")
	engine.Close()
	if got := sink.count.Load(); got != 2 {
		t.Fatalf("expected 2 events after close, got %d", got)
	}
}
