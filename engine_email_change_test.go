package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEmailChangeFlow(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	if err := f.engine.RequestEmailChange(ctx, "42", "alice@new.example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	msg := f.notifier.last(t)
	if msg.Kind != NotifyEmailChange || msg.To != "alice@new.example.com" {
		t.Fatalf("notification must go to the new address: %+v", msg)
	}
	if p := f.store.get("42"); p.Email != "alice@example.com" || p.PendingEmail != "alice@new.example.com" {
		t.Fatalf("email must not change before confirmation: %+v", p)
	}

	f.clock.Advance(10 * time.Minute)
	if err := f.engine.ConfirmEmailChange(ctx, "42", msg.Token); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	p := f.store.get("42")
	if p.Email != "alice@new.example.com" || p.PendingEmail != "" || p.EmailChangeToken != "" || p.EmailChangeTokenExpires != nil {
		t.Fatalf("email change not applied cleanly: %+v", p)
	}
	if _, err := f.engine.Login(ctx, "alice@new.example.com", testPassword); err != nil {
		t.Fatalf("login with new email: %v", err)
	}
}

func TestEmailChangeRejections(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	f.store.put(&Principal{ID: "7", Username: "bob", Email: "bob@example.com", IsActive: true})

	if err := f.engine.RequestEmailChange(ctx, "42", "Alice@Example.com"); !errors.Is(err, ErrEmailUnchanged) {
		t.Fatalf("expected ErrEmailUnchanged, got %v", err)
	}
	if err := f.engine.RequestEmailChange(ctx, "42", "bob@example.com"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if err := f.engine.RequestEmailChange(ctx, "42", "  "); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if err := f.engine.RequestEmailChange(ctx, "missing", "x@example.com"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if err := f.engine.ConfirmEmailChange(ctx, "42", "anything"); !errors.Is(err, ErrNoPendingEmailChange) {
		t.Fatalf("expected ErrNoPendingEmailChange, got %v", err)
	}
}

func TestEmailChangeWrongAndExpiredToken(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	if err := f.engine.RequestEmailChange(ctx, "42", "alice@new.example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := f.notifier.last(t).Token

	if err := f.engine.ConfirmEmailChange(ctx, "42", "wrong"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if f.store.get("42").PendingEmail == "" {
		t.Fatal("a wrong token must keep the pending change")
	}

	f.clock.Advance(31 * time.Minute)
	if err := f.engine.ConfirmEmailChange(ctx, "42", token); !errors.Is(err, ErrResetTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	p := f.store.get("42")
	if p.Email != "alice@example.com" || p.PendingEmail != "" || p.EmailChangeToken != "" {
		t.Fatalf("expired change not cleared: %+v", p)
	}
}

func TestEmailChangeRollsBackOnNotifierFailure(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.notifier.fail = errors.New("smtp down")

	err := f.engine.RequestEmailChange(context.Background(), "42", "alice@new.example.com")
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	p := f.store.get("42")
	if p.PendingEmail != "" || p.EmailChangeToken != "" || p.EmailChangeTokenExpires != nil {
		t.Fatalf("pending change survived a failed notification: %+v", p)
	}
}

func TestEmailChangeWithoutNotifierRollsBack(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.engine.notifier = nil

	if err := f.engine.RequestEmailChange(context.Background(), "42", "alice@new.example.com"); !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if f.store.get("42").PendingEmail != "" {
		t.Fatal("pending change stored without delivery")
	}
}
