package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/ehp-platform/authcore/internal/audit"
	"github.com/ehp-platform/authcore/jwt"
	"github.com/rs/zerolog"
)

// Principal is the authentication record of a user as seen by the engine.
// It is owned by the caller's persistence layer and exchanged through [PrincipalStore].
type Principal struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsConfirmed  bool

	RetryCount       int
	LastLoginAttempt time.Time

	ResetPending      bool
	ResetToken        string
	ResetTokenExpires *time.Time

	PendingEmail            string
	EmailChangeToken        string
	EmailChangeTokenExpires *time.Time
}

// Clone returns a deep copy of p.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	c.ResetTokenExpires = cloneTime(p.ResetTokenExpires)
	c.EmailChangeTokenExpires = cloneTime(p.EmailChangeTokenExpires)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PrincipalStore is the persistence contract consumed by the engine.
//
// Find methods return ErrPrincipalNotFound when nothing matches. Update persists
// every mutable field of p.
type PrincipalStore interface {
	// FindByIdentifier looks up by email first, then by username.
	FindByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	Update(ctx context.Context, p *Principal) error
}

// NotificationKind names the flow that produced a [Notification].
type NotificationKind string

const (
	NotifyPasswordReset NotificationKind = "password_reset"
	NotifyEmailChange   NotificationKind = "email_change"
)

// Notification asks the caller's transport to deliver a reset token.
type Notification struct {
	Kind        NotificationKind
	PrincipalID string
	To          string
	Token       string
	ExpiresAt   time.Time
}

// Notifier delivers notifications. A returned error rolls back the pending token.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// AuthResult is the principal context of a validated request.
type AuthResult struct {
	PrincipalID string
	Email       string
	SessionID   string
	ExpiresAt   time.Time
	Claims      *jwt.Claims
}

// SessionInfo describes one live session of a principal.
type SessionInfo struct {
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HealthStatus is a point-in-time view of backend availability.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
	AuditDropped   uint64
}

// AuditEvent is an audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink writes audit events through zerolog.
type LoggerSink = internalaudit.LoggerSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}
