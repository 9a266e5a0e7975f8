package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ehp-platform/authcore"
)

// status flags are stored as single characters
const (
	flagOn  = "1"
	flagOff = "0"
)

// pq error code for unique_violation.
const uniqueViolation = "23505"

const selectColumns = `auth_cd_id, auth_tx_name, auth_tx_email, auth_tx_pwd,
	auth_st_active, auth_st_confirmed, auth_st_reset_password,
	auth_tx_reset_token, auth_dt_reset_token_expires,
	auth_tx_pending_email, auth_tx_email_change_token, auth_dt_email_change_token_expires,
	auth_nr_retry_count, auth_dt_last_login_attempt`

// Store is a PostgreSQL-backed authcore.PrincipalStore over the
// authentication table.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL using the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindByIdentifier matches the email case-insensitively, or the user name exactly.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*authcore.Principal, error) {
	return s.queryOne(ctx,
		`SELECT `+selectColumns+` FROM authentication
		WHERE lower(auth_tx_email) = lower($1) OR auth_tx_name = $1
		ORDER BY (lower(auth_tx_email) = lower($1)) DESC
		LIMIT 1`,
		identifier)
}

// FindByID looks a principal up by its numeric id.
func (s *Store) FindByID(ctx context.Context, id string) (*authcore.Principal, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, authcore.ErrPrincipalNotFound
	}
	return s.queryOne(ctx, `SELECT `+selectColumns+` FROM authentication WHERE auth_cd_id = $1`, n)
}

// FindByEmail matches the email case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Principal, error) {
	return s.queryOne(ctx,
		`SELECT `+selectColumns+` FROM authentication WHERE lower(auth_tx_email) = lower($1) LIMIT 1`,
		email)
}

// Update writes every mutable field of p. A unique violation on the email
// column is reported as authcore.ErrEmailInUse.
func (s *Store) Update(ctx context.Context, p *authcore.Principal) error {
	id, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		return authcore.ErrPrincipalNotFound
	}

	lastAttempt := p.LastLoginAttempt
	if lastAttempt.IsZero() {
		lastAttempt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE authentication SET
			auth_tx_email = $1,
			auth_tx_pwd = $2,
			auth_st_active = $3,
			auth_st_confirmed = $4,
			auth_st_reset_password = $5,
			auth_tx_reset_token = $6,
			auth_dt_reset_token_expires = $7,
			auth_tx_pending_email = $8,
			auth_tx_email_change_token = $9,
			auth_dt_email_change_token_expires = $10,
			auth_nr_retry_count = $11,
			auth_dt_last_login_attempt = $12
		WHERE auth_cd_id = $13`,
		p.Email,
		p.PasswordHash,
		flag(p.IsActive),
		flag(p.IsConfirmed),
		flag(p.ResetPending),
		nullString(p.ResetToken),
		nullTime(p.ResetTokenExpires),
		nullString(p.PendingEmail),
		nullString(p.EmailChangeToken),
		nullTime(p.EmailChangeTokenExpires),
		p.RetryCount,
		lastAttempt.UTC(),
		id,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return authcore.ErrEmailInUse
		}
		return fmt.Errorf("update principal %s: %w", p.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update principal %s: %w", p.ID, err)
	}
	if n == 0 {
		return authcore.ErrPrincipalNotFound
	}
	return nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...interface{}) (*authcore.Principal, error) {
	var (
		p                                       authcore.Principal
		id                                      int64
		active, confirmed, resetPending         string
		resetToken, pendingEmail, emailToken    sql.NullString
		resetExpires, emailExpires, lastAttempt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&id, &p.Username, &p.Email, &p.PasswordHash,
		&active, &confirmed, &resetPending,
		&resetToken, &resetExpires,
		&pendingEmail, &emailToken, &emailExpires,
		&p.RetryCount, &lastAttempt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query principal: %w", err)
	}

	p.ID = strconv.FormatInt(id, 10)
	p.IsActive = isOn(active)
	p.IsConfirmed = isOn(confirmed)
	p.ResetPending = isOn(resetPending)
	p.ResetToken = resetToken.String
	p.ResetTokenExpires = timePtr(resetExpires)
	p.PendingEmail = pendingEmail.String
	p.EmailChangeToken = emailToken.String
	p.EmailChangeTokenExpires = timePtr(emailExpires)
	if lastAttempt.Valid {
		p.LastLoginAttempt = lastAttempt.Time.UTC()
	}
	return &p, nil
}

func flag(b bool) string {
	if b {
		return flagOn
	}
	return flagOff
}

func isOn(v string) bool {
	return strings.TrimSpace(v) == flagOn
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// columns are timestamp without time zone and hold UTC
func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
