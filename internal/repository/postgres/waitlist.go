// Package postgres implements the waitlist ledger against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/waitlist-service/internal/domain"
)

// ErrDuplicateEmail is returned when an insert hits the unique constraint on
// email. Callers treat this as an authoritative duplicate, never as a server
// error.
var ErrDuplicateEmail = errors.New("waitlist: email already exists")

// ErrNotFound is returned when a lookup matches no entry.
var ErrNotFound = errors.New("waitlist: entry not found")

const uniqueViolation = "23505" // PostgreSQL error code for unique_violation

// WaitlistRepo provides typed read/insert/update access to the waitlist
// ledger.
type WaitlistRepo struct{ db *sql.DB }

// NewWaitlistRepo creates a Postgres-backed waitlist repository.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

const entryColumns = `id, email, source, utm_source, utm_medium, utm_campaign,
	newsletter_status, email_status, email_message_id, sent_from_domain,
	last_sync_attempt_at, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := row.Scan(
		&e.ID, &e.Email,
		&e.Attribution.Source, &e.Attribution.UTMSource,
		&e.Attribution.UTMMedium, &e.Attribution.UTMCampaign,
		&e.NewsletterStatus, &e.EmailStatus,
		&e.EmailMessageID, &e.SentFromDomain,
		&e.LastSyncAttemptAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByEmail looks up an entry by normalized email.
// Returns ErrNotFound if no entry exists.
func (r *WaitlistRepo) FindByEmail(ctx context.Context, email string) (*domain.WaitlistEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM waitlist_entries WHERE email = $1`,
		domain.NormalizeEmail(email),
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return e, nil
}

// Insert writes a new entry. The email must already be normalized.
// A unique-constraint violation is surfaced as ErrDuplicateEmail so the
// coordinator can classify the final race window correctly.
func (r *WaitlistRepo) Insert(ctx context.Context, e *domain.WaitlistEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO waitlist_entries (id, email, source, utm_source, utm_medium, utm_campaign,
			newsletter_status, email_status, email_message_id, sent_from_domain,
			last_sync_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.Email,
		e.Attribution.Source, e.Attribution.UTMSource,
		e.Attribution.UTMMedium, e.Attribution.UTMCampaign,
		e.NewsletterStatus, e.EmailStatus,
		e.EmailMessageID, e.SentFromDomain,
		e.LastSyncAttemptAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

// UpdateSyncStatus records the outcome of a reconciliation attempt for one
// entry. The row is persisted before the job moves to the next entry, which
// is what makes aborting a run safe.
func (r *WaitlistRepo) UpdateSyncStatus(ctx context.Context, email string, status domain.NewsletterStatus, attemptedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE waitlist_entries
		SET newsletter_status = $2, last_sync_attempt_at = $3, updated_at = NOW()
		WHERE email = $1
	`, domain.NormalizeEmail(email), status, attemptedAt)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDrifted returns entries whose welcome email was sent but whose
// newsletter registration is not recorded as successful, skipping entries
// attempted within the cooldown window. Ordered oldest first so repeated
// runs make forward progress.
func (r *WaitlistRepo) FindDrifted(ctx context.Context, limit int, cooldown time.Duration) ([]*domain.WaitlistEntry, error) {
	cutoff := time.Now().UTC().Add(-cooldown)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE email_status = 'sent'
		  AND newsletter_status NOT IN ('subscribed', 'already_subscribed')
		  AND (last_sync_attempt_at IS NULL OR last_sync_attempt_at < $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("find drifted entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drifted entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats summarizes the ledger for the get-stats admin action.
type Stats struct {
	Total        int            `json:"total"`
	ByNewsletter map[string]int `json:"by_newsletter_status"`
	ByEmail      map[string]int `json:"by_email_status"`
	Drifted      int            `json:"drifted"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
}

// GetStats returns ledger counts grouped by status plus the drifted count.
func (r *WaitlistRepo) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByNewsletter: make(map[string]int),
		ByEmail:      make(map[string]int),
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT newsletter_status, email_status, COUNT(*)
		FROM waitlist_entries
		GROUP BY newsletter_status, email_status
	`)
	if err != nil {
		return nil, fmt.Errorf("waitlist stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ns, es string
		var n int
		if err := rows.Scan(&ns, &es, &n); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total += n
		stats.ByNewsletter[ns] += n
		stats.ByEmail[es] += n
		if es == string(domain.EmailSent) &&
			ns != string(domain.NewsletterSubscribed) &&
			ns != string(domain.NewsletterAlreadySubscribed) {
			stats.Drifted += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(last_sync_attempt_at) FROM waitlist_entries`,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("waitlist last sync: %w", err)
	}
	if last.Valid {
		stats.LastSyncedAt = &last.Time
	}
	return stats, nil
}

// Ping verifies database connectivity for the health endpoint.
func (r *WaitlistRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
