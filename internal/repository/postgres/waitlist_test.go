package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ignite/waitlist-service/internal/domain"
)

func newMockRepo(t *testing.T) (*WaitlistRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWaitlistRepo(db), mock
}

var entryRows = []string{
	"id", "email", "source", "utm_source", "utm_medium", "utm_campaign",
	"newsletter_status", "email_status", "email_message_id", "sent_from_domain",
	"last_sync_attempt_at", "created_at", "updated_at",
}

func TestFindByEmailNormalizes(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM waitlist_entries WHERE email = \$1`).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(entryRows).AddRow(
			"id-1", "user@example.com", "landing", "", "", "",
			"subscribed", "sent", "msg-1", "mail.example.com",
			nil, now, now,
		))

	e, err := repo.FindByEmail(context.Background(), " User@Example.COM ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Email != "user@example.com" || e.NewsletterStatus != domain.NewsletterSubscribed {
		t.Errorf("unexpected entry: %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM waitlist_entries WHERE email = \$1`).
		WithArgs("nobody@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "nobody@x.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertUniqueViolationIsDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO waitlist_entries`).
		WillReturnError(&pq.Error{Code: pq.ErrorCode(uniqueViolation)})

	err := repo.Insert(context.Background(), &domain.WaitlistEntry{
		Email:            "dup@x.com",
		NewsletterStatus: domain.NewsletterSubscribed,
		EmailStatus:      domain.EmailSent,
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestInsertAssignsIDAndTimestamps(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO waitlist_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &domain.WaitlistEntry{
		Email:            "a@x.com",
		NewsletterStatus: domain.NewsletterSubscribed,
		EmailStatus:      domain.EmailSent,
	}
	if err := repo.Insert(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" {
		t.Error("ID was not assigned")
	}
	if e.CreatedAt.IsZero() || e.UpdatedAt.IsZero() {
		t.Error("timestamps were not assigned")
	}
}

func TestUpdateSyncStatusNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE waitlist_entries`).
		WithArgs("ghost@x.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateSyncStatus(context.Background(), "Ghost@X.com", domain.NewsletterSubscribed, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindDrifted(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE email_status = 'sent'`).
		WillReturnRows(sqlmock.NewRows(entryRows).
			AddRow("id-1", "a@x.com", "", "", "", "", "failed", "sent", "", "", nil, now, now).
			AddRow("id-2", "b@x.com", "", "", "", "", "pending", "sent", "", "", nil, now, now))

	entries, err := repo.FindDrifted(context.Background(), 10, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if !e.Drifted() {
			t.Errorf("entry %s is not drifted: %+v", e.Email, e)
		}
	}
}

func TestGetStats(t *testing.T) {
	repo, mock := newMockRepo(t)
	last := time.Now()

	mock.ExpectQuery(`GROUP BY newsletter_status, email_status`).
		WillReturnRows(sqlmock.NewRows([]string{"newsletter_status", "email_status", "count"}).
			AddRow("subscribed", "sent", 7).
			AddRow("failed", "sent", 2).
			AddRow("already_subscribed", "skipped", 1))
	mock.ExpectQuery(`SELECT MAX\(last_sync_attempt_at\)`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(last))

	stats, err := repo.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 10 {
		t.Errorf("total = %d, want 10", stats.Total)
	}
	if stats.Drifted != 2 {
		t.Errorf("drifted = %d, want 2", stats.Drifted)
	}
	if stats.ByNewsletter["subscribed"] != 7 {
		t.Errorf("by_newsletter = %v", stats.ByNewsletter)
	}
	if stats.LastSyncedAt == nil {
		t.Error("last synced at missing")
	}
}
