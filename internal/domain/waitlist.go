package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// NewsletterStatus enumerates the recorded outcome of registering an entry
// with the newsletter platform.
type NewsletterStatus string

const (
	NewsletterPending           NewsletterStatus = "pending"
	NewsletterSubscribed        NewsletterStatus = "subscribed"
	NewsletterAlreadySubscribed NewsletterStatus = "already_subscribed"
	NewsletterFailed            NewsletterStatus = "failed"
)

// Registered reports whether the platform accepted the subscription, either
// as a fresh signup or by recognizing the address as already on the list.
// Only registered entries are eligible for a welcome email.
func (s NewsletterStatus) Registered() bool {
	return s == NewsletterSubscribed || s == NewsletterAlreadySubscribed
}

// EmailStatus enumerates the recorded outcome of the welcome-email step.
type EmailStatus string

const (
	EmailNotAttempted EmailStatus = "not_attempted"
	EmailSent         EmailStatus = "sent"
	EmailSkipped      EmailStatus = "skipped"
	EmailFailed       EmailStatus = "failed"
)

// Sent reports whether the welcome email actually went out.
func (s EmailStatus) Sent() bool {
	return s == EmailSent
}

// Attribution carries campaign attribution captured at signup plus the
// per-backend statuses. This replaces the untyped JSON blob the old stack
// kept on each row; the enums make drift queries exact instead of
// string-sniffing blob contents.
type Attribution struct {
	Source      string `json:"source,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
}

// WaitlistEntry is the unit of record: one row per normalized email.
// The database UNIQUE constraint on Email is the authoritative duplicate
// detector; every in-memory check is an optimization on top of it.
type WaitlistEntry struct {
	ID                string           `json:"id" db:"id"`
	Email             string           `json:"email" db:"email"`
	Attribution       Attribution      `json:"attribution" db:"-"`
	NewsletterStatus  NewsletterStatus `json:"newsletter_status" db:"newsletter_status"`
	EmailStatus       EmailStatus      `json:"email_status" db:"email_status"`
	EmailMessageID    string           `json:"email_message_id,omitempty" db:"email_message_id"`
	SentFromDomain    string           `json:"sent_from_domain,omitempty" db:"sent_from_domain"`
	LastSyncAttemptAt *time.Time       `json:"last_sync_attempt_at,omitempty" db:"last_sync_attempt_at"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// Drifted reports whether this entry is in the state the reconciliation job
// repairs: welcome email went out but the newsletter registration is not
// recorded as successful.
func (e *WaitlistEntry) Drifted() bool {
	return e.EmailStatus == EmailSent && !e.NewsletterStatus.Registered()
}

// NormalizeEmail lowercases and trims an address. All lookups, inserts, and
// uniqueness checks operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes the address and rejects anything that is not a
// plausible bare email. Returns the normalized address.
func ValidateEmail(email string) (string, error) {
	norm := NormalizeEmail(email)
	if norm == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(norm)
	if err != nil || addr.Address != norm {
		return "", fmt.Errorf("invalid email address")
	}
	if !strings.Contains(strings.SplitN(norm, "@", 2)[1], ".") {
		return "", fmt.Errorf("invalid email domain")
	}
	return norm, nil
}
