package domain

import (
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"User@Example.COM":  "user@example.com",
		"  a@x.com ":        "a@x.com",
		"\tA@X.Com\n":       "a@x.com",
		"already@lower.com": "already@lower.com",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@x.com", " User@Example.Com ", "first.last+tag@sub.domain.org"}
	for _, in := range valid {
		if _, err := ValidateEmail(in); err != nil {
			t.Errorf("ValidateEmail(%q) unexpected error: %v", in, err)
		}
	}

	invalid := []string{"", "   ", "not-an-email", "a@", "@x.com", "a@localhost", "a b@x.com"}
	for _, in := range invalid {
		if _, err := ValidateEmail(in); err == nil {
			t.Errorf("ValidateEmail(%q) expected error, got none", in)
		}
	}
}

func TestValidateEmailReturnsNormalized(t *testing.T) {
	got, err := ValidateEmail(" A@X.Com ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a@x.com" {
		t.Errorf("got %q, want %q", got, "a@x.com")
	}
}

func TestNewsletterStatusRegistered(t *testing.T) {
	if !NewsletterSubscribed.Registered() {
		t.Error("subscribed should count as registered")
	}
	if !NewsletterAlreadySubscribed.Registered() {
		t.Error("already_subscribed should count as registered")
	}
	if NewsletterPending.Registered() || NewsletterFailed.Registered() {
		t.Error("pending/failed must not count as registered")
	}
}

func TestDrifted(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name       string
		newsletter NewsletterStatus
		email      EmailStatus
		want       bool
	}{
		{"sent but failed registration", NewsletterFailed, EmailSent, true},
		{"sent but still pending", NewsletterPending, EmailSent, true},
		{"fully consistent", NewsletterSubscribed, EmailSent, false},
		{"duplicate on platform", NewsletterAlreadySubscribed, EmailSent, false},
		{"email never went out", NewsletterFailed, EmailFailed, false},
		{"nothing attempted", NewsletterPending, EmailNotAttempted, false},
	}
	for _, tc := range cases {
		e := &WaitlistEntry{
			Email:            "a@x.com",
			NewsletterStatus: tc.newsletter,
			EmailStatus:      tc.email,
			CreatedAt:        now,
		}
		if got := e.Drifted(); got != tc.want {
			t.Errorf("%s: Drifted() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
