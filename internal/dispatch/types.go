// Package dispatch sends transactional email through a ranked list of
// sending identities, falling through to the next identity on failure.
//
// Provider adapters are split into individual files:
//   - resend.go: Resend-style HTTP emails API
//   - ses.go:    AWS SES v2
package dispatch

import (
	"context"
	"time"

	"github.com/ignite/waitlist-service/internal/config"
)

// Message is one outbound transactional email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SendResult holds one provider attempt's outcome.
type SendResult struct {
	Success   bool
	MessageID string
	Provider  string
	Detail    string
	SentAt    time.Time
}

// Sender delivers a message from one sending identity. Implementations
// report delivery failure through SendResult, reserving the error return for
// unusable configuration (missing credentials, bad base URL).
type Sender interface {
	Send(ctx context.Context, from config.SendingIdentity, msg *Message) (*SendResult, error)
}

// DispatchResult reports which identity (if any) accepted the message and
// what happened at each identity tried before it.
type DispatchResult struct {
	Sent      bool
	Domain    string
	FromEmail string
	MessageID string
	Provider  string
	// Attempts lists every identity tried, in order, with its outcome.
	Attempts []IdentityAttempt
}

// IdentityAttempt is one entry in the fall-through trail.
type IdentityAttempt struct {
	Domain string
	Error  string
}
