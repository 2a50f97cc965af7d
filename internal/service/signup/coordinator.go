// Package signup orchestrates a waitlist registration across the three
// independently-failing backends: the Postgres ledger, the Beehiiv
// newsletter platform, and the transactional email dispatcher.
//
// Duplicate detection is a three-tier protocol, checked in cost order:
//
//	tier 1: ledger pre-check, before any external call
//	tier 2: race re-check, after the newsletter call but before email/insert
//	tier 3: the ledger's unique constraint at insert time
//
// No tier except the last is trusted alone: tiers 1 and 2 only narrow the
// race window, the constraint closes it. None of the three backends can be
// locked together, so there is no rollback either; a partial success is
// recorded as-is and the reconciliation job repairs drift later.
package signup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/waitlist-service/internal/beehiiv"
	"github.com/ignite/waitlist-service/internal/dispatch"
	"github.com/ignite/waitlist-service/internal/domain"
	"github.com/ignite/waitlist-service/internal/pkg/logger"
	"github.com/ignite/waitlist-service/internal/repository/postgres"
	"github.com/ignite/waitlist-service/internal/template"
)

// ErrInvalidEmail is returned before any backend is touched.
var ErrInvalidEmail = errors.New("signup: invalid email")

// Ledger is the slice of the waitlist repository the coordinator needs.
type Ledger interface {
	FindByEmail(ctx context.Context, email string) (*domain.WaitlistEntry, error)
	Insert(ctx context.Context, e *domain.WaitlistEntry) error
}

// Newsletter registers an address with the newsletter platform.
type Newsletter interface {
	Subscribe(ctx context.Context, req beehiiv.SubscribeRequest) (*beehiiv.Result, error)
}

// EmailSender delivers the welcome email through ranked sending identities.
type EmailSender interface {
	Send(ctx context.Context, msg *dispatch.Message, preferredDomain string) (*dispatch.DispatchResult, error)
}

// Request is one raw signup.
type Request struct {
	Email       string
	Source      string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

// Outcome classifies the overall result of a signup.
type Outcome int

const (
	// Accepted: at least one backend succeeded and no duplicate was found.
	Accepted Outcome = iota
	// Duplicate: the address is already on the waitlist, detected at any tier.
	Duplicate
	// Failed: all three backends failed. The only server-error outcome.
	Failed
)

// Result carries the per-backend detail a caller needs to build a response.
type Result struct {
	Outcome Outcome

	NewsletterStatus domain.NewsletterStatus
	EmailStatus      domain.EmailStatus
	DBSuccess        bool

	// Which tier detected the duplicate (both false for tier 3: the
	// constraint is the ledger, so DatabaseDuplicate is set there too).
	DatabaseDuplicate bool
	// BeehiivDuplicate is set when the platform reported the address as
	// already subscribed while our ledger had no entry. From this system's
	// perspective that is a fresh signup, not a Duplicate outcome.
	BeehiivDuplicate bool

	Domain    string
	FromEmail string
	MessageID string
	Detail    string
}

// Config holds the coordinator's own knobs. WelcomeHTML and WelcomeText are
// Liquid templates; the variables "email", "source" and "domain" (the site
// the signup came from) are available in both.
type Config struct {
	WelcomeSubject string
	WelcomeHTML    string
	WelcomeText    string
}

// Coordinator sequences the signup steps. The ordering is load-bearing: it
// minimizes duplicate external side effects, see the package comment.
type Coordinator struct {
	ledger     Ledger
	newsletter Newsletter
	email      EmailSender
	tpl        *template.Engine
	cfg        Config
}

// NewCoordinator wires the three backends together.
func NewCoordinator(ledger Ledger, newsletter Newsletter, email EmailSender, cfg Config) *Coordinator {
	return &Coordinator{
		ledger:     ledger,
		newsletter: newsletter,
		email:      email,
		tpl:        template.NewEngine(),
		cfg:        cfg,
	}
}

// Signup processes one registration start to finish. It never returns an
// error for backend failures; those are folded into the Result. The error
// return is reserved for invalid input (ErrInvalidEmail).
func (c *Coordinator) Signup(ctx context.Context, req Request) (*Result, error) {
	email, err := domain.ValidateEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	res := &Result{
		NewsletterStatus: domain.NewsletterPending,
		EmailStatus:      domain.EmailNotAttempted,
	}

	// Tier 1: pre-check. A known duplicate never reaches the newsletter
	// platform or the email sender. A read failure here is non-fatal: the
	// check is an optimization and tier 3 stays authoritative.
	if existing, err := c.ledger.FindByEmail(ctx, email); err == nil && existing != nil {
		res.Outcome = Duplicate
		res.DatabaseDuplicate = true
		return res, nil
	} else if err != nil && !errors.Is(err, postgres.ErrNotFound) {
		logger.Warn("signup pre-check failed, proceeding", "email", email, "error", err.Error())
	}

	// Register with the newsletter platform. The client normalizes the
	// ambiguous remote responses and bounds its own retries; a Failed
	// status only disables the email step, it does not abort the signup.
	nlRes, err := c.newsletter.Subscribe(ctx, beehiiv.SubscribeRequest{
		Email:       email,
		Source:      req.Source,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
	})
	if err != nil {
		nlRes = &beehiiv.Result{Status: beehiiv.StatusFailed, Detail: err.Error()}
	}
	switch nlRes.Status {
	case beehiiv.StatusSubscribed:
		res.NewsletterStatus = domain.NewsletterSubscribed
	case beehiiv.StatusAlreadySubscribed:
		res.NewsletterStatus = domain.NewsletterAlreadySubscribed
		res.BeehiivDuplicate = true
	default:
		res.NewsletterStatus = domain.NewsletterFailed
		res.Detail = nlRes.Detail
	}

	// Tier 2: race re-check. The pre-check and the platform call are not
	// transactional with each other; a concurrent identical request may
	// have inserted in between. If it did, discard this attempt: no email,
	// no insert. The platform-side subscription just created is idempotent
	// and left in place.
	if existing, err := c.ledger.FindByEmail(ctx, email); err == nil && existing != nil {
		logger.Info("concurrent signup won the race", "email", email)
		res.Outcome = Duplicate
		res.DatabaseDuplicate = true
		return res, nil
	}

	// Email, only for a live subscription. A platform-rejected address
	// never gets a welcome email.
	if res.NewsletterStatus.Registered() {
		vars := map[string]interface{}{
			"email":  email,
			"source": req.Source,
			"domain": req.Source,
		}
		msg := &dispatch.Message{
			To:      email,
			Subject: c.cfg.WelcomeSubject,
			HTML:    c.tpl.Render("welcome_html", c.cfg.WelcomeHTML, vars),
			Text:    c.tpl.Render("welcome_text", c.cfg.WelcomeText, vars),
		}
		sendRes, err := c.email.Send(ctx, msg, req.Source)
		if err != nil {
			res.EmailStatus = domain.EmailFailed
			logger.Warn("welcome email dispatch failed", "email", email, "error", err.Error())
		} else if sendRes.Sent {
			res.EmailStatus = domain.EmailSent
			res.Domain = sendRes.Domain
			res.FromEmail = sendRes.FromEmail
			res.MessageID = sendRes.MessageID
		} else {
			res.EmailStatus = domain.EmailFailed
		}
	} else {
		res.EmailStatus = domain.EmailSkipped
	}

	// Tier 3: insert. The unique constraint is the final arbiter; a
	// violation here supersedes both earlier checks.
	entry := &domain.WaitlistEntry{
		Email: email,
		Attribution: domain.Attribution{
			Source:      req.Source,
			UTMSource:   req.UTMSource,
			UTMMedium:   req.UTMMedium,
			UTMCampaign: req.UTMCampaign,
		},
		NewsletterStatus: res.NewsletterStatus,
		EmailStatus:      res.EmailStatus,
	}
	if res.EmailStatus == domain.EmailSent {
		entry.SentFromDomain = res.Domain
		entry.EmailMessageID = res.MessageID
	}
	now := time.Now().UTC()
	entry.LastSyncAttemptAt = &now

	switch err := c.ledger.Insert(ctx, entry); {
	case err == nil:
		res.DBSuccess = true
	case errors.Is(err, postgres.ErrDuplicateEmail):
		res.Outcome = Duplicate
		res.DatabaseDuplicate = true
		return res, nil
	default:
		logger.Error("waitlist insert failed", "email", email, "error", err.Error())
	}

	// All three down is the only total failure; any single success is a
	// partial success the caller reports with per-backend flags.
	if !res.DBSuccess && !res.NewsletterStatus.Registered() && res.EmailStatus != domain.EmailSent {
		res.Outcome = Failed
		return res, nil
	}

	res.Outcome = Accepted
	return res, nil
}
