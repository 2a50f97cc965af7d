// Package reconcile repairs drift between the waitlist ledger and the
// newsletter platform: entries whose welcome email went out but whose
// registration never stuck. The synchronous signup path is designed to
// prevent this state; historical data and past bugs still contain it.
//
// The job is deliberately slow: strictly sequential within a batch, a short
// pause between entries and a longer one between batches, respecting the
// platform's implicit rate limits. Each entry's state is persisted before
// the next starts, so aborting a run at any point is safe and re-running is
// idempotent (an already-registered entry performs no remote call).
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/waitlist-service/internal/beehiiv"
	"github.com/ignite/waitlist-service/internal/config"
	"github.com/ignite/waitlist-service/internal/domain"
	"github.com/ignite/waitlist-service/internal/pkg/logger"
	"github.com/ignite/waitlist-service/internal/repository/postgres"
)

// ErrEntryNotFound is returned by ResyncOne for an unknown address.
var ErrEntryNotFound = errors.New("reconcile: entry not found")

// maxScanEntries caps a single sync-all run. Runs are idempotent, so a
// backlog larger than this is simply handled by the next run.
const maxScanEntries = 1000

// Ledger is the slice of the waitlist repository the job needs.
type Ledger interface {
	FindByEmail(ctx context.Context, email string) (*domain.WaitlistEntry, error)
	FindDrifted(ctx context.Context, limit int, cooldown time.Duration) ([]*domain.WaitlistEntry, error)
	UpdateSyncStatus(ctx context.Context, email string, status domain.NewsletterStatus, attemptedAt time.Time) error
}

// Newsletter replays registrations and inspects platform state.
type Newsletter interface {
	Subscribe(ctx context.Context, req beehiiv.SubscribeRequest) (*beehiiv.Result, error)
	Lookup(ctx context.Context, email string) (*beehiiv.Result, error)
}

// Summary is the per-run result shape, identical for live and dry runs.
type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
	DryRun     bool     `json:"dryRun"`
}

// StatusReport compares one entry's recorded state with the platform's.
type StatusReport struct {
	Email            string                  `json:"email"`
	NewsletterStatus domain.NewsletterStatus `json:"newsletter_status"`
	EmailStatus      domain.EmailStatus      `json:"email_status"`
	Drifted          bool                    `json:"drifted"`
	PlatformKnows    bool                    `json:"platform_knows"`
	PlatformStatus   string                  `json:"platform_status,omitempty"`
	LastSyncAt       *time.Time              `json:"last_sync_attempt_at,omitempty"`
}

// Options control one run.
type Options struct {
	BatchSize int
	DryRun    bool
	// KeepAlive, when set, is called between batches so the caller can
	// re-arm its distributed lock across the inter-batch delays.
	KeepAlive func(ctx context.Context) error
}

// Job is the reconciliation runner.
type Job struct {
	ledger     Ledger
	newsletter Newsletter
	cfg        config.SyncConfig
}

// NewJob creates a reconciliation job with the configured pacing.
func NewJob(ledger Ledger, newsletter Newsletter, cfg config.SyncConfig) *Job {
	return &Job{ledger: ledger, newsletter: newsletter, cfg: cfg}
}

// SyncAll scans the ledger for drifted entries and replays the missing
// newsletter registration for each, in batches with pacing delays.
func (j *Job) SyncAll(ctx context.Context, opts Options) (*Summary, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = j.cfg.BatchSize
	}

	entries, err := j.ledger.FindDrifted(ctx, maxScanEntries, j.cfg.Cooldown())
	if err != nil {
		return nil, fmt.Errorf("drift scan: %w", err)
	}

	summary := &Summary{Total: len(entries), DryRun: opts.DryRun, Errors: []string{}}
	logger.Info("reconciliation run starting",
		"entries", len(entries), "batch_size", batchSize, "dry_run", opts.DryRun)

	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}

		for i, entry := range entries[start:end] {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			j.processEntry(ctx, entry, opts.DryRun, summary)

			// Pause between entries, but not after the batch's last one.
			if i < end-start-1 && !opts.DryRun {
				time.Sleep(j.cfg.ItemDelay())
			}
		}

		if end < len(entries) {
			if opts.KeepAlive != nil {
				if err := opts.KeepAlive(ctx); err != nil {
					logger.Warn("sync lock keep-alive failed", "error", err.Error())
				}
			}
			if !opts.DryRun {
				time.Sleep(j.cfg.BatchDelay())
			}
		}
	}

	logger.Info("reconciliation run finished",
		"successful", summary.Successful, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

// ResyncOne replays the newsletter registration for a single address.
func (j *Job) ResyncOne(ctx context.Context, email string, dryRun bool) (*Summary, error) {
	entry, err := j.ledger.FindByEmail(ctx, email)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resync lookup: %w", err)
	}

	summary := &Summary{Total: 1, DryRun: dryRun, Errors: []string{}}
	j.processEntry(ctx, entry, dryRun, summary)
	return summary, nil
}

// CheckStatus reports one entry's recorded state next to the platform's
// current view, without mutating anything.
func (j *Job) CheckStatus(ctx context.Context, email string) (*StatusReport, error) {
	entry, err := j.ledger.FindByEmail(ctx, email)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("status lookup: %w", err)
	}

	report := &StatusReport{
		Email:            entry.Email,
		NewsletterStatus: entry.NewsletterStatus,
		EmailStatus:      entry.EmailStatus,
		Drifted:          entry.Drifted(),
		LastSyncAt:       entry.LastSyncAttemptAt,
	}

	platform, err := j.newsletter.Lookup(ctx, entry.Email)
	if err != nil {
		return nil, fmt.Errorf("platform lookup: %w", err)
	}
	if platform != nil {
		report.PlatformKnows = true
		report.PlatformStatus = platform.Detail
	}
	return report, nil
}

// processEntry handles one entry and updates the summary in place.
// Live mode persists the outcome before returning; dry-run mode touches
// nothing remote and writes nothing.
func (j *Job) processEntry(ctx context.Context, entry *domain.WaitlistEntry, dryRun bool, summary *Summary) {
	// Already repaired (e.g. by an earlier aborted run or an idempotent
	// platform retry): success without another remote call.
	if entry.NewsletterStatus.Registered() {
		summary.Skipped++
		return
	}

	if dryRun {
		// Everything except the remote call and the write.
		summary.Successful++
		return
	}

	res, err := j.newsletter.Subscribe(ctx, beehiiv.SubscribeRequest{
		Email:       entry.Email,
		Source:      entry.Attribution.Source,
		UTMSource:   entry.Attribution.UTMSource,
		UTMMedium:   entry.Attribution.UTMMedium,
		UTMCampaign: entry.Attribution.UTMCampaign,
	})
	if err != nil {
		res = &beehiiv.Result{Status: beehiiv.StatusFailed, Detail: err.Error()}
	}

	status := domain.NewsletterFailed
	switch res.Status {
	case beehiiv.StatusSubscribed:
		status = domain.NewsletterSubscribed
	case beehiiv.StatusAlreadySubscribed:
		status = domain.NewsletterAlreadySubscribed
	}

	now := time.Now().UTC()
	if err := j.ledger.UpdateSyncStatus(ctx, entry.Email, status, now); err != nil {
		summary.Failed++
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("%s: persist failed: %v", logger.RedactEmail(entry.Email), err))
		return
	}

	if status.Registered() {
		summary.Successful++
	} else {
		summary.Failed++
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("%s: %s", logger.RedactEmail(entry.Email), res.Detail))
	}
}
