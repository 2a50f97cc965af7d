package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/waitlist-service/internal/pkg/distlock"
	"github.com/ignite/waitlist-service/internal/pkg/httputil"
	"github.com/ignite/waitlist-service/internal/pkg/logger"
	"github.com/ignite/waitlist-service/internal/repository/postgres"
	"github.com/ignite/waitlist-service/internal/service/reconcile"
	"github.com/ignite/waitlist-service/internal/service/signup"
)

// SignupService is the synchronous signup orchestrator.
type SignupService interface {
	Signup(ctx context.Context, req signup.Request) (*signup.Result, error)
}

// SyncService is the reconciliation job surface exposed over HTTP.
type SyncService interface {
	SyncAll(ctx context.Context, opts reconcile.Options) (*reconcile.Summary, error)
	ResyncOne(ctx context.Context, email string, dryRun bool) (*reconcile.Summary, error)
	CheckStatus(ctx context.Context, email string) (*reconcile.StatusReport, error)
}

// StatsProvider reports ledger aggregates.
type StatsProvider interface {
	GetStats(ctx context.Context) (*postgres.Stats, error)
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	signup    SignupService
	sync      SyncService
	stats     StatsProvider
	syncLock  distlock.DistLock
	syncToken string
}

// NewHandlers wires the handler dependencies. syncLock may be nil, in
// which case concurrent sync-all runs are not serialized.
func NewHandlers(signupSvc SignupService, syncSvc SyncService, stats StatsProvider, syncLock distlock.DistLock, syncToken string) *Handlers {
	return &Handlers{
		signup:    signupSvc,
		sync:      syncSvc,
		stats:     stats,
		syncLock:  syncLock,
		syncToken: syncToken,
	}
}

// HealthCheck reports liveness and database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	if err := h.stats.Ping(r.Context()); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}
	httputil.OK(w, map[string]string{
		"status":   status,
		"database": dbStatus,
	})
}

type subscribeRequest struct {
	Email       string `json:"email"`
	Source      string `json:"source"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
}

type subscribeResponse struct {
	OK             bool   `json:"ok"`
	BeehiivSuccess bool   `json:"beehiivSuccess"`
	EmailSuccess   bool   `json:"emailSuccess"`
	DBSuccess      bool   `json:"dbSuccess"`
	Domain         string `json:"domain"`
	FromEmail      string `json:"fromEmail"`
	Message        string `json:"message"`
}

type duplicateResponse struct {
	Error             string `json:"error"`
	Duplicate         bool   `json:"duplicate"`
	DatabaseDuplicate bool   `json:"databaseDuplicate"`
	BeehiivDuplicate  bool   `json:"beehiivDuplicate"`
}

// Subscribe handles POST /subscribe.
//
// A duplicate is always a 409 no matter which tier detected it. A partial
// backend failure is still a 200 with per-backend flags; only a failure of
// all three backends is a 500.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	res, err := h.signup.Signup(r.Context(), signup.Request{
		Email:       req.Email,
		Source:      req.Source,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
	})
	if errors.Is(err, signup.ErrInvalidEmail) {
		httputil.BadRequest(w, "Valid email is required")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	switch res.Outcome {
	case signup.Duplicate:
		httputil.Conflict(w, duplicateResponse{
			Error:             "Email already exists",
			Duplicate:         true,
			DatabaseDuplicate: res.DatabaseDuplicate,
			BeehiivDuplicate:  res.BeehiivDuplicate,
		})
	case signup.Failed:
		logger.Error("signup failed on all backends", "detail", res.Detail)
		httputil.JSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Subscription failed",
			"details": res.Detail,
		})
	default:
		httputil.OK(w, subscribeResponse{
			OK:             true,
			BeehiivSuccess: res.NewsletterStatus.Registered(),
			EmailSuccess:   res.EmailStatus.Sent(),
			DBSuccess:      res.DBSuccess,
			Domain:         res.Domain,
			FromEmail:      res.FromEmail,
			Message:        "You're on the waitlist! Check your inbox.",
		})
	}
}
