package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/waitlist-service/internal/pkg/httputil"
	"github.com/ignite/waitlist-service/internal/pkg/logger"
	"github.com/ignite/waitlist-service/internal/service/reconcile"
)

// lockKeepAliver is the optional lock refresh hook (Redis locks have it,
// PG advisory locks do not).
type lockKeepAliver interface {
	KeepAlive(ctx context.Context) error
}

type syncRequest struct {
	Action    string `json:"action"`
	Email     string `json:"email"`
	BatchSize int    `json:"batchSize"`
	DryRun    bool   `json:"dryRun"`
}

// Sync dispatches POST /bulk-sync (and /resend-sync) on the action field.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	switch req.Action {
	case "sync-all":
		h.syncAll(w, r, req)
	case "sync-specific-email":
		h.syncSpecificEmail(w, r, req)
	case "check-status":
		h.checkStatus(w, r, req)
	case "get-stats":
		h.getStats(w, r)
	default:
		httputil.BadRequest(w, "unknown action: "+req.Action)
	}
}

// syncAll runs a full drift scan under the distributed lock, so two cron
// triggers (or the /bulk-sync and /resend-sync aliases firing together)
// never double-process the same entries.
func (h *Handlers) syncAll(w http.ResponseWriter, r *http.Request, req syncRequest) {
	if h.syncLock != nil && !req.DryRun {
		acquired, err := h.syncLock.Acquire(r.Context())
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		if !acquired {
			httputil.Error(w, http.StatusConflict, "a sync run is already in progress")
			return
		}
		defer func() {
			if err := h.syncLock.Release(r.Context()); err != nil {
				logger.Warn("sync lock release failed", "error", err.Error())
			}
		}()
	}

	opts := reconcile.Options{
		BatchSize: req.BatchSize,
		DryRun:    req.DryRun,
	}
	// A Redis-backed lock can be re-armed mid-run; advisory locks are
	// session-scoped and need no refresh.
	if ka, ok := h.syncLock.(lockKeepAliver); ok && !req.DryRun {
		opts.KeepAlive = ka.KeepAlive
	}

	summary, err := h.sync.SyncAll(r.Context(), opts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}

func (h *Handlers) syncSpecificEmail(w http.ResponseWriter, r *http.Request, req syncRequest) {
	if req.Email == "" {
		httputil.BadRequest(w, "email is required for sync-specific-email")
		return
	}
	summary, err := h.sync.ResyncOne(r.Context(), req.Email, req.DryRun)
	if errors.Is(err, reconcile.ErrEntryNotFound) {
		httputil.NotFound(w, "email not found on the waitlist")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}

func (h *Handlers) checkStatus(w http.ResponseWriter, r *http.Request, req syncRequest) {
	if req.Email == "" {
		httputil.BadRequest(w, "email is required for check-status")
		return
	}
	report, err := h.sync.CheckStatus(r.Context(), req.Email)
	if errors.Is(err, reconcile.ErrEntryNotFound) {
		httputil.NotFound(w, "email not found on the waitlist")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}

func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}
