package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/waitlist-service/internal/domain"
	"github.com/ignite/waitlist-service/internal/repository/postgres"
	"github.com/ignite/waitlist-service/internal/service/reconcile"
	"github.com/ignite/waitlist-service/internal/service/signup"
)

type fakeSignup struct {
	result  *signup.Result
	err     error
	lastReq signup.Request
}

func (f *fakeSignup) Signup(ctx context.Context, req signup.Request) (*signup.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeSync struct {
	summary *reconcile.Summary
	report  *reconcile.StatusReport
	err     error
	lastOpt reconcile.Options
}

func (f *fakeSync) SyncAll(ctx context.Context, opts reconcile.Options) (*reconcile.Summary, error) {
	f.lastOpt = opts
	return f.summary, f.err
}

func (f *fakeSync) ResyncOne(ctx context.Context, email string, dryRun bool) (*reconcile.Summary, error) {
	return f.summary, f.err
}

func (f *fakeSync) CheckStatus(ctx context.Context, email string) (*reconcile.StatusReport, error) {
	return f.report, f.err
}

type fakeStats struct {
	stats   *postgres.Stats
	pingErr error
}

func (f *fakeStats) GetStats(ctx context.Context) (*postgres.Stats, error) { return f.stats, nil }
func (f *fakeStats) Ping(ctx context.Context) error                        { return f.pingErr }

func newTestServer(t *testing.T, su *fakeSignup, sy *fakeSync, st *fakeStats, token string) *httptest.Server {
	t.Helper()
	if su == nil {
		su = &fakeSignup{}
	}
	if sy == nil {
		sy = &fakeSync{summary: &reconcile.Summary{}}
	}
	if st == nil {
		st = &fakeStats{stats: &postgres.Stats{}}
	}
	srv := httptest.NewServer(SetupRoutes(NewHandlers(su, sy, st, nil, token)))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestSubscribeSuccess(t *testing.T) {
	su := &fakeSignup{result: &signup.Result{
		Outcome:          signup.Accepted,
		NewsletterStatus: domain.NewsletterSubscribed,
		EmailStatus:      domain.EmailSent,
		DBSuccess:        true,
		Domain:           "mail.example.com",
		FromEmail:        "hello@mail.example.com",
	}}
	srv := newTestServer(t, su, nil, nil, "")

	resp, body := postJSON(t, srv.URL+"/subscribe", map[string]string{
		"email": "a@x.com", "source": "landing", "utm_campaign": "launch",
	}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["beehiivSuccess"])
	assert.Equal(t, true, body["emailSuccess"])
	assert.Equal(t, true, body["dbSuccess"])
	assert.Equal(t, "mail.example.com", body["domain"])
	assert.Equal(t, "hello@mail.example.com", body["fromEmail"])
	assert.Equal(t, "landing", su.lastReq.Source)
	assert.Equal(t, "launch", su.lastReq.UTMCampaign)
}

func TestSubscribeDuplicate(t *testing.T) {
	su := &fakeSignup{result: &signup.Result{
		Outcome:           signup.Duplicate,
		DatabaseDuplicate: true,
	}}
	srv := newTestServer(t, su, nil, nil, "")

	resp, body := postJSON(t, srv.URL+"/subscribe", map[string]string{"email": "a@x.com"}, nil)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email already exists", body["error"])
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, true, body["databaseDuplicate"])
	assert.Equal(t, false, body["beehiivDuplicate"])
}

func TestSubscribePartialFailureIsStill200(t *testing.T) {
	su := &fakeSignup{result: &signup.Result{
		Outcome:          signup.Accepted,
		NewsletterStatus: domain.NewsletterSubscribed,
		EmailStatus:      domain.EmailFailed,
		DBSuccess:        true,
	}}
	srv := newTestServer(t, su, nil, nil, "")

	resp, body := postJSON(t, srv.URL+"/subscribe", map[string]string{"email": "a@x.com"}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["beehiivSuccess"])
	assert.Equal(t, false, body["emailSuccess"])
}

func TestSubscribeTotalFailureIs500(t *testing.T) {
	su := &fakeSignup{result: &signup.Result{
		Outcome: signup.Failed,
		Detail:  "everything is down",
	}}
	srv := newTestServer(t, su, nil, nil, "")

	resp, body := postJSON(t, srv.URL+"/subscribe", map[string]string{"email": "a@x.com"}, nil)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Subscription failed", body["error"])
	assert.Equal(t, "everything is down", body["details"])
}

func TestSubscribeInvalidEmail(t *testing.T) {
	su := &fakeSignup{err: signup.ErrInvalidEmail}
	srv := newTestServer(t, su, nil, nil, "")

	resp, _ := postJSON(t, srv.URL+"/subscribe", map[string]string{"email": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncRequiresToken(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil, "secret")

	resp, body := postJSON(t, srv.URL+"/bulk-sync", map[string]any{"action": "get-stats"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "unauthorized", body["error"])

	resp, _ = postJSON(t, srv.URL+"/bulk-sync", map[string]any{"action": "get-stats"},
		map[string]string{"X-Sync-Token": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSyncAllAction(t *testing.T) {
	sy := &fakeSync{summary: &reconcile.Summary{Total: 5, Successful: 4, Failed: 1, Errors: []string{"x"}}}
	srv := newTestServer(t, nil, sy, nil, "")

	resp, body := postJSON(t, srv.URL+"/bulk-sync",
		map[string]any{"action": "sync-all", "batchSize": 3, "dryRun": true}, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["total"])
	assert.Equal(t, float64(4), body["successful"])
	assert.Equal(t, float64(1), body["failed"])
	assert.Equal(t, 3, sy.lastOpt.BatchSize)
	assert.True(t, sy.lastOpt.DryRun)
}

type fakeRefreshableLock struct {
	keepAlives int
}

func (f *fakeRefreshableLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeRefreshableLock) Release(ctx context.Context) error         { return nil }
func (f *fakeRefreshableLock) KeepAlive(ctx context.Context) error {
	f.keepAlives++
	return nil
}

func TestSyncAllThreadsLockRefresh(t *testing.T) {
	sy := &fakeSync{summary: &reconcile.Summary{}}
	lock := &fakeRefreshableLock{}
	srv := httptest.NewServer(SetupRoutes(NewHandlers(&fakeSignup{}, sy, &fakeStats{stats: &postgres.Stats{}}, lock, "")))
	t.Cleanup(srv.Close)

	resp, _ := postJSON(t, srv.URL+"/bulk-sync", map[string]any{"action": "sync-all"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, sy.lastOpt.KeepAlive)
	require.NoError(t, sy.lastOpt.KeepAlive(context.Background()))
	assert.Equal(t, 1, lock.keepAlives)

	// Dry runs bypass the lock entirely, so there is nothing to refresh.
	resp, _ = postJSON(t, srv.URL+"/bulk-sync", map[string]any{"action": "sync-all", "dryRun": true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, sy.lastOpt.KeepAlive)
}

func TestSyncSpecificEmailRequiresEmail(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil, "")

	resp, _ := postJSON(t, srv.URL+"/resend-sync", map[string]any{"action": "sync-specific-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncUnknownEmailIs404(t *testing.T) {
	sy := &fakeSync{err: reconcile.ErrEntryNotFound}
	srv := newTestServer(t, nil, sy, nil, "")

	resp, _ := postJSON(t, srv.URL+"/bulk-sync",
		map[string]any{"action": "check-status", "email": "ghost@x.com"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncUnknownAction(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil, "")

	resp, _ := postJSON(t, srv.URL+"/bulk-sync", map[string]any{"action": "frobnicate"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetStatsAction(t *testing.T) {
	st := &fakeStats{stats: &postgres.Stats{Total: 42, Drifted: 3}}
	srv := newTestServer(t, nil, nil, st, "")

	resp, body := postJSON(t, srv.URL+"/bulk-sync", map[string]any{"action": "get-stats"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(42), body["total"])
	assert.Equal(t, float64(3), body["drifted"])
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil, "")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
