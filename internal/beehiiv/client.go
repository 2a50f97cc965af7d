// Package beehiiv wraps the Beehiiv subscriptions API and normalizes its
// inherently ambiguous responses into three outcomes: Subscribed,
// AlreadySubscribed, Failed.
//
// The platform signals "address already known" inconsistently: sometimes as
// a 4xx whose body mentions an existing subscription, sometimes as a 2xx
// whose status indicates reactivation. All of that string matching lives in
// classifySuccess/classifyFailure below and nowhere else, so a clarified
// platform contract changes exactly one file.
package beehiiv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/waitlist-service/internal/config"
	"github.com/ignite/waitlist-service/internal/pkg/httpretry"
	"github.com/ignite/waitlist-service/internal/pkg/logger"
)

// Client is the Beehiiv API client.
type Client struct {
	baseURL       string
	apiKey        string
	publicationID string
	doubleOptIn   bool
	httpClient    httpretry.HTTPDoer
}

// NewClient creates a new Beehiiv API client. Registration attempts are
// bounded by cfg.MaxAttempts with a fixed delay between them; a Failed
// result after exhausting attempts is non-fatal to callers.
func NewClient(cfg config.BeehiivConfig) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		publicationID: cfg.PublicationID,
		doubleOptIn:   cfg.DoubleOptIn,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, cfg.MaxAttempts, cfg.RetryDelay()),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// Subscribe registers an email with the publication and normalizes the
// outcome. Network failures and non-duplicate API errors come back as
// StatusFailed, never as a Go error; the returned error is reserved for
// request-construction problems.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) (*Result, error) {
	payload := subscriptionPayload{
		Email:              req.Email,
		ReactivateExisting: false,
		DoubleOptIn:        c.doubleOptIn,
		Source:             req.Source,
		UTMSource:          req.UTMSource,
		UTMMedium:          req.UTMMedium,
		UTMCampaign:        req.UTMCampaign,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal subscription: %w", err)
	}

	endpoint := fmt.Sprintf("%s/publications/%s/subscriptions", c.baseURL, c.publicationID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create subscription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn("beehiiv subscribe failed", "email", req.Email, "error", err.Error())
		return &Result{Status: StatusFailed, Detail: err.Error()}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Result{Status: StatusFailed, Detail: fmt.Sprintf("read response: %v", err)}, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return c.classifySuccess(respBody), nil
	}
	return c.classifyFailure(resp.StatusCode, respBody), nil
}

// Lookup fetches the platform's current view of one address. Used by the
// reconciliation check-status action to compare recorded vs. remote state.
// Returns (nil, nil) when the platform has no subscription for the address.
func (c *Client) Lookup(ctx context.Context, email string) (*Result, error) {
	endpoint := fmt.Sprintf("%s/publications/%s/subscriptions/by_email/%s",
		c.baseURL, c.publicationID, url.PathEscape(email))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create lookup request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("beehiiv lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("beehiiv lookup status %d: %s", resp.StatusCode, truncate(respBody))
	}

	var sub subscriptionResponse
	if err := json.Unmarshal(respBody, &sub); err != nil {
		return nil, fmt.Errorf("parse lookup response: %w", err)
	}
	return &Result{
		Status:         StatusAlreadySubscribed,
		SubscriptionID: sub.Data.ID,
		Detail:         sub.Data.Status,
	}, nil
}

// classifySuccess maps a 2xx body to Subscribed or AlreadySubscribed.
// A reactivation-flavored status or message means the address was known.
func (c *Client) classifySuccess(body []byte) *Result {
	var sub subscriptionResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		// 2xx with an unparsable body: the subscription went through,
		// we just can't extract the id.
		return &Result{Status: StatusSubscribed, Detail: truncate(body)}
	}

	if indicatesDuplicate(sub.Data.Status) || indicatesDuplicate(string(body)) {
		return &Result{
			Status:         StatusAlreadySubscribed,
			SubscriptionID: sub.Data.ID,
			Detail:         sub.Data.Status,
		}
	}
	return &Result{
		Status:         StatusSubscribed,
		SubscriptionID: sub.Data.ID,
		Detail:         sub.Data.Status,
	}
}

// classifyFailure maps a non-2xx response to AlreadySubscribed (duplicate
// signaled as an error) or Failed.
func (c *Client) classifyFailure(statusCode int, body []byte) *Result {
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := strings.Join(append([]string{apiErr.Error, apiErr.Message}, apiErr.Errors...), " ")

	if statusCode >= 400 && statusCode < 500 {
		if indicatesDuplicate(msg) || indicatesDuplicate(string(body)) {
			return &Result{Status: StatusAlreadySubscribed, Detail: strings.TrimSpace(msg)}
		}
	}
	return &Result{
		Status: StatusFailed,
		Detail: fmt.Sprintf("status %d: %s", statusCode, truncate(body)),
	}
}

// duplicatePhrases are the response fragments observed to mean "this address
// is already on the list". Fallback only; explicit status fields win.
var duplicatePhrases = []string{
	"already exists",
	"already subscribed",
	"subscription exists",
	"duplicate",
	"reactivat",
	"inactive",
}

func indicatesDuplicate(s string) bool {
	s = strings.ToLower(s)
	for _, phrase := range duplicatePhrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}

func truncate(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
