// Package httpretry provides an HTTP client with bounded, fixed-delay retry
// for external API calls. Signup volumes are low and the reconciliation job
// is the slow safety net, so retries here stay short and predictable rather
// than exponential.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with fixed-delay retry. An operation gets
// maxAttempts tries total (not maxAttempts retries), with delay between them.
type RetryClient struct {
	client      HTTPDoer
	maxAttempts int
	delay       time.Duration
}

// NewRetryClient creates a RetryClient wrapping the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
// maxAttempts below 1 defaults to 2; a zero delay defaults to 2s.
func NewRetryClient(client HTTPDoer, maxAttempts int, delay time.Duration) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &RetryClient{
		client:      client,
		maxAttempts: maxAttempts,
		delay:       delay,
	}
}

// Do executes the HTTP request, retrying on retryable status codes
// (429, 500, 502, 503, 504) and transient network errors. It does NOT retry
// client errors (4xx other than 429) or context cancellation. On the final
// attempt the response is returned as-is so the caller can inspect the
// status code and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= rc.maxAttempts; attempt++ {
		if attempt > 1 {
			// Reset request body for retry if applicable
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			log.Printf("httpretry: attempt %d/%d for %s %s%s (waiting %s)",
				attempt, rc.maxAttempts, req.Method, req.URL.Host, req.URL.Path, rc.delay)

			timer := time.NewTimer(rc.delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			// If the context was canceled/expired, don't retry
			if req.Context().Err() != nil {
				return nil, err
			}
			// Network/connection/timeout error, retry
			continue
		}

		// Non-retryable status code: return immediately (success or client error)
		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		// Last attempt: return the response as-is so the caller can read
		// the body and handle the error
		if attempt == rc.maxAttempts {
			return resp, nil
		}

		// Retryable status: drain body for connection reuse, then retry
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// isRetryableStatus returns true if the HTTP status code indicates a
// transient server error worth a second attempt.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
