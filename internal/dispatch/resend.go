package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/waitlist-service/internal/config"
)

// ResendSender sends email through the Resend emails API.
type ResendSender struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewResendSender creates a Resend-backed sender.
func NewResendSender(cfg config.EmailConfig) *ResendSender {
	return &ResendSender{
		apiKey:  cfg.ResendAPIKey,
		baseURL: cfg.ResendBaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send delivers a single email from the given identity. API rejections come
// back as an unsuccessful SendResult; the dispatcher decides whether to fall
// through to the next identity.
func (s *ResendSender) Send(ctx context.Context, from config.SendingIdentity, msg *Message) (*SendResult, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("resend: api key not configured")
	}

	payload := resendPayload{
		From:    fmt.Sprintf("%s <%s>", from.FromName, from.FromEmail),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("resend: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("resend: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &SendResult{Provider: "resend", Detail: err.Error()}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var parsed resendResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := parsed.Message
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return &SendResult{Provider: "resend", Detail: detail}, nil
	}

	return &SendResult{
		Success:   true,
		MessageID: parsed.ID,
		Provider:  "resend",
		SentAt:    time.Now(),
	}, nil
}
