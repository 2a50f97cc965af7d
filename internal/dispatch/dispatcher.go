package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/waitlist-service/internal/config"
	"github.com/ignite/waitlist-service/internal/pkg/logger"
)

// Dispatcher tries each configured sending identity in ranked order until
// one accepts the message. No retries within an identity: a failure falls
// straight through to the next one.
type Dispatcher struct {
	identities []config.SendingIdentity
	senders    map[string]Sender
}

// NewDispatcher creates a dispatcher over the configured identities.
// Identities keep their config order, which is the latency ranking.
func NewDispatcher(cfg config.EmailConfig) *Dispatcher {
	return &Dispatcher{
		identities: cfg.Identities,
		senders: map[string]Sender{
			"resend": NewResendSender(cfg),
			"ses":    NewSESSender(cfg),
		},
	}
}

// SetSender replaces a provider adapter (useful for testing).
func (d *Dispatcher) SetSender(provider string, s Sender) {
	d.senders[provider] = s
}

// Send delivers msg through the first identity that accepts it. If
// preferredDomain matches a configured identity it is promoted to the front
// of the ranking: the user signed up on that domain, so the welcome email
// should come from it when possible. Returns a result with Sent=false and
// the full attempt trail only after every identity has been tried.
func (d *Dispatcher) Send(ctx context.Context, msg *Message, preferredDomain string) (*DispatchResult, error) {
	if len(d.identities) == 0 {
		return nil, fmt.Errorf("dispatch: no sending identities configured")
	}

	result := &DispatchResult{}
	for _, identity := range d.ranked(preferredDomain) {
		sender, ok := d.senders[identity.Provider]
		if !ok {
			result.Attempts = append(result.Attempts, IdentityAttempt{
				Domain: identity.Domain,
				Error:  fmt.Sprintf("unknown provider %q", identity.Provider),
			})
			continue
		}

		sendRes, err := sender.Send(ctx, identity, msg)
		if err != nil {
			// Configuration problem; record and fall through.
			result.Attempts = append(result.Attempts, IdentityAttempt{
				Domain: identity.Domain,
				Error:  err.Error(),
			})
			continue
		}
		if !sendRes.Success {
			logger.Warn("send failed, trying next identity",
				"recipient", msg.To,
				"domain", identity.Domain,
				"provider", sendRes.Provider,
				"detail", sendRes.Detail)
			result.Attempts = append(result.Attempts, IdentityAttempt{
				Domain: identity.Domain,
				Error:  sendRes.Detail,
			})
			continue
		}

		result.Sent = true
		result.Domain = identity.Domain
		result.FromEmail = identity.FromEmail
		result.MessageID = sendRes.MessageID
		result.Provider = sendRes.Provider
		logger.Info("welcome email sent",
			"recipient", msg.To,
			"domain", identity.Domain,
			"provider", sendRes.Provider,
			"message_id", sendRes.MessageID)
		return result, nil
	}

	return result, nil
}

// ranked returns the identity list with the preferred domain (if any)
// promoted to the front. The rest keep their configured latency order.
func (d *Dispatcher) ranked(preferredDomain string) []config.SendingIdentity {
	if preferredDomain == "" {
		return d.identities
	}
	preferredDomain = strings.ToLower(strings.TrimSpace(preferredDomain))

	out := make([]config.SendingIdentity, 0, len(d.identities))
	var rest []config.SendingIdentity
	for _, id := range d.identities {
		if strings.ToLower(id.Domain) == preferredDomain {
			out = append(out, id)
		} else {
			rest = append(rest, id)
		}
	}
	return append(out, rest...)
}
