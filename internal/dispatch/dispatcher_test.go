package dispatch

import (
	"context"
	"testing"

	"github.com/ignite/waitlist-service/internal/config"
)

// fakeSender scripts per-domain outcomes and records the attempt order.
type fakeSender struct {
	failDomains map[string]bool
	calls       []string
}

func (f *fakeSender) Send(ctx context.Context, from config.SendingIdentity, msg *Message) (*SendResult, error) {
	f.calls = append(f.calls, from.Domain)
	if f.failDomains[from.Domain] {
		return &SendResult{Success: false, Provider: "fake", Detail: "rejected"}, nil
	}
	return &SendResult{Success: true, Provider: "fake", MessageID: "msg-" + from.Domain}, nil
}

func newTestDispatcher(fake *fakeSender, domains ...string) *Dispatcher {
	var ids []config.SendingIdentity
	for _, d := range domains {
		ids = append(ids, config.SendingIdentity{
			Domain:    d,
			FromEmail: "hello@" + d,
			FromName:  "Test",
			Provider:  "resend",
		})
	}
	disp := NewDispatcher(config.EmailConfig{Identities: ids})
	disp.SetSender("resend", fake)
	return disp
}

func TestSendFirstIdentityWins(t *testing.T) {
	fake := &fakeSender{}
	d := newTestDispatcher(fake, "a.com", "b.com", "c.com")

	res, err := d.Send(context.Background(), &Message{To: "u@x.com"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Sent || res.Domain != "a.com" || res.FromEmail != "hello@a.com" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(fake.calls) != 1 {
		t.Errorf("calls = %v, want just the first identity", fake.calls)
	}
}

func TestSendFallsThroughOnFailure(t *testing.T) {
	fake := &fakeSender{failDomains: map[string]bool{"a.com": true, "b.com": true}}
	d := newTestDispatcher(fake, "a.com", "b.com", "c.com")

	res, err := d.Send(context.Background(), &Message{To: "u@x.com"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Sent || res.Domain != "c.com" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Attempts) != 2 {
		t.Errorf("attempt trail = %+v, want the two failures", res.Attempts)
	}
}

func TestSendAllIdentitiesFail(t *testing.T) {
	fake := &fakeSender{failDomains: map[string]bool{"a.com": true, "b.com": true}}
	d := newTestDispatcher(fake, "a.com", "b.com")

	res, err := d.Send(context.Background(), &Message{To: "u@x.com"}, "")
	if err != nil {
		t.Fatalf("total delivery failure must not be a Go error, got: %v", err)
	}
	if res.Sent {
		t.Error("Sent should be false")
	}
	if len(res.Attempts) != 2 {
		t.Errorf("attempt trail = %+v", res.Attempts)
	}
}

func TestSendPreferredDomainPromoted(t *testing.T) {
	fake := &fakeSender{}
	d := newTestDispatcher(fake, "a.com", "b.com", "c.com")

	res, err := d.Send(context.Background(), &Message{To: "u@x.com"}, "B.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Domain != "b.com" {
		t.Errorf("domain = %q, want the preferred b.com", res.Domain)
	}
}

func TestSendPreferredDomainKeepsRankingForRest(t *testing.T) {
	fake := &fakeSender{failDomains: map[string]bool{"c.com": true}}
	d := newTestDispatcher(fake, "a.com", "b.com", "c.com")

	res, err := d.Send(context.Background(), &Message{To: "u@x.com"}, "c.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Preferred fails, then the original ranking resumes at a.com.
	if res.Domain != "a.com" {
		t.Errorf("domain = %q, want a.com", res.Domain)
	}
	if len(fake.calls) != 2 || fake.calls[0] != "c.com" {
		t.Errorf("call order = %v", fake.calls)
	}
}

func TestSendNoIdentitiesConfigured(t *testing.T) {
	d := NewDispatcher(config.EmailConfig{})
	if _, err := d.Send(context.Background(), &Message{To: "u@x.com"}, ""); err == nil {
		t.Fatal("expected a configuration error")
	}
}
