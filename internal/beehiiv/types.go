package beehiiv

// Status is the normalized outcome of a subscription attempt. The remote API
// does not reliably distinguish "new" from "existing" across its response
// shapes, so every caller sees only these three values.
type Status string

const (
	// StatusSubscribed means a fresh subscription was accepted.
	StatusSubscribed Status = "subscribed"
	// StatusAlreadySubscribed means the platform already knew the address
	// (explicit status field or duplicate-flavored response text). Treated
	// identically to StatusSubscribed downstream: eligible for the welcome
	// email, not an error.
	StatusAlreadySubscribed Status = "already_subscribed"
	// StatusFailed means the platform rejected the subscription or was
	// unreachable after retries.
	StatusFailed Status = "failed"
)

// Registered reports whether the platform holds a live subscription.
func (s Status) Registered() bool {
	return s == StatusSubscribed || s == StatusAlreadySubscribed
}

// SubscribeRequest carries one registration attempt.
type SubscribeRequest struct {
	Email       string
	Source      string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

// Result is the normalized outcome returned to the coordinator.
type Result struct {
	Status         Status
	SubscriptionID string
	// Detail holds the raw error or platform message for logging; callers
	// must not branch on its contents (that's this package's job).
	Detail string
}

// subscriptionPayload is the wire format for POST /subscriptions.
type subscriptionPayload struct {
	Email              string `json:"email"`
	ReactivateExisting bool   `json:"reactivate_existing"`
	DoubleOptIn        bool   `json:"double_opt_in"`
	Source             string `json:"source,omitempty"`
	UTMSource          string `json:"utm_source,omitempty"`
	UTMMedium          string `json:"utm_medium,omitempty"`
	UTMCampaign        string `json:"utm_campaign,omitempty"`
}

// subscriptionResponse is the wire format of a 2xx subscription body.
type subscriptionResponse struct {
	Data struct {
		ID     string `json:"id"`
		Email  string `json:"email"`
		Status string `json:"status"`
	} `json:"data"`
}

// errorResponse is the wire format of a non-2xx body. The platform is not
// consistent about which field carries the message.
type errorResponse struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Errors   []string `json:"errors"`
	StatusCd int      `json:"status"`
}
