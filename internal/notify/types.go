// Package notify implements multi-channel notification dispatch: a
// preference filter, one adapter per delivery channel (in-app, email,
// SMS, push), and a concurrent dispatch engine that fans a payload out
// across channels and reports a per-channel verdict.
//
// Adapters never propagate provider or network failures; every attempt
// resolves to a DispatchResult. Missing recipient data or provider
// configuration yields a "skipped" result, a rejected or failed network
// call yields "failed".
package notify

import "net/http"

// Channel identifies a notification delivery channel.
// The set is closed; adding a channel means adding an adapter.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Priority is the urgency attached to a notification payload.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Payload is the channel-agnostic content of a notification. It is
// constructed per dispatch call and never mutated.
type Payload struct {
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	ActionLink string                 `json:"action_link,omitempty"`
	ActionData map[string]interface{} `json:"action_data,omitempty"`
	Priority   Priority               `json:"priority,omitempty"`
}

// ContactInfo carries the recipient's reachable addresses. Every field
// is optional; a channel whose field is empty is reported as skipped.
type ContactInfo struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	PushToken string `json:"push_token,omitempty"`
	FullName  string `json:"full_name,omitempty"`
}

// DispatchStatus is the per-channel delivery verdict.
type DispatchStatus string

const (
	// StatusSent means the provider accepted the request.
	StatusSent DispatchStatus = "sent"
	// StatusFailed means the channel was attempted and the provider
	// rejected it, or the network call itself failed.
	StatusFailed DispatchStatus = "failed"
	// StatusSkipped means the channel could not be attempted at all:
	// missing recipient data or missing provider configuration.
	StatusSkipped DispatchStatus = "skipped"
)

// DispatchResult is the outcome of one channel attempt. Detail is set
// whenever the status is failed or skipped.
type DispatchResult struct {
	Channel Channel        `json:"channel"`
	Status  DispatchStatus `json:"status"`
	Detail  string         `json:"detail,omitempty"`
}

// Doer is the outbound HTTP transport used by channel adapters. It is
// satisfied by *http.Client and swapped for a stub in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DispatchContext bundles provider credentials and sender identities
// for every channel, resolved once per process (or per call in tests).
// It is read-only for the duration of a dispatch.
type DispatchContext struct {
	EmailAPIKey   string
	EmailFrom     string
	EmailFromName string

	SMSAccountSID string
	SMSAuthToken  string
	SMSFromNumber string

	FCMServerKey string

	// Transport overrides the HTTP client used for provider calls.
	// Nil falls back to a shared client with a 30 second timeout.
	Transport Doer
}

var defaultTransport Doer = &http.Client{Timeout: defaultHTTPTimeout}

func (dc DispatchContext) transport() Doer {
	if dc.Transport != nil {
		return dc.Transport
	}
	return defaultTransport
}
