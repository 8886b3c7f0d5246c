package events

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every platform event under autobot.events.>.
const StreamEvents = "AUTOBOT_EVENTS"

// Subject constants.
const (
	SubjectInteraction = "autobot.events.interaction"
	SubjectWebhook     = "autobot.events.webhook"
	SubjectAudit       = "autobot.events.audit"
)

// InteractionEvent is published after every chat exchange.
type InteractionEvent struct {
	UserID    string    `json:"user_id"`
	Question  string    `json:"question"`
	Category  string    `json:"category,omitempty"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookEvent is published when a vendor webhook is processed.
type WebhookEvent struct {
	Vendor    string    `json:"vendor"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEvent is published for compliance logging and persisted by the audit
// consumer.
type AuditEvent struct {
	Actor        string    `json:"actor"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
