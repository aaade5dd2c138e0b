package audit

import "time"

// Event is an immutable, append-only operational log record for the call
// lifecycle: initiation attempts and their outcomes, and webhook deliveries.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; critical flows must never block on audit failures.
//
// This log is what makes the partial-failure window observable: a call the
// provider accepted whose session update failed shows up here as a
// call_update_failed event against a session still marked initiating.
//
// Storage (Postgres): table call_events with an INSERT-only policy.
// Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the lifecycle category of the record.
	Type EventType `json:"type" db:"type"`

	// OwnerID is set when the triggering request carried caller identity.
	// Webhook-driven events have no caller; the field stays empty.
	OwnerID string `json:"owner_id,omitempty" db:"owner_id"`

	// Target identifiers (optional, depending on the event type).
	SessionID      string `json:"session_id,omitempty" db:"session_id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// ProviderEventType is the raw webhook event type, if any.
	ProviderEventType string `json:"provider_event_type,omitempty" db:"provider_event_type"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallInitiated     EventType = "call_initiated"
	EventTypeCallPlaceFailed   EventType = "call_place_failed"
	EventTypeCallUpdateFailed  EventType = "call_update_failed"
	EventTypeWebhookReceived   EventType = "webhook_received"
	EventTypeWebhookUnverified EventType = "webhook_unverified"
)
