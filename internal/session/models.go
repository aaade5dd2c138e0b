package session

import "time"

// CallSession tracks one outbound AI-assisted call from creation to termination.
//
// Invariants:
// - ID is generated before the provider is contacted and never changes.
// - Status only moves forward along the ordering below; redelivered or
//   out-of-order provider events must never move it backwards.
// - ProviderCallID/ProviderControlID are written once and never overwritten.
// - EndedAt/DurationSeconds are set at most once, on the terminal transition.
// - Every mutation bumps UpdatedAt.
//
// Provider-specific raw payloads do not belong here; the telephony adapter
// normalizes them before anything reaches this model.

type CallSession struct {
	ID      string `json:"id" db:"id"`
	OwnerID string `json:"owner_id" db:"owner_id"`

	PhoneNumber   string `json:"phone_number" db:"phone_number"`
	AssistantID   string `json:"assistant_id" db:"assistant_id"`
	AssistantName string `json:"assistant_name,omitempty" db:"assistant_name"`

	Status Status `json:"status" db:"status"`

	// Provider identifiers, known only after the provider accepts the call.
	ProviderCallID    string `json:"provider_call_id,omitempty" db:"provider_call_id"`
	ProviderControlID string `json:"provider_control_id,omitempty" db:"provider_control_id"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is reported by the provider on the terminal event.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// AI-produced artifacts, stored opaquely. Last write wins; late deliveries
	// after a terminal transition are still accepted.
	RecordingRef string `json:"recording_ref,omitempty" db:"recording_ref"`
	Transcript   string `json:"transcript,omitempty" db:"transcript"`
	Insights     string `json:"insights,omitempty" db:"insights"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusInitiating  Status = "initiating"
	StatusInProgress  Status = "in_progress"
	StatusAICompleted Status = "ai_completed"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// rank orders statuses for the non-regression rule:
// initiating < in_progress < ai_completed < completed/failed.
func (s Status) rank() int {
	switch s {
	case StatusInitiating:
		return 0
	case StatusInProgress:
		return 1
	case StatusAICompleted:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return -1
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to target respects forward-only
// ordering. Equal-rank moves are allowed only for self-transitions (idempotent
// redelivery); a terminal state never changes to the other terminal state.
func (s Status) CanTransitionTo(target Status) bool {
	if s.rank() < 0 || target.rank() < 0 {
		return false
	}
	if s.IsTerminal() {
		return s == target
	}
	return target.rank() >= s.rank()
}
