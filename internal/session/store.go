package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session: not found")

// Store is the durable record store for call sessions.
//
// Transition methods (Mark*) are conditional writes: they apply only when the
// current status permits the move, and return applied=false when the write was
// skipped as a duplicate or out-of-order delivery. A skipped transition is not
// an error; provider webhooks are redelivered and may race, and the
// conditional write is the only ordering defense (no per-session lock).
//
// Artifact setters (Set*) are unconditional last-write-wins updates; late
// recordings/transcripts after a terminal transition are still recorded.
//
// Every mutation sets updated_at to the supplied time.
type Store interface {
	Create(ctx context.Context, s CallSession) error

	// Get looks a session up by id alone. Used by the webhook dispatcher,
	// which has no caller identity.
	Get(ctx context.Context, id string) (CallSession, error)

	// GetOwned is the owner-scoped lookup. A session owned by someone else is
	// indistinguishable from an absent one: both return ErrNotFound.
	GetOwned(ctx context.Context, ownerID, id string) (CallSession, error)

	// List returns the owner's sessions ordered by created_at descending,
	// plus the owner's total session count.
	List(ctx context.Context, ownerID string, limit, offset int) ([]CallSession, int, error)

	// ListCreatedBetween returns the owner's sessions created in [from, to).
	ListCreatedBetween(ctx context.Context, ownerID string, from, to time.Time) ([]CallSession, error)

	// MarkInProgress advances initiating -> in_progress and records provider
	// identifiers. Provider IDs are write-once: if already set they are kept.
	// Also applied for an in_progress session whose provider IDs are still
	// missing (the orchestrator's post-placement update may have failed).
	MarkInProgress(ctx context.Context, id, providerCallID, providerControlID string, now time.Time) (bool, error)

	// MarkAICompleted advances to ai_completed.
	MarkAICompleted(ctx context.Context, id string, now time.Time) (bool, error)

	// MarkCompleted advances to completed, setting ended_at and duration
	// exactly once. Redelivery against an already-completed session is a no-op.
	MarkCompleted(ctx context.Context, id string, endedAt time.Time, durationSeconds int, now time.Time) (bool, error)

	// MarkFailed advances a non-terminal session to failed.
	MarkFailed(ctx context.Context, id string, now time.Time) (bool, error)

	SetRecordingRef(ctx context.Context, id, ref string, now time.Time) error
	SetTranscript(ctx context.Context, id, transcript string, now time.Time) error
	SetInsights(ctx context.Context, id, insights string, now time.Time) error
}
