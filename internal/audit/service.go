package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for lifecycle events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call-lifecycle events.
//
// IMPORTANT:
// - This log is internal-only. Do not expose these records to callers.
// - Callers should treat event logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogInitiation records the outcome of a call initiation attempt.
func (s *Service) LogInitiation(ctx context.Context, typ EventType, ownerID, sessionID, providerCallID, message string) error {
	return s.Append(ctx, Event{
		Type:           typ,
		OwnerID:        ownerID,
		SessionID:      sessionID,
		ProviderCallID: providerCallID,
		Message:        message,
	})
}

// LogWebhook records an inbound provider webhook delivery.
func (s *Service) LogWebhook(ctx context.Context, typ EventType, providerEventType, sessionID, providerCallID, message string) error {
	return s.Append(ctx, Event{
		Type:              typ,
		ProviderEventType: providerEventType,
		SessionID:         sessionID,
		ProviderCallID:    providerCallID,
		Message:           message,
	})
}
