package reporting

import (
	"context"
	"errors"
	"time"

	"ai-call-gateway/internal/session"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// Implementations must enforce owner filtering.
type Repository interface {
	ListSessions(ctx context.Context, ownerID string, from, to time.Time) ([]session.CallSession, error)
}

// StoreRepository serves reporting reads straight from the session store.
type StoreRepository struct {
	store session.Store
}

func NewStoreRepository(store session.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func (r *StoreRepository) ListSessions(ctx context.Context, ownerID string, from, to time.Time) ([]session.CallSession, error) {
	return r.store.ListCreatedBetween(ctx, ownerID, from, to)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OwnerID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListSessions(ctx, req.OwnerID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{OwnerID: req.OwnerID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingRef != "" {
			out.RecordedCalls++
		}
		if c.Transcript != "" {
			out.TranscribedCalls++
		}
		switch c.Status {
		case session.StatusCompleted:
			out.CompletedCalls++
		case session.StatusFailed:
			out.FailedCalls++
		case session.StatusInProgress:
			out.InProgressCalls++
		case session.StatusAICompleted:
			out.AICompletedCalls++
		case session.StatusInitiating:
			out.InitiatingCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}
