package calls

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"ai-call-gateway/internal/audit"
	"ai-call-gateway/internal/session"
	"ai-call-gateway/internal/telephony"
	"ai-call-gateway/pkg/logger"

	"github.com/google/uuid"
)

// Service orchestrates call initiation and serves owner-scoped session reads.
//
// Initiation ordering invariant: the session id is generated and the record
// persisted BEFORE the provider is contacted. The provider call is associated
// with the record by construction (via the client-state token), never derived
// from the provider's response.
//
// The store mutation after placement and the placement itself are two separate
// operations with a known partial-failure window; see Initiate.
type Service struct {
	store    session.Store
	provider telephony.CallProvider

	// events is optional best-effort lifecycle logging.
	events *audit.Service

	// limiter is an optional per-owner in-flight initiation cap.
	limiter Limiter

	// clock and newID are injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

func NewService(store session.Store, provider telephony.CallProvider, events *audit.Service, limiter Limiter) *Service {
	return &Service{
		store:    store,
		provider: provider,
		events:   events,
		limiter:  limiter,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

var (
	ErrInvalidRequest = errors.New("calls: invalid request")

	// ErrTooManyCalls is returned when the per-owner initiation cap is hit.
	ErrTooManyCalls = errors.New("calls: too many concurrent call initiations")
)

// ValidationError carries field-level detail for a rejected request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("calls: invalid request: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// phonePattern accepts international dialing numbers: optional leading +,
// 2-15 digits, first digit non-zero.
var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

type InitiateRequest struct {
	PhoneNumber   string `json:"phone_number"`
	AssistantID   string `json:"assistant_id"`
	AssistantName string `json:"assistant_name,omitempty"`
}

func (r InitiateRequest) validate() error {
	if !phonePattern.MatchString(r.PhoneNumber) {
		return &ValidationError{Field: "phone_number", Reason: "must be an international dialing number (optional +, 2-15 digits, non-zero first digit)"}
	}
	// Assistant ids are opaque provider strings, not any particular id format.
	if r.AssistantID == "" {
		return &ValidationError{Field: "assistant_id", Reason: "is required"}
	}
	return nil
}

type InitiateResult struct {
	SessionID      string `json:"session_id"`
	ProviderCallID string `json:"provider_call_id"`
}

// Initiate validates the request, persists a session in `initiating`, places
// the call, and advances the session to `in_progress` with the provider's
// identifiers.
//
// Failure semantics:
// - validation failure: no side effects.
// - store create failure: no provider call placed.
// - provider failure: session stays `initiating` (no retry here; an external
//   sweep or a later correlated webhook settles it), error surfaced with
//   provider detail.
// - store update failure after acceptance: the call is live but the record
//   still says `initiating`. Reported via log and the event log, not hidden;
//   the first correlated webhook heals the record.
func (s *Service) Initiate(ctx context.Context, ownerID string, req InitiateRequest) (InitiateResult, error) {
	log := logger.From(ctx)

	if ownerID == "" {
		return InitiateResult{}, &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if err := req.validate(); err != nil {
		return InitiateResult{}, err
	}

	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx, ownerID)
		if err != nil {
			// Cap accounting is best-effort; an unavailable limiter must not
			// take call initiation down with it.
			log.Warn("initiation cap check failed, proceeding", "owner_id", ownerID, "err", err)
		} else if !ok {
			return InitiateResult{}, ErrTooManyCalls
		}
	}

	now := s.clock().UTC()
	sess := session.CallSession{
		ID:            s.newID(),
		OwnerID:       ownerID,
		PhoneNumber:   req.PhoneNumber,
		AssistantID:   req.AssistantID,
		AssistantName: req.AssistantName,
		Status:        session.StatusInitiating,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, sess); err != nil {
		s.releaseCap(ctx, ownerID)
		return InitiateResult{}, fmt.Errorf("calls: creating session: %w", err)
	}

	placed, err := s.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:          req.PhoneNumber,
		AssistantID: req.AssistantID,
		ClientState: telephony.EncodeClientState(telephony.ClientState{
			SessionID:   sess.ID,
			AssistantID: req.AssistantID,
		}),
	})
	if err != nil {
		log.Error("call placement failed", "session_id", sess.ID, "err", err)
		s.logEvent(ctx, audit.EventTypeCallPlaceFailed, ownerID, sess.ID, "", err.Error())
		s.releaseCap(ctx, ownerID)
		return InitiateResult{}, err
	}

	if _, err := s.store.MarkInProgress(ctx, sess.ID, placed.ProviderCallID, placed.ProviderControlID, s.clock().UTC()); err != nil {
		// The call is already live at the provider. Surface the discrepancy
		// and let webhook correlation settle the record.
		log.Error("session update failed after call placement",
			"session_id", sess.ID, "provider_call_id", placed.ProviderCallID, "err", err)
		s.logEvent(ctx, audit.EventTypeCallUpdateFailed, ownerID, sess.ID, placed.ProviderCallID, err.Error())
	} else {
		s.logEvent(ctx, audit.EventTypeCallInitiated, ownerID, sess.ID, placed.ProviderCallID, "call placed")
	}

	return InitiateResult{SessionID: sess.ID, ProviderCallID: placed.ProviderCallID}, nil
}

// Get is the owner-scoped point lookup. A session owned by another caller is
// reported as session.ErrNotFound, same as an absent one.
func (s *Service) Get(ctx context.Context, ownerID, sessionID string) (session.CallSession, error) {
	if ownerID == "" || sessionID == "" {
		return session.CallSession{}, session.ErrNotFound
	}
	return s.store.GetOwned(ctx, ownerID, sessionID)
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

type ListResult struct {
	Items  []session.CallSession `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// List returns the owner's sessions ordered newest-first.
// limit/offset are caller-supplied and clamped to sane values.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) (ListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.store.List(ctx, ownerID, limit, offset)
	if err != nil {
		return ListResult{}, fmt.Errorf("calls: listing sessions: %w", err)
	}
	return ListResult{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) releaseCap(ctx context.Context, ownerID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, ownerID); err != nil {
		logger.From(ctx).Warn("initiation cap release failed", "owner_id", ownerID, "err", err)
	}
}

func (s *Service) logEvent(ctx context.Context, typ audit.EventType, ownerID, sessionID, providerCallID, message string) {
	if s.events == nil {
		return
	}
	if err := s.events.LogInitiation(ctx, typ, ownerID, sessionID, providerCallID, message); err != nil {
		logger.From(ctx).Warn("event log append failed", "type", string(typ), "err", err)
	}
}
