package webhooks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ai-call-gateway/internal/audit"
	"ai-call-gateway/internal/session"
	"ai-call-gateway/internal/telephony"
	"ai-call-gateway/pkg/logger"
)

// Dispatcher maps inbound provider events onto session-state transitions.
//
// Contract: every delivery that parses is acknowledged, whatever else goes
// wrong. Events are redelivered and may arrive out of order or concurrently;
// the store's conditional transition writes are the ordering defense, so each
// event is applied as an independent idempotent update and a skipped
// transition is normal operation, not an error. Returning errors for
// conditions we cannot recover from would only provoke provider-side
// redelivery storms.
type Dispatcher struct {
	store  session.Store
	events *audit.Service

	// verifier is the pluggable origin-verification step; policy decides
	// what its absence or failure means.
	verifier Verifier
	policy   VerifyPolicy

	clock func() time.Time
}

func NewDispatcher(store session.Store, events *audit.Service, verifier Verifier, policy VerifyPolicy) *Dispatcher {
	if !policy.Valid() {
		policy = VerifyPolicyWarn
	}
	return &Dispatcher{
		store:    store,
		events:   events,
		verifier: verifier,
		policy:   policy,
		clock:    time.Now,
	}
}

// Handle processes one raw webhook delivery.
// Returns ErrInvalidPayload when the body cannot be parsed, ErrUnverified
// when the enforce policy rejects the delivery, and nil otherwise.
func (d *Dispatcher) Handle(ctx context.Context, body []byte, header http.Header) error {
	log := logger.From(ctx)

	if d.policy != VerifyPolicyIgnore {
		if err := d.verify(ctx, body, header); err != nil {
			if d.policy == VerifyPolicyEnforce {
				log.Warn("webhook rejected: origin not verified", "err", err)
				return ErrUnverified
			}
			log.Warn("webhook origin not verified, processing anyway", "err", err)
			d.logEvent(ctx, audit.EventTypeWebhookUnverified, "", "", "", err.Error())
		}
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		log.Warn("webhook body unparseable")
		return err
	}
	log = log.With("event_type", env.EventType)

	// Correlate. A missing or mangled token is expected for events that
	// originate outside our flow; those are logged and acknowledged.
	state, stateErr := telephony.DecodeClientState(env.Payload.ClientState)
	if stateErr == nil {
		log = log.With("session_id", state.SessionID)
	}

	kind := classify(env.EventType)
	d.logEvent(ctx, audit.EventTypeWebhookReceived, env.EventType, state.SessionID, env.Payload.CallSessionID, "")

	if kind == kindUnrecognized {
		log.Info("unrecognized webhook event type, ignoring")
		return nil
	}
	if kind == kindCallInitiated {
		// Informational: the session was created by the orchestrator before
		// the provider ever saw the call.
		log.Debug("provider confirmed call initiation", "provider_call_id", env.Payload.CallSessionID)
		return nil
	}
	if stateErr != nil {
		log.Warn("webhook not correlated to a session, skipping transition", "err", stateErr)
		return nil
	}

	if err := d.apply(ctx, kind, state.SessionID, env); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			log.Warn("webhook references unknown session")
		} else {
			// Storage unavailable or similar: absorbed here, surfaced via
			// logs and the event log, still acknowledged.
			log.Error("webhook transition failed", "err", err)
		}
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, kind eventKind, sessionID string, env Envelope) error {
	log := logger.From(ctx)
	now := d.clock().UTC()

	switch kind {
	case kindCallAnswered:
		applied, err := d.store.MarkInProgress(ctx, sessionID,
			env.Payload.CallSessionID, env.Payload.CallControlID, now)
		if err != nil {
			return err
		}
		if !applied {
			log.Debug("answered event was a no-op", "session_id", sessionID)
		}
		return nil

	case kindAIEnded:
		_, err := d.store.MarkAICompleted(ctx, sessionID, now)
		return err

	case kindCallEnded:
		applied, err := d.store.MarkCompleted(ctx, sessionID,
			env.endedAt(now), env.Payload.CallDuration, now)
		if err != nil {
			return err
		}
		if !applied {
			log.Debug("terminal event redelivered, already settled", "session_id", sessionID)
		}
		return nil

	case kindRecording:
		ref := env.Payload.RecordingURLs.MP3
		if ref == "" {
			ref = env.Payload.RecordingURLs.WAV
		}
		if ref == "" {
			log.Warn("recording event without a recording url", "session_id", sessionID)
			return nil
		}
		return d.store.SetRecordingRef(ctx, sessionID, ref, now)

	case kindTranscript:
		text := env.Payload.Transcription.Text
		if text == "" {
			text = env.Payload.Transcript
		}
		if text == "" {
			return nil
		}
		return d.store.SetTranscript(ctx, sessionID, text, now)

	case kindSummary:
		if env.Payload.Summary == "" {
			return nil
		}
		return d.store.SetInsights(ctx, sessionID, env.Payload.Summary, now)
	}
	return nil
}

func (d *Dispatcher) verify(ctx context.Context, body []byte, header http.Header) error {
	if d.verifier == nil {
		return errors.New("webhooks: no verifier configured")
	}
	return d.verifier.Verify(ctx, body, header)
}

func (d *Dispatcher) logEvent(ctx context.Context, typ audit.EventType, providerEventType, sessionID, providerCallID, message string) {
	if d.events == nil {
		return
	}
	if err := d.events.LogWebhook(ctx, typ, providerEventType, sessionID, providerCallID, message); err != nil {
		logger.From(ctx).Warn("event log append failed", "type", string(typ), "err", err)
	}
}
