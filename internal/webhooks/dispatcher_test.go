package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"ai-call-gateway/internal/audit"
	"ai-call-gateway/internal/session"
	"ai-call-gateway/internal/telephony"
)

func newTestSession(t *testing.T, store *session.MemoryStore, id string, status session.Status) {
	t.Helper()
	now := time.Unix(1700000000, 0).UTC()
	err := store.Create(context.Background(), session.CallSession{
		ID:          id,
		OwnerID:     "owner-1",
		PhoneNumber: "+15551234567",
		AssistantID: "asst_1",
		Status:      session.StatusInitiating,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	switch status {
	case session.StatusInProgress:
		if _, err := store.MarkInProgress(context.Background(), id, "call_abc", "ctl_abc", now); err != nil {
			t.Fatalf("mark: %v", err)
		}
	case session.StatusInitiating:
		// as created
	default:
		t.Fatalf("unsupported seed status %s", status)
	}
}

func eventBody(t *testing.T, eventType, sessionID string, mutate func(map[string]any)) []byte {
	t.Helper()
	payload := map[string]any{}
	if sessionID != "" {
		payload["client_state"] = telephony.EncodeClientState(telephony.ClientState{
			SessionID:   sessionID,
			AssistantID: "asst_1",
		})
	}
	if mutate != nil {
		mutate(payload)
	}
	b, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"event_type":  eventType,
			"id":          "evt-1",
			"occurred_at": "2023-11-14T22:13:20Z",
			"payload":     payload,
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func newDispatcher(store session.Store) *Dispatcher {
	d := NewDispatcher(store, audit.NewService(audit.NewMemoryRepo()), nil, VerifyPolicyWarn)
	d.clock = func() time.Time { return time.Unix(1700000100, 0).UTC() }
	return d
}

func TestHandle_CallEndedCompletesSession(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	body := eventBody(t, "call.hangup", "sess-1", func(p map[string]any) {
		p["call_duration"] = 42
	})
	if err := d.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	s, _ := store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusCompleted {
		t.Fatalf("expected completed, got %s", s.Status)
	}
	if s.DurationSeconds != 42 || s.EndedAt == nil {
		t.Fatalf("expected duration and ended_at recorded: %+v", s)
	}
}

func TestHandle_CallEndedIsIdempotent(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	body := eventBody(t, "call.hangup", "sess-1", func(p map[string]any) {
		p["call_duration"] = 42
		p["end_time"] = "2023-11-14T22:14:02Z"
	})
	if err := d.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first, _ := store.Get(context.Background(), "sess-1")

	if err := d.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	second, _ := store.Get(context.Background(), "sess-1")

	if second.Status != session.StatusCompleted {
		t.Fatalf("expected completed, got %s", second.Status)
	}
	if !second.EndedAt.Equal(*first.EndedAt) || second.DurationSeconds != first.DurationSeconds {
		t.Fatalf("redelivery changed terminal fields: %+v vs %+v", first, second)
	}
	want := time.Date(2023, 11, 14, 22, 14, 2, 0, time.UTC)
	if !first.EndedAt.Equal(want) {
		t.Fatalf("expected provider end_time honored, got %v", first.EndedAt)
	}
}

func TestHandle_AnsweredAfterEndedDoesNotRegress(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	if err := d.Handle(context.Background(), eventBody(t, "call.hangup", "sess-1", nil), http.Header{}); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if err := d.Handle(context.Background(), eventBody(t, "call.answered", "sess-1", nil), http.Header{}); err != nil {
		t.Fatalf("late answered: %v", err)
	}

	s, _ := store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusCompleted {
		t.Fatalf("status regressed to %s", s.Status)
	}
}

func TestHandle_AIEndedThenHangup(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	if err := d.Handle(context.Background(), eventBody(t, "ai.ended", "sess-1", nil), http.Header{}); err != nil {
		t.Fatalf("ai.ended: %v", err)
	}
	s, _ := store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusAICompleted {
		t.Fatalf("expected ai_completed, got %s", s.Status)
	}

	if err := d.Handle(context.Background(), eventBody(t, "call.machine.detection.ended", "sess-1", nil), http.Header{}); err != nil {
		t.Fatalf("amd-complete: %v", err)
	}
	s, _ = store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusCompleted {
		t.Fatalf("expected completed, got %s", s.Status)
	}
}

func TestHandle_AnsweredHealsInitiatingSession(t *testing.T) {
	// Partial-failure window: provider accepted the call but the orchestrator
	// could not persist the identifiers. The first correlated event repairs it.
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInitiating)
	d := newDispatcher(store)

	body := eventBody(t, "call.answered", "sess-1", func(p map[string]any) {
		p["call_session_id"] = "call_abc"
		p["call_control_id"] = "ctl_abc"
	})
	if err := d.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	s, _ := store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusInProgress || s.ProviderCallID != "call_abc" {
		t.Fatalf("expected healed session, got %+v", s)
	}
}

func TestHandle_ArtifactEvents(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	cases := []struct {
		eventType string
		mutate    func(map[string]any)
		check     func(session.CallSession) error
	}{
		{
			"call.recording.saved",
			func(p map[string]any) {
				p["recording_urls"] = map[string]string{"mp3": "https://rec/a.mp3"}
			},
			func(s session.CallSession) error {
				if s.RecordingRef != "https://rec/a.mp3" {
					return fmt.Errorf("recording_ref = %q", s.RecordingRef)
				}
				return nil
			},
		},
		{
			"call.transcription.ready",
			func(p map[string]any) {
				p["transcription"] = map[string]any{"text": "hello there", "confidence": 0.9}
			},
			func(s session.CallSession) error {
				if s.Transcript != "hello there" {
					return fmt.Errorf("transcript = %q", s.Transcript)
				}
				return nil
			},
		},
		{
			"ai.transcript",
			func(p map[string]any) { p["transcript"] = "full ai transcript" },
			func(s session.CallSession) error {
				if s.Transcript != "full ai transcript" {
					return fmt.Errorf("transcript = %q", s.Transcript)
				}
				return nil
			},
		},
		{
			"ai.summary",
			func(p map[string]any) { p["summary"] = "caller wanted pricing" },
			func(s session.CallSession) error {
				if s.Insights != "caller wanted pricing" {
					return fmt.Errorf("insights = %q", s.Insights)
				}
				return nil
			},
		},
	}

	for _, tc := range cases {
		if err := d.Handle(context.Background(), eventBody(t, tc.eventType, "sess-1", tc.mutate), http.Header{}); err != nil {
			t.Fatalf("%s: %v", tc.eventType, err)
		}
		s, _ := store.Get(context.Background(), "sess-1")
		if err := tc.check(s); err != nil {
			t.Fatalf("%s: %v", tc.eventType, err)
		}
	}
}

func TestHandle_LateRecordingAfterCompletionStillRecorded(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	if err := d.Handle(context.Background(), eventBody(t, "call.hangup", "sess-1", nil), http.Header{}); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	body := eventBody(t, "call.recording.saved", "sess-1", func(p map[string]any) {
		p["recording_urls"] = map[string]string{"wav": "https://rec/late.wav"}
	})
	if err := d.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("late recording: %v", err)
	}

	s, _ := store.Get(context.Background(), "sess-1")
	if s.RecordingRef != "https://rec/late.wav" {
		t.Fatalf("late artifact dropped: %+v", s)
	}
	if s.Status != session.StatusCompleted {
		t.Fatalf("status must stay completed, got %s", s.Status)
	}
}

func TestHandle_UnknownSessionIsAcknowledged(t *testing.T) {
	d := newDispatcher(session.NewMemoryStore())

	body := eventBody(t, "call.hangup", "no-such-session", nil)
	if err := d.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("expected acknowledgment, got %v", err)
	}
}

func TestHandle_UncorrelatedEventSkipsTransition(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	// Well-formed event, garbage client_state.
	body := eventBody(t, "call.hangup", "", func(p map[string]any) {
		p["client_state"] = "%%%garbage%%%"
	})
	if err := d.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("expected acknowledgment, got %v", err)
	}

	s, _ := store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusInProgress {
		t.Fatalf("uncorrelated event must not touch sessions, got %s", s.Status)
	}
}

func TestHandle_UnparseableBody(t *testing.T) {
	d := newDispatcher(session.NewMemoryStore())

	for _, body := range []string{"not json", `"just a string"`, `[1,2]`} {
		err := d.Handle(context.Background(), []byte(body), http.Header{})
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%q: expected ErrInvalidPayload, got %v", body, err)
		}
	}
}

func TestHandle_MissingEventTypeIsAcknowledged(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	// Well-formed envelopes with no event type are not a parse failure; they
	// are acknowledged like any other unrecognized delivery.
	for _, body := range []string{`{}`, `{"data":{}}`, `{"payload":{"call_duration":42}}`} {
		if err := d.Handle(context.Background(), []byte(body), http.Header{}); err != nil {
			t.Fatalf("%q: expected acknowledgment, got %v", body, err)
		}
	}

	s, _ := store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusInProgress {
		t.Fatalf("typeless delivery must not touch sessions, got %s", s.Status)
	}
}

func TestHandle_UnrecognizedEventTypeIsNoOp(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := newDispatcher(store)

	if err := d.Handle(context.Background(), eventBody(t, "call.dtmf.received", "sess-1", nil), http.Header{}); err != nil {
		t.Fatalf("expected acknowledgment, got %v", err)
	}
	s, _ := store.Get(context.Background(), "sess-1")
	if s.Status != session.StatusInProgress {
		t.Fatalf("unrecognized event must be a no-op, got %s", s.Status)
	}
}

type failingVerifier struct{}

func (failingVerifier) Verify(ctx context.Context, body []byte, header http.Header) error {
	return errors.New("bad signature")
}

func TestHandle_VerifyPolicies(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	body := eventBody(t, "call.hangup", "sess-1", nil)

	enforce := NewDispatcher(store, nil, failingVerifier{}, VerifyPolicyEnforce)
	if err := enforce.Handle(context.Background(), body, http.Header{}); !errors.Is(err, ErrUnverified) {
		t.Fatalf("enforce: expected ErrUnverified, got %v", err)
	}
	if s, _ := store.Get(context.Background(), "sess-1"); s.Status != session.StatusInProgress {
		t.Fatalf("enforce: rejected delivery must not be processed")
	}

	repo := audit.NewMemoryRepo()
	warn := NewDispatcher(store, audit.NewService(repo), failingVerifier{}, VerifyPolicyWarn)
	if err := warn.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("warn: expected processing, got %v", err)
	}
	if s, _ := store.Get(context.Background(), "sess-1"); s.Status != session.StatusCompleted {
		t.Fatalf("warn: delivery must still be processed")
	}
	var sawWarning bool
	for _, e := range repo.Events() {
		if e.Type == audit.EventTypeWebhookUnverified {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Fatalf("warn: expected an unverified-delivery event recorded")
	}

	store2 := session.NewMemoryStore()
	newTestSession(t, store2, "sess-1", session.StatusInProgress)
	ignore := NewDispatcher(store2, nil, failingVerifier{}, VerifyPolicyIgnore)
	if err := ignore.Handle(context.Background(), body, http.Header{}); err != nil {
		t.Fatalf("ignore: %v", err)
	}
}

func TestParseEnvelope_FlatShape(t *testing.T) {
	body := []byte(`{"event_type":"call.answered","payload":{"call_control_id":"ctl_1"}}`)
	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.EventType != "call.answered" || env.Payload.CallControlID != "ctl_1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestParseEnvelope_NestedShapeWins(t *testing.T) {
	body := []byte(`{"data":{"event_type":"call.hangup","payload":{"call_duration":7}}}`)
	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.EventType != "call.hangup" || env.Payload.CallDuration != 7 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
