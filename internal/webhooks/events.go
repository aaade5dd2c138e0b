package webhooks

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidPayload is the only webhook failure surfaced to the HTTP layer:
// a body that cannot be parsed at all is the one case we do not acknowledge.
var ErrInvalidPayload = errors.New("webhooks: invalid payload")

// Envelope is the provider's event envelope. The provider has shipped both a
// nested shape (`{"data": {"event_type": ..., "payload": {...}}}`) and a flat
// one (`{"event_type": ..., "payload": {...}}`); ParseEnvelope normalizes to
// this struct so nothing downstream sees the difference.
type Envelope struct {
	EventType  string
	EventID    string
	OccurredAt string
	Payload    Payload
}

// Payload is the subset of provider event fields the dispatcher consumes.
type Payload struct {
	CallControlID string `json:"call_control_id"`
	CallSessionID string `json:"call_session_id"`
	CallLegID     string `json:"call_leg_id"`

	From  string `json:"from"`
	To    string `json:"to"`
	State string `json:"state"`

	// ClientState is the correlation token echoed back by the provider.
	ClientState string `json:"client_state"`

	EndTime      string `json:"end_time"`
	CallDuration int    `json:"call_duration"`

	RecordingURLs struct {
		MP3 string `json:"mp3"`
		WAV string `json:"wav"`
	} `json:"recording_urls"`

	Transcription struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"transcription"`

	// AI event fields.
	Summary    string `json:"summary"`
	Transcript string `json:"transcript"`
}

type wireEvent struct {
	EventType  string  `json:"event_type"`
	ID         string  `json:"id"`
	OccurredAt string  `json:"occurred_at"`
	Payload    Payload `json:"payload"`

	Data *struct {
		EventType  string  `json:"event_type"`
		ID         string  `json:"id"`
		OccurredAt string  `json:"occurred_at"`
		Payload    Payload `json:"payload"`
	} `json:"data"`
}

// ParseEnvelope decodes a raw webhook body, accepting both envelope shapes.
// Only a body that cannot be decoded at all is rejected as ErrInvalidPayload;
// a well-formed envelope with no event type is returned as-is and classified
// as unrecognized downstream, so the delivery is still acknowledged.
func ParseEnvelope(body []byte) (Envelope, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Envelope{}, ErrInvalidPayload
	}

	e := Envelope{
		EventType:  w.EventType,
		EventID:    w.ID,
		OccurredAt: w.OccurredAt,
		Payload:    w.Payload,
	}
	if w.Data != nil && w.Data.EventType != "" {
		e.EventType = w.Data.EventType
		e.EventID = w.Data.ID
		e.OccurredAt = w.Data.OccurredAt
		e.Payload = w.Data.Payload
	}
	return e, nil
}

// endedAt resolves the terminal timestamp: provider end_time when present and
// well-formed, otherwise the supplied fallback.
func (e Envelope) endedAt(fallback time.Time) time.Time {
	if e.Payload.EndTime != "" {
		if t, err := time.Parse(time.RFC3339, e.Payload.EndTime); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// eventKind is the normalized classification the transition table keys on.
type eventKind int

const (
	kindUnrecognized eventKind = iota
	kindCallInitiated
	kindCallAnswered
	kindAIEnded
	kindCallEnded
	kindRecording
	kindTranscript
	kindSummary
)

// classify maps raw provider event types onto transitions. Hangup, bridge
// completion and answering-machine-detection completion are equivalent
// terminal signals.
func classify(eventType string) eventKind {
	switch eventType {
	case "call.initiated":
		return kindCallInitiated
	case "call.answered":
		return kindCallAnswered
	case "ai.ended":
		return kindAIEnded
	case "call.hangup", "call.bridged", "call.machine.detection.ended":
		return kindCallEnded
	case "call.recording.saved":
		return kindRecording
	case "call.transcription.ready", "ai.transcript":
		return kindTranscript
	case "ai.summary", "ai.intent":
		return kindSummary
	default:
		return kindUnrecognized
	}
}
