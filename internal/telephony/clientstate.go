package telephony

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ClientState is the correlation token round-tripped through the provider's
// pass-through metadata field. The provider never interprets it; it is echoed
// unmodified on every webhook for the call, which is the only way an inbound
// event can be re-associated with the originating session.
//
// Wire format: base64(JSON). Keep it stable; in-flight calls carry the format
// that was current when they were placed.
type ClientState struct {
	SessionID   string `json:"sessionId"`
	AssistantID string `json:"assistantId"`
}

func EncodeClientState(s ClientState) string {
	b, _ := json.Marshal(s)
	return base64.StdEncoding.EncodeToString(b)
}

var errEmptyClientState = errors.New("telephony: empty client state")

// DecodeClientState parses a token echoed back by the provider. Malformed or
// missing tokens are an expected condition (events can originate outside our
// flow), so callers should treat an error as "uncorrelated", not as a failure.
func DecodeClientState(raw string) (ClientState, error) {
	if raw == "" {
		return ClientState{}, errEmptyClientState
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ClientState{}, err
	}
	var s ClientState
	if err := json.Unmarshal(b, &s); err != nil {
		return ClientState{}, err
	}
	if s.SessionID == "" {
		return ClientState{}, errors.New("telephony: client state missing session id")
	}
	return s, nil
}
