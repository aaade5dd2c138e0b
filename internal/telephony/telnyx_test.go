package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *TelnyxProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTelnyxProvider(TelnyxConfig{
		APIKey:       "key-123",
		ConnectionID: "conn-1",
		FromNumber:   "+27600137472",
		WebhookURL:   "https://example.test/webhooks/telnyx",
		BaseURL:      srv.URL,
	}, srv.Client())
}

func TestPlaceCall_WrappedResponse(t *testing.T) {
	var gotBody telnyxCallRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/calls" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"call_abc","call_control_id":"ctl_abc"}}`))
	})

	res, err := p.PlaceCall(context.Background(), PlaceCallRequest{
		To:          "+15551234567",
		AssistantID: "asst_1",
		ClientState: "token",
	})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if res.ProviderCallID != "call_abc" || res.ProviderControlID != "ctl_abc" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if gotBody.ConnectionID != "conn-1" || gotBody.To != "+15551234567" || gotBody.From != "+27600137472" {
		t.Fatalf("unexpected outbound payload: %+v", gotBody)
	}
	if gotBody.ClientState != "token" || gotBody.AI.AssistantID != "asst_1" {
		t.Fatalf("client state / assistant not forwarded: %+v", gotBody)
	}
	if gotBody.Record != "record-from-answer" || gotBody.AnsweringMachineDetection != "detect" {
		t.Fatalf("call options missing: %+v", gotBody)
	}
}

func TestPlaceCall_FlatResponseWithSessionID(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"call_session_id":"sess_9","call_control_id":"ctl_9"}`))
	})

	res, err := p.PlaceCall(context.Background(), PlaceCallRequest{To: "+15551234567", AssistantID: "a"})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if res.ProviderCallID != "sess_9" || res.ProviderControlID != "ctl_9" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPlaceCall_ProviderRejection(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"detail":"invalid destination number"}]}`))
	})

	_, err := p.PlaceCall(context.Background(), PlaceCallRequest{To: "+15551234567", AssistantID: "a"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusUnprocessableEntity || pe.Detail != "invalid destination number" {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
}

func TestPlaceCall_NonJSONErrorBody(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	})

	_, err := p.PlaceCall(context.Background(), PlaceCallRequest{To: "+15551234567", AssistantID: "a"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Detail != "upstream exploded" {
		t.Fatalf("expected raw body as detail, got %q", pe.Detail)
	}
}

func TestStartAssistant(t *testing.T) {
	var called bool
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.URL.Path != "/v2/calls/ctl_abc/actions/ai_assistant_start" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body struct {
			Assistant struct {
				ID string `json:"id"`
			} `json:"assistant"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Assistant.ID != "asst_1" {
			t.Fatalf("unexpected body (err=%v): %+v", err, body)
		}
		w.Write([]byte(`{"data":{"result":"ok"}}`))
	})

	if err := p.StartAssistant(context.Background(), "ctl_abc", "asst_1"); err != nil {
		t.Fatalf("start assistant: %v", err)
	}
	if !called {
		t.Fatalf("expected provider call")
	}

	if err := p.StartAssistant(context.Background(), "", "asst_1"); err == nil {
		t.Fatalf("expected error for missing control id")
	}
}

func TestListAndGetAssistants(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/ai/assistants":
			w.Write([]byte(`{"data":[{"id":"asst_1","name":"Support","model":"gpt","voice":{"voice":"alloy"}}]}`))
		case "/v2/ai/assistants/asst_1":
			w.Write([]byte(`{"data":{"id":"asst_1","name":"Support","model":"gpt"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[{"detail":"not found"}]}`))
		}
	})

	items, err := p.ListAssistants(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != "asst_1" || items[0].Voice != "alloy" {
		t.Fatalf("unexpected assistants: %+v", items)
	}

	a, err := p.GetAssistant(context.Background(), "asst_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Voice != "default" {
		t.Fatalf("expected default voice fallback, got %q", a.Voice)
	}

	if _, err := p.GetAssistant(context.Background(), "missing"); !errors.Is(err, ErrAssistantNotFound) {
		t.Fatalf("expected ErrAssistantNotFound, got %v", err)
	}
}
