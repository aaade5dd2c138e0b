package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelnyxBaseURL = "https://api.telnyx.com"

// TelnyxConfig carries everything the adapter needs, injected once at process
// start. No code here reads environment variables.
type TelnyxConfig struct {
	APIKey string

	// ConnectionID is the call-control application the outbound leg runs on.
	ConnectionID string

	// FromNumber is the caller id presented on outbound calls (E.164).
	FromNumber string

	// WebhookURL is where the provider pushes call events.
	WebhookURL string

	// BaseURL overrides the API host (tests). Empty means production.
	BaseURL string
}

// TelnyxProvider drives the Telnyx call-control API over plain HTTP.
type TelnyxProvider struct {
	cfg    TelnyxConfig
	client *http.Client
}

func NewTelnyxProvider(cfg TelnyxConfig, client *http.Client) *TelnyxProvider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TelnyxProvider{cfg: cfg, client: client}
}

var _ CallProvider = (*TelnyxProvider)(nil)

func (p *TelnyxProvider) Name() string { return "telnyx" }

func (p *TelnyxProvider) HealthCheck(ctx context.Context) error {
	// The assistants listing is the cheapest authenticated endpoint we use.
	_, err := p.ListAssistants(ctx)
	return err
}

// telnyxCallRequest is the wire shape of POST /v2/calls.
type telnyxCallRequest struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`

	WebhookURL       string `json:"webhook_url"`
	WebhookURLMethod string `json:"webhook_url_method"`

	Record                    string `json:"record"`
	AnsweringMachineDetection string `json:"answering_machine_detection"`

	ClientState string `json:"client_state"`

	AI struct {
		AssistantID string `json:"assistant_id"`
	} `json:"ai"`
}

// telnyxCall is the portion of the provider's call object we consume.
// The call identifier has appeared under both `id` and `call_session_id`
// across API versions; accept either.
type telnyxCall struct {
	ID            string `json:"id"`
	CallSessionID string `json:"call_session_id"`
	CallControlID string `json:"call_control_id"`
}

func (c telnyxCall) callID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.CallSessionID
}

func (p *TelnyxProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	body := telnyxCallRequest{
		ConnectionID:              p.cfg.ConnectionID,
		To:                        req.To,
		From:                      p.cfg.FromNumber,
		WebhookURL:                p.cfg.WebhookURL,
		WebhookURLMethod:          http.MethodPost,
		Record:                    "record-from-answer",
		AnsweringMachineDetection: "detect",
		ClientState:               req.ClientState,
	}
	body.AI.AssistantID = req.AssistantID

	raw, err := p.post(ctx, "/v2/calls", body)
	if err != nil {
		return PlaceCallResult{}, err
	}

	var call telnyxCall
	if err := unwrapData(raw, &call); err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: decoding call response: %w", err)
	}
	if call.callID() == "" {
		return PlaceCallResult{}, errors.New("telephony: provider response missing call id")
	}
	return PlaceCallResult{
		ProviderCallID:    call.callID(),
		ProviderControlID: call.CallControlID,
	}, nil
}

func (p *TelnyxProvider) StartAssistant(ctx context.Context, controlID, assistantID string) error {
	if controlID == "" || assistantID == "" {
		return errors.New("telephony: control id and assistant id are required")
	}
	payload := map[string]any{
		"assistant": map[string]string{"id": assistantID},
	}
	_, err := p.post(ctx, "/v2/calls/"+controlID+"/actions/ai_assistant_start", payload)
	return err
}

// telnyxAssistant is the provider's catalog shape.
type telnyxAssistant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
	Voice        struct {
		Voice string `json:"voice"`
	} `json:"voice"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a telnyxAssistant) toAssistant() Assistant {
	voice := a.Voice.Voice
	if voice == "" {
		voice = "default"
	}
	return Assistant{
		ID:           a.ID,
		Name:         a.Name,
		Description:  a.Description,
		Model:        a.Model,
		Instructions: a.Instructions,
		Voice:        voice,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (p *TelnyxProvider) ListAssistants(ctx context.Context) ([]Assistant, error) {
	raw, err := p.get(ctx, "/v2/ai/assistants")
	if err != nil {
		return nil, err
	}
	var items []telnyxAssistant
	if err := unwrapData(raw, &items); err != nil {
		return nil, fmt.Errorf("telephony: decoding assistants response: %w", err)
	}
	out := make([]Assistant, 0, len(items))
	for _, a := range items {
		out = append(out, a.toAssistant())
	}
	return out, nil
}

func (p *TelnyxProvider) GetAssistant(ctx context.Context, id string) (Assistant, error) {
	raw, err := p.get(ctx, "/v2/ai/assistants/"+id)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return Assistant{}, ErrAssistantNotFound
		}
		return Assistant{}, err
	}
	var a telnyxAssistant
	if err := unwrapData(raw, &a); err != nil {
		return Assistant{}, fmt.Errorf("telephony: decoding assistant response: %w", err)
	}
	return a.toAssistant(), nil
}

func (p *TelnyxProvider) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return p.do(ctx, http.MethodPost, path, bytes.NewReader(b))
}

func (p *TelnyxProvider) get(ctx context.Context, path string) (json.RawMessage, error) {
	return p.do(ctx, http.MethodGet, path, nil)
}

func (p *TelnyxProvider) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	base := p.cfg.BaseURL
	if base == "" {
		base = defaultTelnyxBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telephony: reading provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
	}
	return raw, nil
}

// unwrapData normalizes the provider's two response shapes, `{"data": T}` and
// bare `T`, into dst. Resolved once here; nothing past this boundary knows the
// wrapper exists.
func unwrapData(raw json.RawMessage, dst any) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Data) > 0 {
		return json.Unmarshal(wrapper.Data, dst)
	}
	return json.Unmarshal(raw, dst)
}

// errorDetail digs the first human-readable detail out of a provider error
// body. Bodies are not guaranteed to be JSON.
func errorDetail(raw []byte) string {
	var e struct {
		Errors []struct {
			Detail string `json:"detail"`
			Title  string `json:"title"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &e); err == nil {
		if len(e.Errors) > 0 {
			if e.Errors[0].Detail != "" {
				return e.Errors[0].Detail
			}
			if e.Errors[0].Title != "" {
				return e.Errors[0].Title
			}
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
