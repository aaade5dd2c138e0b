package telephony

import (
	"context"
	"fmt"
	"time"
)

// CallProvider defines the provider-agnostic call-control interface used by
// business logic.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Keep request/response types provider-agnostic; shape quirks of a specific
//   provider (wrapped vs flat responses) are resolved inside the adapter.
//
// This is the primary seam for test doubles.
type CallProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall dials an outbound call and attaches the AI assistant.
	// ClientState is round-tripped opaquely and echoed on every webhook.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// StartAssistant attaches an assistant to an already-answered call leg.
	// Not used in the default flow (the assistant rides on PlaceCall), but
	// part of the control-plane contract.
	StartAssistant(ctx context.Context, controlID, assistantID string) error

	// Assistant catalog, read-through.
	ListAssistants(ctx context.Context) ([]Assistant, error)
	GetAssistant(ctx context.Context, id string) (Assistant, error)
}

type PlaceCallRequest struct {
	// To is the destination number, E.164.
	To string `json:"to"`

	AssistantID string `json:"assistant_id"`

	// ClientState is the encoded correlation token (see clientstate.go).
	ClientState string `json:"client_state"`
}

type PlaceCallResult struct {
	// ProviderCallID identifies the call at the provider.
	ProviderCallID string `json:"provider_call_id"`

	// ProviderControlID is the handle for subsequent control actions.
	ProviderControlID string `json:"provider_control_id"`
}

// Assistant is a provider-hosted AI assistant, surfaced read-only.
type Assistant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	Voice        string    `json:"voice,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProviderError carries the provider's diagnostic detail for a rejected or
// failed control-plane request. Transport failures are returned as plain
// errors; ProviderError means the provider answered and said no.
type ProviderError struct {
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("telephony: provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("telephony: provider returned status %d: %s", e.StatusCode, e.Detail)
}

// ErrAssistantNotFound distinguishes a catalog miss from a provider failure.
var ErrAssistantNotFound = &ProviderError{StatusCode: 404, Detail: "assistant not found"}
