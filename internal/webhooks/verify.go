package webhooks

import (
	"context"
	"errors"
	"net/http"
)

// Verifier authenticates a webhook delivery's origin (e.g. the provider's
// Ed25519 signature headers). The dispatcher does not define the scheme; it
// only invokes the step, which keeps it swappable per deployment.
type Verifier interface {
	Verify(ctx context.Context, body []byte, header http.Header) error
}

// VerifyPolicy decides what an absent or failing verification means.
//
//	enforce: unverified deliveries are rejected before dispatch.
//	warn:    processed, with a warning recorded (default).
//	ignore:  verification is skipped entirely.
type VerifyPolicy string

const (
	VerifyPolicyEnforce VerifyPolicy = "enforce"
	VerifyPolicyWarn    VerifyPolicy = "warn"
	VerifyPolicyIgnore  VerifyPolicy = "ignore"
)

func (p VerifyPolicy) Valid() bool {
	switch p {
	case VerifyPolicyEnforce, VerifyPolicyWarn, VerifyPolicyIgnore:
		return true
	default:
		return false
	}
}

// ErrUnverified is returned (under the enforce policy) when a delivery's
// origin could not be verified.
var ErrUnverified = errors.New("webhooks: delivery origin not verified")
