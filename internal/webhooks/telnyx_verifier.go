package webhooks

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	signatureHeader = "Telnyx-Signature-Ed25519"
	timestampHeader = "Telnyx-Timestamp"

	// maxTimestampSkew bounds replay of captured deliveries.
	maxTimestampSkew = 5 * time.Minute
)

// TelnyxVerifier checks the provider's Ed25519 delivery signature.
// The signed message is "<timestamp>|<raw body>".
type TelnyxVerifier struct {
	publicKey ed25519.PublicKey
	clock     func() time.Time
}

func NewTelnyxVerifier(publicKeyBase64 string) (*TelnyxVerifier, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("webhooks: bad public key encoding: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("webhooks: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return &TelnyxVerifier{publicKey: ed25519.PublicKey(raw), clock: time.Now}, nil
}

func (v *TelnyxVerifier) Verify(ctx context.Context, body []byte, header http.Header) error {
	sigB64 := header.Get(signatureHeader)
	ts := header.Get(timestampHeader)
	if sigB64 == "" || ts == "" {
		return fmt.Errorf("webhooks: missing signature headers")
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("webhooks: bad signature encoding: %w", err)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("webhooks: bad timestamp %q", ts)
	}
	if skew := v.clock().Sub(time.Unix(unix, 0)); skew > maxTimestampSkew || skew < -maxTimestampSkew {
		return fmt.Errorf("webhooks: timestamp outside tolerance")
	}

	msg := make([]byte, 0, len(ts)+1+len(body))
	msg = append(msg, ts...)
	msg = append(msg, '|')
	msg = append(msg, body...)
	if !ed25519.Verify(v.publicKey, msg, sig) {
		return fmt.Errorf("webhooks: signature mismatch")
	}
	return nil
}
