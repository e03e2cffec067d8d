// Package webhook verifies and normalizes inbound document change events.
//
// An event arrives as a raw JSON body signed out-of-band with an HMAC-SHA256
// over the exact bytes. Verification and normalization both happen at the
// boundary; nothing unverified ever reaches the delivery queue.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMissingSecret is returned when a Validator is constructed without a
// shared secret. The service refuses to start in that state.
var ErrMissingSecret = errors.New("webhook: signing secret is required")

// Validator authenticates raw webhook bodies against a shared secret.
type Validator struct {
	secret []byte
}

// NewValidator creates a Validator for the given shared secret.
func NewValidator(secret string) (*Validator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Validator{secret: []byte(secret)}, nil
}

// Sign computes the hex-encoded HMAC-SHA256 of body. Exposed for the seeder
// and for tests constructing valid requests.
func (v *Validator) Sign(body []byte) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether header carries a valid signature over body.
//
// The header may be prefixed with an algorithm tag ("sha256=..."), and the
// digest may be hex or base64 encoded. Malformed input is a verification
// failure, never an error: this function does not leak why a signature was
// rejected.
func (v *Validator) Verify(body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}

	if idx := strings.IndexByte(header, '='); idx > 0 && strings.EqualFold(header[:idx], "sha256") {
		header = header[idx+1:]
	}

	claimed := decodeSignature(header)
	if claimed == nil {
		return false
	}

	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	expected := h.Sum(nil)

	// hmac.Equal is constant time.
	return hmac.Equal(expected, claimed)
}

// decodeSignature accepts hex or base64 (standard or raw) digests.
func decodeSignature(s string) []byte {
	if b, err := hex.DecodeString(s); err == nil {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b
	}
	return nil
}
