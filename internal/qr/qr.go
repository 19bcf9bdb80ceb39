// Package qr implements the reversible QR token envelope: a base64
// encoding of a JSON object bundling an opaque token, its expiry, and
// arbitrary item metadata. The envelope carries no integrity guarantee;
// the token itself is produced and verified by the database layer.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// ValidityWindow is how long a signed QR payload stays valid.
const ValidityWindow = 30 * 24 * time.Hour

// Envelope is the decoded form of a QR payload.
type Envelope map[string]interface{}

// CalculateExpiry returns the expiry timestamp for a QR payload signed
// at base.
func CalculateExpiry(base time.Time) time.Time {
	return base.Add(ValidityWindow)
}

// Encode merges token and expiry with the extra metadata fields into a
// single envelope and returns it alongside its transport-safe string
// form (standard base64 of compact JSON). Metadata keys override the
// token and expires_at fields, mirroring how callers have always been
// able to stamp their own values.
func Encode(token string, expiresAt time.Time, metadata map[string]interface{}) (Envelope, string, error) {
	envelope := Envelope{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		envelope[k] = v
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, "", fmt.Errorf("encode qr envelope: %w", err)
	}

	return envelope, base64.StdEncoding.EncodeToString(raw), nil
}

// Decode is the exact inverse of Encode. Input that is not valid
// base64 or does not contain a JSON object is a hard error.
func Decode(encoded string) (Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode qr envelope: %w", err)
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode qr envelope: %w", err)
	}

	return envelope, nil
}
