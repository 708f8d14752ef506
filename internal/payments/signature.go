package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// VerifySignature checks the hex-encoded HMAC-SHA256 signature the gateway
// sends with each webhook delivery.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" {
		return errors.New("signing secret is required")
	}
	if signature == "" {
		return errors.New("signature is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return errors.New("signature is not valid hex")
	}
	if !hmac.Equal(expected, provided) {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign computes the signature the gateway would send for payload. Used by
// tests and local tooling.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
