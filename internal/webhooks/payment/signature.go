package paymentwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, body)).
const SignatureHeader = "X-Callback-Signature"

// Sign returns the signature the gateway sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback body against its signature header.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "payment webhook secret not configured")
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "callback signature missing")
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "callback signature malformed")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "callback signature mismatch")
	}
	return nil
}
