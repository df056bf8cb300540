package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Sign returns hex HMAC-SHA256 over "timestamp.nonce.payload"
func Sign(secret, timestamp, nonce string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write([]byte(nonce))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time
func VerifySignature(secret, timestamp, nonce string, payload []byte, signature string) bool {
	if secret == "" || timestamp == "" || nonce == "" || signature == "" {
		return false
	}
	want, err := hex.DecodeString(Sign(secret, timestamp, nonce, payload))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// signatureFrom picks the generic header first, then the provider specific one
func signatureFrom(headers http.Header, name, custom string) string {
	if sig := headers.Get("X-Signature"); sig != "" {
		return sig
	}
	if custom != "" {
		if sig := headers.Get(custom); sig != "" {
			return sig
		}
	}
	return headers.Get("X-" + name + "-Signature")
}
