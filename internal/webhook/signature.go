// Package webhook verifies and decodes inbound webhook deliveries from
// external content platforms.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the hex HMAC-SHA256 of the raw body under the site's shared
// secret, in the "sha256=<hex>" header form the platforms send.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a delivery signature against the raw, unparsed body. The
// comparison is constant time. Bodies must never be parsed before this
// returns true.
func Verify(secret, signature string, body []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	// Accept the bare hex form as well as the prefixed one.
	got := signature
	if !strings.HasPrefix(got, "sha256=") {
		got = "sha256=" + got
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
