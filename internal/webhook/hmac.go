package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
)

// SignaturePrefix precedes the hex digest in signature headers.
const SignaturePrefix = "sha1="

// Verify reports whether signature is the HMAC-SHA1 of body under secret,
// in the "sha1=<hex>" form.
//
// Comparison is constant-time (crypto/subtle). An empty secret or an empty
// signature never verifies.
func Verify(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}

	expected := Sign(body, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Sign computes the signature header value for body: "sha1=" followed by the
// lower-case hex HMAC-SHA1 digest.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
