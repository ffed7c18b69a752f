// Package invoke authenticates third-party calls signed with an access/secret key pair.
package invoke

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Request headers of a signed call.
const (
	HeaderAccessKey = "accessKey"
	HeaderNonce     = "nonce"
	HeaderTimestamp = "timestamp"
	HeaderSign      = "sign"
)

// Sign returns hex(HMAC-SHA256(secretKey, body + nonce + timestamp)).
func Sign(secretKey string, body []byte, nonce, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	mac.Write([]byte(nonce))
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares sign against the expected signature in constant time.
func Verify(secretKey string, body []byte, nonce, timestamp, sign string) bool {
	expected := Sign(secretKey, body, nonce, timestamp)
	return hmac.Equal([]byte(expected), []byte(sign))
}
