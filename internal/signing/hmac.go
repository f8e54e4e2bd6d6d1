// Package signing implements the HMAC scheme renewd uses on outbound
// requests to the payment gateway and the notification endpoint.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign returns a "v1=<hex>" signature over "<timestamp>.<payload>". The
// timestamp is supplied by the caller so receivers can bound replay windows
// and tests stay deterministic.
func Sign(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil)))
}

func Verify(secret string, payload []byte, timestamp int64, signature string) bool {
	expected := Sign(secret, payload, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
