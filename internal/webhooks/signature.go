package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SignatureHeader carries the payload signature on outbound deliveries.
const SignatureHeader = "X-Notifgate-Signature"

// Signer produces and verifies HMAC-SHA256 payload signatures.
//
// Header format: t=<unix>,v1=<hex>. The signed content is
// "{unix_timestamp}.{payload}" so a receiver can reject replayed
// deliveries by checking the timestamp.
type Signer struct{}

// NewSigner creates a Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign returns the signature header value for a payload.
func (s *Signer) Sign(payload []byte, secret string, now time.Time) string {
	timestamp := now.Unix()
	signedContent := fmt.Sprintf("%d.%s", timestamp, string(payload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, computeHMAC(signedContent, secret))
}

// Verify checks a payload against a signature header.
func (s *Signer) Verify(payload []byte, header, secret string) bool {
	var timestamp, v1 string
	for _, segment := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			v1 = value
		}
	}
	if timestamp == "" || v1 == "" || secret == "" {
		return false
	}

	signedContent := fmt.Sprintf("%s.%s", timestamp, string(payload))
	expected := computeHMAC(signedContent, secret)
	return hmac.Equal([]byte(v1), []byte(expected))
}

func computeHMAC(content, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
