package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Scheme selects how a provider authenticates its webhook deliveries.
type Scheme string

const (
	// SchemeHMACSHA256Prefixed is the GitHub style: hex HMAC-SHA256 of
	// the raw request body, prefixed with "sha256=".
	SchemeHMACSHA256Prefixed = Scheme("hmac-sha256-prefixed")

	// SchemeHMACSHA256 is a bare hex HMAC-SHA256 without prefix.
	SchemeHMACSHA256 = Scheme("hmac-sha256")

	// SchemeRawToken is direct equality between a header token and the
	// stored secret.
	SchemeRawToken = Scheme("raw-token")
)

// Verify checks a webhook delivery against the pipeline secret.
//
// The HMAC is always computed over the raw body bytes as they arrived
// on the wire. Re-serializing the JSON before hashing changes key order
// and whitespace and therefore the digest.
//
// Malformed input (missing header, non-hex signature, unknown scheme)
// yields false, never an error: a garbled signature is a failed
// verification, not a processing failure.
func Verify(rawBody []byte, header string, secret string, scheme Scheme) bool {
	if header == "" {
		return false
	}

	switch scheme {
	case SchemeHMACSHA256Prefixed:
		if !strings.HasPrefix(header, "sha256=") {
			return false
		}

		return verifyHMAC(rawBody, strings.TrimPrefix(header, "sha256="), secret)

	case SchemeHMACSHA256:
		return verifyHMAC(rawBody, header, secret)

	case SchemeRawToken:
		return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1

	default:
		return false
	}
}

func verifyHMAC(rawBody []byte, signature string, secret string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)

	return hmac.Equal(provided, mac.Sum(nil))
}
