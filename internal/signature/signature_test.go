package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerify_HMACPrefixed_AcceptsValidSignature(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{"ref":"refs/heads/main","after":"abc"}`)

	test.True(Verify(
		body,
		"sha256="+sign(body, "hunter2"),
		"hunter2",
		SchemeHMACSHA256Prefixed,
	))
}

func TestVerify_HMACPrefixed_RejectsTamperedBody(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{"ref":"refs/heads/main"}`)
	header := "sha256=" + sign(body, "hunter2")

	test.False(Verify([]byte(`{"ref":"refs/heads/dev"}`), header, "hunter2", SchemeHMACSHA256Prefixed))
}

func TestVerify_HMACPrefixed_RejectsFlippedSignatureBit(t *testing.T) {
	test := assert.New(t)

	body := []byte(`payload`)
	valid := sign(body, "hunter2")

	flipped := []byte(valid)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	test.False(Verify(body, "sha256="+string(flipped), "hunter2", SchemeHMACSHA256Prefixed))
}

func TestVerify_HMACPrefixed_RejectsMissingPrefix(t *testing.T) {
	test := assert.New(t)

	body := []byte(`payload`)

	test.False(Verify(body, sign(body, "hunter2"), "hunter2", SchemeHMACSHA256Prefixed))
}

func TestVerify_HMACPrefixed_RejectsNonHexSignature(t *testing.T) {
	test := assert.New(t)

	test.False(Verify([]byte(`payload`), "sha256=zzzz", "hunter2", SchemeHMACSHA256Prefixed))
}

func TestVerify_HMAC_AcceptsBareHexSignature(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{"type":"workflow-completed"}`)

	test.True(Verify(body, sign(body, "circle-secret"), "circle-secret", SchemeHMACSHA256))
}

func TestVerify_RawToken_ComparesTokens(t *testing.T) {
	test := assert.New(t)

	test.True(Verify(nil, "gitlab-token", "gitlab-token", SchemeRawToken))
	test.False(Verify(nil, "gitlab-token", "other-token", SchemeRawToken))
	test.False(Verify(nil, "gitlab-tokenx", "gitlab-token", SchemeRawToken))
}

func TestVerify_MissingHeader_ReturnsFalse(t *testing.T) {
	test := assert.New(t)

	test.False(Verify([]byte(`payload`), "", "hunter2", SchemeHMACSHA256Prefixed))
	test.False(Verify(nil, "", "hunter2", SchemeRawToken))
}

func TestVerify_UnknownScheme_ReturnsFalse(t *testing.T) {
	test := assert.New(t)

	test.False(Verify([]byte(`payload`), "anything", "hunter2", Scheme("md5")))
}
