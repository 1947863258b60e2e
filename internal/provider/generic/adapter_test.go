package generic

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reconquest/buildhook/internal/status"
)

func headers(pairs ...string) http.Header {
	result := http.Header{}
	for i := 0; i < len(pairs); i += 2 {
		result.Set(pairs[i], pairs[i+1])
	}
	return result
}

func TestAdapter_Identify_ReadsEventFromPayload(t *testing.T) {
	test := assert.New(t)

	identity, err := NewAdapter().Identify(
		headers(),
		[]byte(`{"event":"build"}`),
	)

	test.NoError(err)
	test.Equal("build", identity.EventType)
}

func TestAdapter_Identify_RejectsPayloadWithoutEvent(t *testing.T) {
	test := assert.New(t)

	_, err := NewAdapter().Identify(headers(), []byte(`{}`))

	test.Error(err)
}

func TestAdapter_Verify_ComparesToken(t *testing.T) {
	test := assert.New(t)

	adapter := NewAdapter()

	test.True(adapter.Verify(
		headers(HeaderToken, "secret"), []byte(`{}`), "secret",
	))
	test.False(adapter.Verify(
		headers(HeaderToken, "wrong"), []byte(`{}`), "secret",
	))
	test.False(adapter.Verify(headers(), []byte(`{}`), "secret"))
}

func TestAdapter_Verify_EmptySecretAcceptsAnything(t *testing.T) {
	test := assert.New(t)

	test.True(NewAdapter().Verify(headers(), []byte(`{}`), ""))
}

func TestAdapter_Normalize_Build(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{
		"event": "build",
		"build": {
			"id": "b-42",
			"status": "failure",
			"started_at": "2020-09-13T12:26:40Z",
			"finished_at": "2020-09-13T12:28:45Z",
			"url": "https://ci.example.com/builds/42"
		},
		"commit": {
			"sha": "abc123",
			"message": "bump deps",
			"author": "dev",
			"branch": "main",
			"url": "https://git.example.com/abc123"
		}
	}`)

	canonical, err := NewAdapter().Normalize("build", body)

	test.NoError(err)
	test.NotNil(canonical)
	test.Equal("b-42", canonical.Build.ExternalID)
	test.Equal(status.FAILURE, canonical.Build.Status)
	test.Equal("abc123", canonical.Build.Commit.SHA)
	test.Equal("main", canonical.Build.Commit.Branch)
	test.NotNil(canonical.Build.StartedAt)
	test.NotNil(canonical.Build.FinishedAt)
}

func TestAdapter_Normalize_OutOfVocabularyStatusBecomesUnknown(t *testing.T) {
	test := assert.New(t)

	canonical, err := NewAdapter().Normalize(
		"build",
		[]byte(`{"event":"build","build":{"id":"b-1","status":"exploded"}}`),
	)

	test.NoError(err)
	test.Equal(status.UNKNOWN, canonical.Build.Status)
}

func TestAdapter_Normalize_NonBuildEventYieldsNil(t *testing.T) {
	test := assert.New(t)

	canonical, err := NewAdapter().Normalize("deploy", []byte(`{}`))

	test.NoError(err)
	test.Nil(canonical)
}
