package circleci

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

func TestAdapter_Identify_ReadsEventTypeFromPayload(t *testing.T) {
	test := assert.New(t)

	identity, err := NewAdapter().Identify(
		headers(),
		[]byte(`{"type":"workflow-completed"}`),
	)

	test.NoError(err)
	test.Equal("workflow-completed", identity.EventType)
}

func TestAdapter_Verify_AbsentSignatureIsAccepted(t *testing.T) {
	test := assert.New(t)

	test.True(NewAdapter().Verify(headers(), []byte(`{}`), "secret"))
}

func TestAdapter_Verify_PresentSignatureMustMatch(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{"type":"workflow-completed"}`)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	adapter := NewAdapter()

	test.True(adapter.Verify(headers(HeaderSignature, valid), body, "secret"))
	test.False(adapter.Verify(headers(HeaderSignature, "deadbeef"), body, "secret"))
}

func TestAdapter_Normalize_WorkflowCompleted(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{
		"type": "workflow-completed",
		"workflow": {
			"id": "wf-1",
			"name": "build-and-test",
			"status": "success",
			"created_at": "2020-09-13T12:26:40Z",
			"stopped_at": "2020-09-13T12:28:45Z",
			"url": "https://app.circleci.com/pipelines/x/workflows/wf-1"
		},
		"pipeline": {
			"vcs": {
				"revision": "abc123",
				"branch": "main",
				"commit": {
					"subject": "fix: login timeout",
					"author": {"name": "dev"}
				}
			}
		}
	}`)

	canonical, err := NewAdapter().Normalize("workflow-completed", body)

	test.NoError(err)
	test.NotNil(canonical)
	test.Equal("wf-1", canonical.Build.ExternalID)
	test.Equal(status.SUCCESS, canonical.Build.Status)
	test.Equal("abc123", canonical.Build.Commit.SHA)
	test.Equal("main", canonical.Build.Commit.Branch)
	test.NotNil(canonical.Build.FinishedAt)
}

func TestAdapter_Normalize_WorkflowStartedHasNoFinishTime(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{
		"type": "workflow-started",
		"workflow": {
			"id": "wf-1",
			"status": "running",
			"created_at": "2020-09-13T12:26:40Z",
			"stopped_at": "2020-09-13T12:26:40Z"
		}
	}`)

	canonical, err := NewAdapter().Normalize("workflow-started", body)

	test.NoError(err)
	test.Equal(status.RUNNING, canonical.Build.Status)
	test.Nil(canonical.Build.FinishedAt)
}

func TestAdapter_Normalize_StatusTable(t *testing.T) {
	test := assert.New(t)

	table := map[string]status.Status{
		"on_hold":  status.PENDING,
		"running":  status.RUNNING,
		"success":  status.SUCCESS,
		"failed":   status.FAILURE,
		"failing":  status.FAILURE,
		"error":    status.FAILURE,
		"canceled": status.CANCELED,
		"not_run":  status.SKIPPED,
		"weird":    status.UNKNOWN,
	}

	for value, expected := range table {
		test.Equal(expected, mapWorkflowStatus(value), "status=%s", value)
	}
}

func TestAdapter_Normalize_JobEventsAreIgnored(t *testing.T) {
	test := assert.New(t)

	canonical, err := NewAdapter().Normalize("job-completed", []byte(`{}`))

	test.NoError(err)
	test.Nil(canonical)
}
