package jenkins

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

func TestAdapter_Identify_UsesPipelineHeaderWhenPresent(t *testing.T) {
	test := assert.New(t)

	identity, err := NewAdapter().Identify(
		headers(HeaderPipeline, "pipe-1"),
		[]byte(`{"build":{"phase":"STARTED"}}`),
	)

	test.NoError(err)
	test.Equal("build", identity.EventType)
	test.Equal("pipe-1", identity.PipelineID)
	test.Equal("", identity.RepositoryKey)
}

func TestAdapter_Identify_RejectsPayloadWithoutPhase(t *testing.T) {
	test := assert.New(t)

	_, err := NewAdapter().Identify(headers(), []byte(`{}`))

	test.Error(err)
}

func TestAdapter_Verify_ComparesRawToken(t *testing.T) {
	test := assert.New(t)

	adapter := NewAdapter()

	test.True(adapter.Verify(headers(HeaderToken, "jenkins-token"), nil, "jenkins-token"))
	test.False(adapter.Verify(headers(HeaderToken, "wrong"), nil, "jenkins-token"))
}

func TestAdapter_Normalize_PhaseTable(t *testing.T) {
	test := assert.New(t)

	table := []struct {
		phase    string
		result   string
		expected status.Status
	}{
		{"QUEUED", "", status.PENDING},
		{"STARTED", "", status.RUNNING},
		{"COMPLETED", "SUCCESS", status.SUCCESS},
		{"FINALIZED", "SUCCESS", status.SUCCESS},
		{"FINALIZED", "FAILURE", status.FAILURE},
		{"FINALIZED", "UNSTABLE", status.FAILURE},
		{"FINALIZED", "ABORTED", status.CANCELED},
		{"FINALIZED", "NOT_BUILT", status.SKIPPED},
		{"FINALIZED", "WAT", status.UNKNOWN},
		{"WAT", "", status.UNKNOWN},
	}

	for _, row := range table {
		test.Equal(
			row.expected,
			mapPhase(row.phase, row.result),
			"phase=%s status=%s", row.phase, row.result,
		)
	}
}

func TestAdapter_Normalize_FinalizedBuild(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{
		"name": "widget-ci",
		"build": {
			"number": 7,
			"phase": "FINALIZED",
			"status": "SUCCESS",
			"full_url": "https://jenkins.acme.dev/job/widget-ci/7/",
			"timestamp": 1600000000000,
			"scm": {
				"commit": "abc123",
				"branch": "origin/main"
			}
		}
	}`)

	canonical, err := NewAdapter().Normalize("build", body)

	test.NoError(err)
	test.NotNil(canonical)
	test.Equal("7", canonical.Build.ExternalID)
	test.Equal(status.SUCCESS, canonical.Build.Status)
	test.Equal("abc123", canonical.Build.Commit.SHA)
	test.Equal("main", canonical.Build.Commit.Branch)
	test.NotNil(canonical.Build.FinishedAt)
	test.Nil(canonical.Build.StartedAt)
}

func TestAdapter_Normalize_StartedBuildCarriesStartTime(t *testing.T) {
	test := assert.New(t)

	body := []byte(`{
		"build": {
			"number": 7,
			"phase": "STARTED",
			"timestamp": 1600000000000
		}
	}`)

	canonical, err := NewAdapter().Normalize("build", body)

	test.NoError(err)
	test.NotNil(canonical.Build.StartedAt)
	test.Nil(canonical.Build.FinishedAt)
	test.Equal(status.RUNNING, canonical.Build.Status)
}

func TestAdapter_Normalize_UnknownEventTypeYieldsNil(t *testing.T) {
	test := assert.New(t)

	canonical, err := NewAdapter().Normalize("scm-change", []byte(`{}`))

	test.NoError(err)
	test.Nil(canonical)
}
