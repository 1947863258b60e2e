package circleci

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/reconquest/buildhook/internal/event"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/signature"
	"github.com/reconquest/buildhook/internal/status"
	"github.com/reconquest/karma-go"
)

const (
	HeaderSignature = "Circleci-Signature"
)

// Adapter handles CircleCI outbound webhooks. The event type lives in
// the payload, not in a header, and the target pipeline id is embedded
// in the webhook URL.
type Adapter struct{}

func NewAdapter() Adapter {
	return Adapter{}
}

func (Adapter) Name() string {
	return "circleci"
}

func (Adapter) Identify(headers http.Header, body []byte) (provider.Identity, error) {
	var payload struct {
		Type string `json:"type"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return provider.Identity{}, karma.Format(
			err,
			"unable to decode webhook payload",
		)
	}

	if payload.Type == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"payload carries no event type",
		)
	}

	return provider.Identity{
		EventType: payload.Type,
	}, nil
}

// Verify accepts unsigned deliveries: CircleCI signing is opt-in, so an
// absent signature header passes while a present but wrong one fails.
func (Adapter) Verify(headers http.Header, body []byte, secret string) bool {
	header := headers.Get(HeaderSignature)
	if header == "" || secret == "" {
		return true
	}

	return signature.Verify(body, header, secret, signature.SchemeHMACSHA256)
}

type workflowPayload struct {
	Workflow struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		Status    string     `json:"status"`
		CreatedAt *time.Time `json:"created_at"`
		StoppedAt *time.Time `json:"stopped_at"`
		URL       string     `json:"url"`
	} `json:"workflow"`
	Pipeline struct {
		VCS struct {
			Revision string `json:"revision"`
			Branch   string `json:"branch"`
			Commit   struct {
				Subject string `json:"subject"`
				Author  struct {
					Name string `json:"name"`
				} `json:"author"`
			} `json:"commit"`
		} `json:"vcs"`
	} `json:"pipeline"`
}

func (adapter Adapter) Normalize(
	eventType string,
	body []byte,
) (*event.BuildEvent, error) {
	switch eventType {
	case "workflow-completed", "workflow-started":
		// handled below
	default:
		return nil, nil
	}

	var payload workflowPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode workflow payload")
	}

	workflow := payload.Workflow

	patch := event.BuildPatch{
		ExternalID:  workflow.ID,
		Status:      mapWorkflowStatus(workflow.Status),
		StartedAt:   workflow.CreatedAt,
		ProviderURL: workflow.URL,
	}

	if eventType == "workflow-completed" {
		patch.FinishedAt = workflow.StoppedAt
	}

	vcs := payload.Pipeline.VCS
	patch.Commit.SHA = vcs.Revision
	patch.Commit.Branch = vcs.Branch
	patch.Commit.Message = vcs.Commit.Subject
	patch.Commit.Author = vcs.Commit.Author.Name

	return &event.BuildEvent{
		Provider: "circleci",
		Type:     eventType,
		Build:    patch,
		Raw:      body,
	}, nil
}

func mapWorkflowStatus(value string) status.Status {
	switch value {
	case "on_hold", "blocked":
		return status.PENDING
	case "running":
		return status.RUNNING
	case "success":
		return status.SUCCESS
	case "failed", "failing", "error", "unauthorized":
		return status.FAILURE
	case "canceled":
		return status.CANCELED
	case "not_run":
		return status.SKIPPED
	default:
		return status.UNKNOWN
	}
}
