package generic

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
	HeaderToken = "X-Webhook-Token"
)

// Adapter accepts buildhook's own webhook format for CI systems that
// have no dedicated adapter. The payload already speaks the canonical
// status vocabulary; anything it does not speak becomes UNKNOWN.
type Adapter struct{}

func NewAdapter() Adapter {
	return Adapter{}
}

func (Adapter) Name() string {
	return "generic"
}

func (Adapter) Identify(headers http.Header, body []byte) (provider.Identity, error) {
	var payload struct {
		Event string `json:"event"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return provider.Identity{}, karma.Format(
			err,
			"unable to decode webhook payload",
		)
	}

	if payload.Event == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"payload carries no event field",
		)
	}

	return provider.Identity{
		EventType: payload.Event,
	}, nil
}

func (Adapter) Verify(headers http.Header, body []byte, secret string) bool {
	if secret == "" {
		return true
	}

	return signature.Verify(
		body,
		headers.Get(HeaderToken),
		secret,
		signature.SchemeRawToken,
	)
}

type buildPayload struct {
	Build struct {
		ID         string     `json:"id"`
		Status     string     `json:"status"`
		StartedAt  *time.Time `json:"started_at"`
		FinishedAt *time.Time `json:"finished_at"`
		URL        string     `json:"url"`
	} `json:"build"`
	Commit struct {
		SHA     string `json:"sha"`
		Message string `json:"message"`
		Author  string `json:"author"`
		Branch  string `json:"branch"`
		URL     string `json:"url"`
	} `json:"commit"`
}

func (adapter Adapter) Normalize(
	eventType string,
	body []byte,
) (*event.BuildEvent, error) {
	if eventType != "build" {
		return nil, nil
	}

	var payload buildPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode build payload")
	}

	patch := event.BuildPatch{
		ExternalID:  payload.Build.ID,
		Status:      mapStatus(payload.Build.Status),
		StartedAt:   payload.Build.StartedAt,
		FinishedAt:  payload.Build.FinishedAt,
		ProviderURL: payload.Build.URL,
	}

	patch.Commit.SHA = payload.Commit.SHA
	patch.Commit.Message = payload.Commit.Message
	patch.Commit.Author = payload.Commit.Author
	patch.Commit.Branch = payload.Commit.Branch
	patch.Commit.URL = payload.Commit.URL

	return &event.BuildEvent{
		Provider: "generic",
		Type:     "build",
		Build:    patch,
		Raw:      body,
	}, nil
}

func mapStatus(value string) status.Status {
	switch status.Status(value) {
	case status.PENDING, status.RUNNING, status.SUCCESS,
		status.FAILURE, status.CANCELED, status.SKIPPED:
		return status.Status(value)
	default:
		return status.UNKNOWN
	}
}
