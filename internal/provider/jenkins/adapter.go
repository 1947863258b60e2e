package jenkins

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reconquest/buildhook/internal/event"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/ptr"
	"github.com/reconquest/buildhook/internal/signature"
	"github.com/reconquest/buildhook/internal/status"
	"github.com/reconquest/karma-go"
)

const (
	HeaderToken = "X-Jenkins-Token"

	// HeaderPipeline carries the target pipeline id for setups where it
	// cannot be embedded in the webhook URL.
	HeaderPipeline = "X-Buildhook-Pipeline"
)

// Adapter handles the Jenkins notification-plugin payload. Jenkins does
// not embed any repository identity usable for lookup, so the pipeline
// id comes from the webhook URL or from HeaderPipeline.
type Adapter struct{}

func NewAdapter() Adapter {
	return Adapter{}
}

func (Adapter) Name() string {
	return "jenkins"
}

func (Adapter) Identify(headers http.Header, body []byte) (provider.Identity, error) {
	var payload struct {
		Build struct {
			Phase string `json:"phase"`
		} `json:"build"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return provider.Identity{}, karma.Format(
			err,
			"unable to decode webhook payload",
		)
	}

	if payload.Build.Phase == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"payload carries no build phase",
		)
	}

	return provider.Identity{
		EventType:  "build",
		PipelineID: headers.Get(HeaderPipeline),
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
	Name  string `json:"name"`
	Build struct {
		Number    int    `json:"number"`
		Phase     string `json:"phase"`
		Status    string `json:"status"`
		FullURL   string `json:"full_url"`
		Timestamp int64  `json:"timestamp"`
		SCM       struct {
			Commit string `json:"commit"`
			Branch string `json:"branch"`
		} `json:"scm"`
	} `json:"build"`
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

	build := payload.Build

	patch := event.BuildPatch{
		ExternalID:  fmt.Sprint(build.Number),
		Status:      mapPhase(build.Phase, build.Status),
		ProviderURL: build.FullURL,
	}

	patch.Commit.SHA = build.SCM.Commit
	patch.Commit.Branch = strings.TrimPrefix(build.SCM.Branch, "origin/")

	if build.Timestamp > 0 {
		moment := time.Unix(0, build.Timestamp*int64(time.Millisecond)).UTC()

		switch build.Phase {
		case "STARTED":
			patch.StartedAt = ptr.TimePtr(moment)
		case "COMPLETED", "FINALIZED":
			patch.FinishedAt = ptr.TimePtr(moment)
		}
	}

	return &event.BuildEvent{
		Provider: "jenkins",
		Type:     "build",
		Build:    patch,
		Raw:      body,
	}, nil
}

func mapPhase(phase, result string) status.Status {
	switch phase {
	case "QUEUED":
		return status.PENDING

	case "STARTED":
		return status.RUNNING

	case "COMPLETED", "FINALIZED":
		switch result {
		case "SUCCESS":
			return status.SUCCESS
		case "FAILURE", "UNSTABLE":
			return status.FAILURE
		case "ABORTED":
			return status.CANCELED
		case "NOT_BUILT":
			return status.SKIPPED
		}
	}

	return status.UNKNOWN
}
