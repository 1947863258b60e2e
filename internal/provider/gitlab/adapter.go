package gitlab

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reconquest/buildhook/internal/event"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/signature"
	"github.com/reconquest/buildhook/internal/status"
	"github.com/reconquest/karma-go"
)

const (
	HeaderEvent = "X-Gitlab-Event"
	HeaderToken = "X-Gitlab-Token"
)

type Adapter struct{}

func NewAdapter() Adapter {
	return Adapter{}
}

func (Adapter) Name() string {
	return "gitlab"
}

func (Adapter) Identify(headers http.Header, body []byte) (provider.Identity, error) {
	eventType := headers.Get(HeaderEvent)
	if eventType == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"missing %s header", HeaderEvent,
		)
	}

	var payload struct {
		Project struct {
			WebURL string `json:"web_url"`
		} `json:"project"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return provider.Identity{}, karma.Format(
			err,
			"unable to decode webhook payload",
		)
	}

	if payload.Project.WebURL == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"payload carries no project url",
		)
	}

	return provider.Identity{
		EventType:     eventType,
		RepositoryKey: payload.Project.WebURL,
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

func (adapter Adapter) Normalize(
	eventType string,
	body []byte,
) (*event.BuildEvent, error) {
	switch eventType {
	case "Pipeline Hook":
		return adapter.normalizePipeline(body)

	case "Push Hook":
		return adapter.normalizePush(body)

	case "Note Hook":
		return adapter.normalizeNote(body)

	default:
		return nil, nil
	}
}

type pipelinePayload struct {
	ObjectAttributes struct {
		ID         int64      `json:"id"`
		Status     string     `json:"status"`
		Ref        string     `json:"ref"`
		CreatedAt  *time.Time `json:"created_at"`
		StartedAt  *time.Time `json:"started_at"`
		FinishedAt *time.Time `json:"finished_at"`
		URL        string     `json:"url"`
	} `json:"object_attributes"`
	Commit struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		URL     string `json:"url"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commit"`
}

func (adapter Adapter) normalizePipeline(body []byte) (*event.BuildEvent, error) {
	var payload pipelinePayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode pipeline payload")
	}

	attributes := payload.ObjectAttributes

	patch := event.BuildPatch{
		ExternalID:  fmt.Sprint(attributes.ID),
		Status:      mapPipelineStatus(attributes.Status),
		StartedAt:   attributes.StartedAt,
		FinishedAt:  attributes.FinishedAt,
		ProviderURL: attributes.URL,
	}

	patch.Commit.SHA = payload.Commit.ID
	patch.Commit.Branch = attributes.Ref
	patch.Commit.Message = payload.Commit.Message
	patch.Commit.Author = payload.Commit.Author.Name
	patch.Commit.URL = payload.Commit.URL

	return &event.BuildEvent{
		Provider: "gitlab",
		Type:     "pipeline",
		Build:    patch,
		Raw:      body,
	}, nil
}

func mapPipelineStatus(value string) status.Status {
	switch value {
	case "created", "waiting_for_resource", "preparing", "pending", "manual", "scheduled":
		return status.PENDING
	case "running":
		return status.RUNNING
	case "success":
		return status.SUCCESS
	case "failed":
		return status.FAILURE
	case "canceled":
		return status.CANCELED
	case "skipped":
		return status.SKIPPED
	default:
		return status.UNKNOWN
	}
}

type pushPayload struct {
	Ref         string `json:"ref"`
	After       string `json:"after"`
	CheckoutSHA string `json:"checkout_sha"`
	UserName    string `json:"user_name"`
	Commits     []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		URL     string `json:"url"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commits"`
}

func (adapter Adapter) normalizePush(body []byte) (*event.BuildEvent, error) {
	var payload pushPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode push payload")
	}

	if payload.CheckoutSHA == "" {
		// branch deletion
		return nil, nil
	}

	patch := event.BuildPatch{
		Status: status.PENDING,
	}

	patch.Commit.SHA = payload.CheckoutSHA
	patch.Commit.Branch = strings.TrimPrefix(payload.Ref, "refs/heads/")
	patch.Commit.Author = payload.UserName

	for _, commit := range payload.Commits {
		if commit.ID == payload.CheckoutSHA {
			patch.Commit.Message = commit.Message
			patch.Commit.URL = commit.URL
			patch.Commit.Author = commit.Author.Name
			break
		}
	}

	return &event.BuildEvent{
		Provider:    "gitlab",
		Type:        "push",
		MatchBranch: true,
		Build:       patch,
		Raw:         body,
	}, nil
}

type notePayload struct {
	User struct {
		Name string `json:"name"`
	} `json:"user"`
	ObjectAttributes struct {
		Note         string `json:"note"`
		NoteableType string `json:"noteable_type"`
	} `json:"object_attributes"`
	Commit struct {
		ID string `json:"id"`
	} `json:"commit"`
}

func (adapter Adapter) normalizeNote(body []byte) (*event.BuildEvent, error) {
	var payload notePayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode note payload")
	}

	if payload.ObjectAttributes.NoteableType != "Commit" ||
		payload.Commit.ID == "" {
		return nil, nil
	}

	patch := event.BuildPatch{}
	patch.Commit.SHA = payload.Commit.ID

	return &event.BuildEvent{
		Provider: "gitlab",
		Type:     "note",
		Build:    patch,
		Comment: &event.CommentPatch{
			Author: payload.User.Name,
			Body:   payload.ObjectAttributes.Note,
		},
		Raw: body,
	}, nil
}
