package github

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
	HeaderEvent     = "X-GitHub-Event"
	HeaderSignature = "X-Hub-Signature-256"

	zeroSHA = "0000000000000000000000000000000000000000"
)

type Adapter struct{}

func NewAdapter() Adapter {
	return Adapter{}
}

func (Adapter) Name() string {
	return "github"
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
		Repository struct {
			HTMLURL string `json:"html_url"`
		} `json:"repository"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return provider.Identity{}, karma.Format(
			err,
			"unable to decode webhook payload",
		)
	}

	if payload.Repository.HTMLURL == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"payload carries no repository url",
		)
	}

	return provider.Identity{
		EventType:     eventType,
		RepositoryKey: payload.Repository.HTMLURL,
	}, nil
}

// Verify checks the sha256-prefixed HMAC over the raw body. Pipelines
// configured without a secret accept deliveries as-is; that is the
// onboarding flow's call, not this adapter's.
func (Adapter) Verify(headers http.Header, body []byte, secret string) bool {
	if secret == "" {
		return true
	}

	return signature.Verify(
		body,
		headers.Get(HeaderSignature),
		secret,
		signature.SchemeHMACSHA256Prefixed,
	)
}

func (adapter Adapter) Normalize(
	eventType string,
	body []byte,
) (*event.BuildEvent, error) {
	switch eventType {
	case "workflow_run":
		return adapter.normalizeWorkflowRun(body)

	case "push":
		return adapter.normalizePush(body)

	case "commit_comment":
		return adapter.normalizeCommitComment(body)

	default:
		return nil, nil
	}
}

type workflowRunPayload struct {
	Action      string `json:"action"`
	WorkflowRun struct {
		ID           int64      `json:"id"`
		Status       string     `json:"status"`
		Conclusion   string     `json:"conclusion"`
		RunAttempt   int        `json:"run_attempt"`
		RunStartedAt *time.Time `json:"run_started_at"`
		UpdatedAt    *time.Time `json:"updated_at"`
		HeadBranch   string     `json:"head_branch"`
		HeadSHA      string     `json:"head_sha"`
		HTMLURL      string     `json:"html_url"`
		HeadCommit   struct {
			Message string `json:"message"`
			Author  struct {
				Name string `json:"name"`
			} `json:"author"`
		} `json:"head_commit"`
	} `json:"workflow_run"`
}

func (adapter Adapter) normalizeWorkflowRun(body []byte) (*event.BuildEvent, error) {
	var payload workflowRunPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode workflow_run payload")
	}

	run := payload.WorkflowRun

	patch := event.BuildPatch{
		ExternalID:  fmt.Sprint(run.ID),
		Status:      mapWorkflowRun(run.Status, run.Conclusion),
		StartedAt:   run.RunStartedAt,
		ProviderURL: run.HTMLURL,
	}

	patch.Commit.SHA = run.HeadSHA
	patch.Commit.Branch = run.HeadBranch
	patch.Commit.Message = run.HeadCommit.Message
	patch.Commit.Author = run.HeadCommit.Author.Name

	if run.Status == "completed" {
		patch.FinishedAt = run.UpdatedAt
	}

	if run.RunAttempt > 1 {
		patch.RetryOf = patch.ExternalID
		patch.ExternalID = fmt.Sprintf("%d-%d", run.ID, run.RunAttempt)
	}

	return &event.BuildEvent{
		Provider: "github",
		Type:     "workflow_run",
		Build:    patch,
		Raw:      body,
	}, nil
}

// mapWorkflowRun folds the GitHub status/conclusion pair into a single
// canonical status. Unmapped combinations are UNKNOWN, never an error.
func mapWorkflowRun(runStatus, conclusion string) status.Status {
	switch runStatus {
	case "queued", "waiting", "requested":
		return status.PENDING

	case "in_progress":
		return status.RUNNING

	case "completed":
		switch conclusion {
		case "success":
			return status.SUCCESS
		case "failure", "timed_out", "action_required", "startup_failure":
			return status.FAILURE
		case "cancelled":
			return status.CANCELED
		case "skipped":
			return status.SKIPPED
		}
	}

	return status.UNKNOWN
}

type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Compare    string `json:"compare"`
	HeadCommit struct {
		Message string `json:"message"`
		URL     string `json:"url"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"head_commit"`
}

func (adapter Adapter) normalizePush(body []byte) (*event.BuildEvent, error) {
	var payload pushPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode push payload")
	}

	// branch deletions push a zero sha and start no build
	if payload.After == "" || payload.After == zeroSHA {
		return nil, nil
	}

	patch := event.BuildPatch{
		Status:      status.PENDING,
		ProviderURL: payload.Compare,
	}

	patch.Commit.SHA = payload.After
	patch.Commit.Branch = strings.TrimPrefix(payload.Ref, "refs/heads/")
	patch.Commit.Message = payload.HeadCommit.Message
	patch.Commit.Author = payload.HeadCommit.Author.Name
	patch.Commit.URL = payload.HeadCommit.URL

	return &event.BuildEvent{
		Provider:    "github",
		Type:        "push",
		MatchBranch: true,
		Build:       patch,
		Raw:         body,
	}, nil
}

type commitCommentPayload struct {
	Comment struct {
		Body     string `json:"body"`
		CommitID string `json:"commit_id"`
		User     struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
}

func (adapter Adapter) normalizeCommitComment(body []byte) (*event.BuildEvent, error) {
	var payload commitCommentPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, karma.Format(err, "unable to decode commit_comment payload")
	}

	if payload.Comment.CommitID == "" {
		return nil, nil
	}

	patch := event.BuildPatch{}
	patch.Commit.SHA = payload.Comment.CommitID

	return &event.BuildEvent{
		Provider: "github",
		Type:     "commit_comment",
		Build:    patch,
		Comment: &event.CommentPatch{
			Author: payload.Comment.User.Login,
			Body:   payload.Comment.Body,
		},
		Raw: body,
	}, nil
}
