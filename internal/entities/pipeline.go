package entities

import (
	"time"

	"github.com/reconquest/buildhook/internal/status"
)

// Pipeline is owned by the onboarding flow; the webhook core only reads
// it and conditionally updates LastBuild and Stats.
type Pipeline struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Provider       string `json:"provider"`

	// Repository is the provider-side repository or job identifier used
	// to resolve inbound webhooks: a repository URL for providers that
	// embed it in the payload, a job name otherwise.
	Repository string `json:"repository"`

	// Branch is matched exactly against push/merge events. BranchPattern
	// exists for the wider system but is not consulted on the webhook
	// path.
	Branch        string `json:"branch,omitempty"`
	BranchPattern string `json:"branch_pattern,omitempty"`

	WebhookSecret string `json:"webhook_secret,omitempty"`

	LastBuild *BuildSummary `json:"last_build,omitempty"`
	Stats     PipelineStats `json:"stats"`
}

// BuildSummary is the snapshot of the most recent build kept on the
// pipeline. It only ever advances: a late webhook for an older build
// must not overwrite it.
type BuildSummary struct {
	BuildID    string        `json:"build_id"`
	Number     int           `json:"number"`
	Status     status.Status `json:"status"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   int64         `json:"duration"`
	Commit     Commit        `json:"commit"`
}

type PipelineStats struct {
	TotalBuilds      int     `json:"total_builds"`
	SuccessfulBuilds int     `json:"successful_builds"`
	SuccessRate      float64 `json:"success_rate"`
}

// Notification is the record handed to the delivery subsystem when a
// build reaches a terminal status. Delivery itself (email, chat) is not
// part of this service.
type Notification struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	PipelineID     string    `json:"pipeline_id"`
	BuildID        string    `json:"build_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	Body           string    `json:"body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
