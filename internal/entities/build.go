package entities

import (
	"time"

	"github.com/reconquest/buildhook/internal/status"
)

// Build is a single CI build reconciled from provider webhooks. It is
// identified within a pipeline either by the provider-assigned external
// id or, when the provider sends none, by the commit sha.
type Build struct {
	ID             string        `json:"id"`
	PipelineID     string        `json:"pipeline_id"`
	OrganizationID string        `json:"organization_id"`
	Number         int           `json:"number"`
	ExternalID     string        `json:"external_id,omitempty"`
	Status         status.Status `json:"status"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`

	// Duration is derived in seconds whenever FinishedAt gets newly set
	// and StartedAt is known. Clock skew clamps it to zero.
	Duration int64 `json:"duration"`

	Commit      Commit    `json:"commit"`
	ProviderURL string    `json:"provider_url,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
	Retries     Retries   `json:"retries"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Commit struct {
	SHA     string `json:"sha,omitempty"`
	Message string `json:"message,omitempty"`
	Author  string `json:"author,omitempty"`
	Branch  string `json:"branch,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Comment is an append-only log entry attached to a build.
type Comment struct {
	Author   string    `json:"author"`
	Body     string    `json:"body"`
	PostedAt time.Time `json:"posted_at"`
}

// Retries links a re-run build back to the build it retries.
type Retries struct {
	Count           int    `json:"count"`
	OriginalBuildID string `json:"original_build_id,omitempty"`
}
