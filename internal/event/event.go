package event

import (
	"encoding/json"
	"time"

	"github.com/reconquest/buildhook/internal/entities"
	"github.com/reconquest/buildhook/internal/status"
)

// BuildEvent is the canonical form every provider adapter normalizes
// into. It lives only for the duration of one webhook delivery: the
// reconciler merges it into persistent state and discards it.
type BuildEvent struct {
	Provider string
	Type     string

	// MatchBranch marks events subject to the pipeline branch filter
	// (pushes, merges). Events tied to a concrete provider build are
	// delivered regardless of branch.
	MatchBranch bool

	Build   BuildPatch
	Comment *CommentPatch

	Raw json.RawMessage
}

// BuildPatch carries only the fields the provider actually supplied.
// Absent fields (empty strings, nil times) never overwrite previously
// known values during reconciliation.
type BuildPatch struct {
	ExternalID  string
	Status      status.Status
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Commit      entities.Commit
	ProviderURL string

	// RetryOf holds the external id of the original run when the
	// provider marked this delivery as a re-run. A retry always creates
	// a new build instead of regressing the original's terminal status.
	RetryOf string
}

// CommentPatch appends to the matched build's comment log.
type CommentPatch struct {
	Author string
	Body   string
}
