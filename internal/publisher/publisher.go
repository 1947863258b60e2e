package publisher

import (
	"github.com/reconquest/buildhook/internal/status"
)

// Publisher fans a build-changed event out to subscriber topics. It is
// fire-and-forget: delivery to topics without subscribers is silently
// dropped, and a failed fan-out never fails the reconciliation that
// triggered it.
type Publisher interface {
	Emit(topic string, payload interface{})
}

// BuildChanged is the event broadcast after every successful
// reconciliation, whether or not anything semantically changed.
// Subscribers are expected to be idempotent.
type BuildChanged struct {
	BuildID        string        `json:"build_id"`
	PipelineID     string        `json:"pipeline_id"`
	OrganizationID string        `json:"organization_id,omitempty"`
	Status         status.Status `json:"status"`
	Number         int           `json:"number"`
	Created        bool          `json:"created"`

	// Comment carries the comment body for comment subtypes only.
	Comment string `json:"comment,omitempty"`
}

// Topic addressing is a flat three-scope hierarchy: every event is
// emitted once per scope whose key is non-empty.

func BuildTopic(buildID string) string {
	return "build/" + buildID
}

func PipelineTopic(pipelineID string) string {
	return "pipeline/" + pipelineID
}

func OrganizationTopic(organizationID string) string {
	return "org/" + organizationID
}
