package storage

import (
	"errors"

	"github.com/reconquest/buildhook/internal/entities"
)

var (
	// ErrNotFound is returned by every Find* method when no record
	// matches. Callers compare against it directly.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable marks the backing database as unreachable. The
	// webhook path turns it into a processing failure, never a crash.
	ErrUnavailable = errors.New("storage unavailable")
)

// Store is the document-store surface the webhook core relies on.
// Pipelines are created by the onboarding flow; this core only reads
// them and writes back LastBuild and Stats. Builds are owned here.
type Store interface {
	// Available reports whether the store can serve requests right now.
	Available() error

	FindPipelineByID(id string) (*entities.Pipeline, error)
	FindPipelineByRepository(provider, repository string) (*entities.Pipeline, error)
	SavePipeline(pipeline *entities.Pipeline) error

	FindBuildByExternalID(pipelineID, externalID string) (*entities.Build, error)
	FindBuildByCommitSHA(pipelineID, sha string) (*entities.Build, error)

	// MaxBuildNumber returns the highest build number ever allocated for
	// the pipeline, zero when it has no builds. Concurrent callers may
	// observe the same value; the unique (pipeline, external id) index
	// catches the collision.
	MaxBuildNumber(pipelineID string) (int, error)

	CreateBuild(build *entities.Build) error
	SaveBuild(build *entities.Build) error

	BuildStats(pipelineID string) (entities.PipelineStats, error)

	CreateNotification(notification *entities.Notification) error

	Close() error
}
