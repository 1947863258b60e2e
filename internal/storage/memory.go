package storage

import (
	"sync"

	"github.com/reconquest/buildhook/internal/entities"
	"github.com/reconquest/buildhook/internal/status"
	"github.com/reconquest/buildhook/internal/utils"
)

// Memory is an in-process Store used by tests and by deployments that
// run without a database. It mirrors the sqlite semantics including the
// (pipeline, external_id) uniqueness.
type Memory struct {
	mutex         sync.Mutex
	pipelines     map[string]entities.Pipeline
	builds        map[string]entities.Build
	notifications []entities.Notification
	unavailable   bool
}

func NewMemory() *Memory {
	return &Memory{
		pipelines: map[string]entities.Pipeline{},
		builds:    map[string]entities.Build{},
	}
}

// SetAvailable toggles the simulated availability of the store.
func (store *Memory) SetAvailable(available bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.unavailable = !available
}

func (store *Memory) Available() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.unavailable {
		return ErrUnavailable
	}

	return nil
}

func (store *Memory) guard() error {
	if store.unavailable {
		return ErrUnavailable
	}

	return nil
}

func (store *Memory) FindPipelineByID(id string) (*entities.Pipeline, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return nil, err
	}

	pipeline, ok := store.pipelines[id]
	if !ok {
		return nil, ErrNotFound
	}

	return clonePipeline(pipeline), nil
}

func (store *Memory) FindPipelineByRepository(
	provider string,
	repository string,
) (*entities.Pipeline, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return nil, err
	}

	for _, pipeline := range store.pipelines {
		if pipeline.Provider == provider && pipeline.Repository == repository {
			return clonePipeline(pipeline), nil
		}
	}

	return nil, ErrNotFound
}

func (store *Memory) SavePipeline(pipeline *entities.Pipeline) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return err
	}

	if pipeline.ID == "" {
		pipeline.ID = utils.RandString(24)
	}

	store.pipelines[pipeline.ID] = *clonePipeline(*pipeline)

	return nil
}

func (store *Memory) FindBuildByExternalID(
	pipelineID string,
	externalID string,
) (*entities.Build, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return nil, err
	}

	for _, build := range store.builds {
		if build.PipelineID == pipelineID && build.ExternalID == externalID {
			return cloneBuild(build), nil
		}
	}

	return nil, ErrNotFound
}

func (store *Memory) FindBuildByCommitSHA(
	pipelineID string,
	sha string,
) (*entities.Build, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return nil, err
	}

	var found *entities.Build
	for _, build := range store.builds {
		if build.PipelineID != pipelineID || build.Commit.SHA != sha {
			continue
		}

		if found == nil || build.Number > found.Number {
			copied := build
			found = &copied
		}
	}

	if found == nil {
		return nil, ErrNotFound
	}

	return cloneBuild(*found), nil
}

func (store *Memory) MaxBuildNumber(pipelineID string) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return 0, err
	}

	max := 0
	for _, build := range store.builds {
		if build.PipelineID == pipelineID && build.Number > max {
			max = build.Number
		}
	}

	return max, nil
}

func (store *Memory) CreateBuild(build *entities.Build) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return err
	}

	if build.ID == "" {
		build.ID = utils.RandString(24)
	}

	now := utils.Now()
	build.CreatedAt = now
	build.UpdatedAt = now

	store.builds[build.ID] = *cloneBuild(*build)

	return nil
}

func (store *Memory) SaveBuild(build *entities.Build) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return err
	}

	build.UpdatedAt = utils.Now()

	store.builds[build.ID] = *cloneBuild(*build)

	return nil
}

func (store *Memory) BuildStats(pipelineID string) (entities.PipelineStats, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	var stats entities.PipelineStats

	if err := store.guard(); err != nil {
		return stats, err
	}

	for _, build := range store.builds {
		if build.PipelineID != pipelineID {
			continue
		}

		stats.TotalBuilds++
		if build.Status == status.SUCCESS {
			stats.SuccessfulBuilds++
		}
	}

	if stats.TotalBuilds > 0 {
		stats.SuccessRate =
			float64(stats.SuccessfulBuilds) / float64(stats.TotalBuilds)
	}

	return stats, nil
}

func (store *Memory) CreateNotification(notification *entities.Notification) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.guard(); err != nil {
		return err
	}

	if notification.ID == "" {
		notification.ID = utils.RandString(24)
	}

	notification.CreatedAt = utils.Now()

	store.notifications = append(store.notifications, *notification)

	return nil
}

// Notifications returns the recorded notifications, oldest first.
func (store *Memory) Notifications() []entities.Notification {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	result := make([]entities.Notification, len(store.notifications))
	copy(result, store.notifications)

	return result
}

func (store *Memory) Close() error {
	return nil
}

func clonePipeline(pipeline entities.Pipeline) *entities.Pipeline {
	copied := pipeline

	if pipeline.LastBuild != nil {
		summary := *pipeline.LastBuild
		copied.LastBuild = &summary
	}

	return &copied
}

func cloneBuild(build entities.Build) *entities.Build {
	copied := build

	if build.StartedAt != nil {
		moment := *build.StartedAt
		copied.StartedAt = &moment
	}

	if build.FinishedAt != nil {
		moment := *build.FinishedAt
		copied.FinishedAt = &moment
	}

	if len(build.Comments) > 0 {
		copied.Comments = make([]entities.Comment, len(build.Comments))
		copy(copied.Comments, build.Comments)
	}

	return &copied
}
