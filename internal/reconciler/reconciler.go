package reconciler

import (
	"time"

	"github.com/reconquest/buildhook/internal/entities"
	"github.com/reconquest/buildhook/internal/event"
	"github.com/reconquest/buildhook/internal/notifications"
	"github.com/reconquest/buildhook/internal/publisher"
	"github.com/reconquest/buildhook/internal/status"
	"github.com/reconquest/buildhook/internal/storage"
	"github.com/reconquest/buildhook/internal/utils"
	"github.com/reconquest/karma-go"
	"github.com/reconquest/pkg/log"
)

// Reconciler merges canonical events into persistent build state.
// Webhooks arrive retried, duplicated and out of order; the merge rules
// here keep the stored state from regressing no matter the order.
type Reconciler struct {
	store     storage.Store
	notifier  notifications.Notifier
	publisher publisher.Publisher
}

func New(
	store storage.Store,
	notifier notifications.Notifier,
	pub publisher.Publisher,
) *Reconciler {
	return &Reconciler{
		store:     store,
		notifier:  notifier,
		publisher: pub,
	}
}

// Result reports what a reconciliation did. A nil Build means the event
// matched nothing actionable (e.g. a comment for an unknown build) and
// was dropped without any mutation.
type Result struct {
	Build   *entities.Build
	Created bool
}

// Reconcile finds or creates the build addressed by the event, merges
// the event's fields into it and updates the pipeline's last-build
// snapshot and statistics. Any persistence failure on the build itself
// aborts the whole reconciliation: nothing is published for an event
// that was not stored.
func (reconciler *Reconciler) Reconcile(
	pipeline *entities.Pipeline,
	incoming *event.BuildEvent,
) (Result, error) {
	existing, err := reconciler.find(pipeline, incoming.Build)
	if err != nil {
		return Result{}, err
	}

	if existing == nil && incoming.Comment != nil {
		// a comment can only annotate a build we already track
		return Result{}, nil
	}

	var (
		build      *entities.Build
		created    bool
		prevStatus status.Status
	)

	if existing == nil {
		build, err = reconciler.create(pipeline, incoming.Build)
		if err != nil {
			return Result{}, err
		}

		created = true
	} else {
		prevStatus = existing.Status

		merge(existing, incoming)

		err = reconciler.store.SaveBuild(existing)
		if err != nil {
			return Result{}, err
		}

		build = existing
	}

	if status.IsTerminal(build.Status) && prevStatus != build.Status {
		err := reconciler.notifier.BuildFinalized(pipeline, build)
		if err != nil {
			log.Errorf(err, "unable to notify about finalized build")
		}
	}

	reconciler.updatePipeline(pipeline, build)

	changed := publisher.BuildChanged{
		BuildID:        build.ID,
		PipelineID:     pipeline.ID,
		OrganizationID: pipeline.OrganizationID,
		Status:         build.Status,
		Number:         build.Number,
		Created:        created,
	}

	if incoming.Comment != nil {
		changed.Comment = incoming.Comment.Body
	}

	reconciler.publisher.Emit(publisher.BuildTopic(build.ID), changed)
	reconciler.publisher.Emit(publisher.PipelineTopic(pipeline.ID), changed)

	if pipeline.OrganizationID != "" {
		reconciler.publisher.Emit(
			publisher.OrganizationTopic(pipeline.OrganizationID),
			changed,
		)
	}

	return Result{Build: build, Created: created}, nil
}

// find resolves the build the event addresses: by external id when the
// provider assigned one, by commit sha otherwise. An external-id miss
// still falls back to the sha so that a build opened by a push event
// adopts the CI run that follows it.
func (reconciler *Reconciler) find(
	pipeline *entities.Pipeline,
	patch event.BuildPatch,
) (*entities.Build, error) {
	if patch.ExternalID != "" {
		build, err := reconciler.store.FindBuildByExternalID(
			pipeline.ID, patch.ExternalID,
		)
		if err == nil {
			return build, nil
		}
		if err != storage.ErrNotFound {
			return nil, err
		}
	}

	if patch.Commit.SHA != "" {
		build, err := reconciler.store.FindBuildByCommitSHA(
			pipeline.ID, patch.Commit.SHA,
		)
		if err == storage.ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		// never steal a build that already belongs to another run
		if patch.ExternalID != "" &&
			build.ExternalID != "" &&
			build.ExternalID != patch.ExternalID {
			return nil, nil
		}

		return build, nil
	}

	return nil, nil
}

func (reconciler *Reconciler) create(
	pipeline *entities.Pipeline,
	patch event.BuildPatch,
) (*entities.Build, error) {
	max, err := reconciler.store.MaxBuildNumber(pipeline.ID)
	if err != nil {
		return nil, err
	}

	build := &entities.Build{
		PipelineID:     pipeline.ID,
		OrganizationID: pipeline.OrganizationID,
		Number:         max + 1,
		ExternalID:     patch.ExternalID,
		Status:         patch.Status,
		StartedAt:      patch.StartedAt,
		FinishedAt:     patch.FinishedAt,
		Commit:         patch.Commit,
		ProviderURL:    patch.ProviderURL,
	}

	if build.Status == "" {
		build.Status = status.UNKNOWN
	}

	if build.StartedAt != nil && build.FinishedAt != nil {
		build.Duration = duration(*build.StartedAt, *build.FinishedAt)
	}

	if patch.RetryOf != "" {
		reconciler.linkRetry(pipeline, build, patch.RetryOf)
	}

	err = reconciler.store.CreateBuild(build)
	if err != nil {
		return nil, err
	}

	return build, nil
}

// linkRetry points a re-run build at its original and bumps the
// original's retry counter. Failures here degrade the linkage, not the
// reconciliation.
func (reconciler *Reconciler) linkRetry(
	pipeline *entities.Pipeline,
	build *entities.Build,
	retryOf string,
) {
	original, err := reconciler.store.FindBuildByExternalID(pipeline.ID, retryOf)
	if err != nil {
		if err != storage.ErrNotFound {
			log.Errorf(err, "unable to look up original build of a retry")
		}

		return
	}

	build.Retries.OriginalBuildID = original.ID

	original.Retries.Count++

	err = reconciler.store.SaveBuild(original)
	if err != nil {
		log.Errorf(err, "unable to bump retry count on original build")
	}
}

// merge applies only the fields the event actually carries: an absent
// field never erases a previously known value, and a terminal status
// never regresses to a non-terminal one on a late webhook.
func merge(build *entities.Build, incoming *event.BuildEvent) {
	patch := incoming.Build

	if patch.Status != "" && patch.Status != build.Status {
		if !status.IsTerminal(build.Status) || status.IsTerminal(patch.Status) {
			build.Status = patch.Status
		}
	}

	if patch.StartedAt != nil {
		build.StartedAt = patch.StartedAt
	}

	if patch.FinishedAt != nil {
		newlyFinished := build.FinishedAt == nil ||
			!build.FinishedAt.Equal(*patch.FinishedAt)

		build.FinishedAt = patch.FinishedAt

		if newlyFinished && build.StartedAt != nil {
			build.Duration = duration(*build.StartedAt, *build.FinishedAt)
		}
	}

	if patch.ExternalID != "" && build.ExternalID == "" {
		build.ExternalID = patch.ExternalID
	}

	if patch.Commit.SHA != "" {
		build.Commit.SHA = patch.Commit.SHA
	}
	if patch.Commit.Message != "" {
		build.Commit.Message = patch.Commit.Message
	}
	if patch.Commit.Author != "" {
		build.Commit.Author = patch.Commit.Author
	}
	if patch.Commit.Branch != "" {
		build.Commit.Branch = patch.Commit.Branch
	}
	if patch.Commit.URL != "" {
		build.Commit.URL = patch.Commit.URL
	}

	if patch.ProviderURL != "" {
		build.ProviderURL = patch.ProviderURL
	}

	if incoming.Comment != nil {
		build.Comments = append(build.Comments, entities.Comment{
			Author:   incoming.Comment.Author,
			Body:     incoming.Comment.Body,
			PostedAt: utils.Now(),
		})
	}
}

// duration is the derived build duration in whole seconds, clamped to
// zero when provider clocks disagree.
func duration(startedAt, finishedAt time.Time) int64 {
	seconds := int64(finishedAt.Sub(startedAt) / time.Second)
	if seconds < 0 {
		return 0
	}

	return seconds
}

// updatePipeline advances the last-build snapshot and recomputes the
// derived statistics. The snapshot only moves forward: a late event for
// an older build leaves it alone. Failures here are logged and do not
// undo the already persisted build.
func (reconciler *Reconciler) updatePipeline(
	pipeline *entities.Pipeline,
	build *entities.Build,
) {
	if pipeline.LastBuild == nil || build.Number >= pipeline.LastBuild.Number {
		pipeline.LastBuild = &entities.BuildSummary{
			BuildID:    build.ID,
			Number:     build.Number,
			Status:     build.Status,
			StartedAt:  build.StartedAt,
			FinishedAt: build.FinishedAt,
			Duration:   build.Duration,
			Commit:     build.Commit,
		}
	}

	stats, err := reconciler.store.BuildStats(pipeline.ID)
	if err != nil {
		log.Errorf(
			karma.Describe("pipeline", pipeline.ID).Reason(err),
			"unable to recompute pipeline statistics",
		)
	} else {
		pipeline.Stats = stats
	}

	err = reconciler.store.SavePipeline(pipeline)
	if err != nil {
		log.Errorf(
			karma.Describe("pipeline", pipeline.ID).Reason(err),
			"unable to save pipeline snapshot",
		)
	}
}
