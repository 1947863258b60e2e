package notifications

import (
	"fmt"

	"github.com/reconquest/buildhook/internal/entities"
	"github.com/reconquest/buildhook/internal/status"
	"github.com/reconquest/buildhook/internal/storage"
	"github.com/reconquest/karma-go"
)

// Notifier receives the build-finalized side effect. The reconciler
// guarantees it fires at most once per distinct terminal transition;
// delivery (email, chat, sms) happens downstream of the records this
// package creates.
type Notifier interface {
	BuildFinalized(pipeline *entities.Pipeline, build *entities.Build) error
}

// StoreNotifier records finalized builds as notification documents.
type StoreNotifier struct {
	store storage.Store
}

func NewStoreNotifier(store storage.Store) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (notifier *StoreNotifier) BuildFinalized(
	pipeline *entities.Pipeline,
	build *entities.Build,
) error {
	notification := entities.Notification{
		OrganizationID: pipeline.OrganizationID,
		PipelineID:     pipeline.ID,
		BuildID:        build.ID,
		Kind:           "build_" + string(build.Status),
		Title: fmt.Sprintf(
			"build #%d %s",
			build.Number,
			pastTense(build.Status),
		),
		Body: build.Commit.Message,
	}

	err := notifier.store.CreateNotification(&notification)
	if err != nil {
		return karma.
			Describe("pipeline", pipeline.ID).
			Describe("build", build.ID).
			Format(err, "unable to create notification")
	}

	return nil
}

func pastTense(value status.Status) string {
	switch value {
	case status.SUCCESS:
		return "succeeded"
	case status.FAILURE:
		return "failed"
	case status.CANCELED:
		return "was canceled"
	default:
		return "finished"
	}
}
