package router

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/reconquest/buildhook/internal/entities"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/reconciler"
	"github.com/reconquest/buildhook/internal/storage"
	"github.com/reconquest/cog"
	"github.com/reconquest/karma-go"
	"github.com/reconquest/pkg/log"
)

// Outcome is the terminal state of one webhook delivery. Every delivery
// reaches exactly one of these; the HTTP layer maps them onto response
// codes.
type Outcome int

const (
	// OutcomePublished: the event was reconciled and fanned out.
	OutcomePublished Outcome = iota

	// OutcomeIgnored: recognized but irrelevant (unknown event type,
	// branch mismatch, comment for an untracked build). Acknowledged
	// with success so the provider does not retry.
	OutcomeIgnored

	// OutcomeMalformed: the target pipeline cannot be resolved from the
	// delivery at all.
	OutcomeMalformed

	// OutcomeUnverified: the signature or token check failed. Distinct
	// from OutcomeMalformed so operators can tell misconfigured secrets
	// from garbled payloads.
	OutcomeUnverified

	// OutcomeFailed: the delivery was understood but processing or
	// persistence broke. Still answered, never propagated as a crash.
	OutcomeFailed
)

// Request is one inbound webhook delivery. PipelineID is set when the
// webhook URL embeds the target pipeline, which is how providers
// without payload repository info are routed.
type Request struct {
	Provider   string
	Headers    http.Header
	Body       []byte
	PipelineID string
}

type Result struct {
	Outcome Outcome
	Build   *entities.Build
	Created bool
}

// Router drives a delivery through identification, verification,
// normalization and reconciliation. It owns the ordering contract:
// verification happens only after the target pipeline (and therefore
// its secret) is resolved.
type Router struct {
	registry   *provider.Registry
	store      storage.Store
	reconciler *reconciler.Reconciler
}

func New(
	registry *provider.Registry,
	store storage.Store,
	rec *reconciler.Reconciler,
) *Router {
	return &Router{
		registry:   registry,
		store:      store,
		reconciler: rec,
	}
}

// Process always returns a result; a panicking adapter is converted
// into OutcomeFailed instead of taking the process down.
func (router *Router) Process(request Request) (result Result) {
	logger := log.NewChildWithPrefix(
		fmt.Sprintf("[webhook:%s]", request.Provider),
	)

	defer func() {
		if panicked := recover(); panicked != nil {
			logger.Errorf(
				karma.
					Describe("provider", request.Provider).
					Describe("panic", panicked).
					Describe("stack", string(debug.Stack())).
					Reason(nil),
				"panic while processing webhook delivery",
			)

			result = Result{Outcome: OutcomeFailed}
		}
	}()

	adapter, err := router.registry.Get(request.Provider)
	if err != nil {
		logger.Warningf(err, "webhook delivery for unknown provider rejected")

		return Result{Outcome: OutcomeMalformed}
	}

	identity, err := adapter.Identify(request.Headers, request.Body)
	if err != nil {
		logger.Warningf(
			karma.Describe("provider", request.Provider).Reason(err),
			"unable to identify webhook delivery",
		)

		return Result{Outcome: OutcomeMalformed}
	}

	context := karma.
		Describe("provider", request.Provider).
		Describe("event_type", identity.EventType)

	pipeline, outcome := router.resolvePipeline(logger, context, identity, request)
	if pipeline == nil {
		return Result{Outcome: outcome}
	}

	context = context.Describe("pipeline", pipeline.ID)

	if !adapter.Verify(request.Headers, request.Body, pipeline.WebhookSecret) {
		logger.Warningf(
			context.Reason(nil),
			"webhook delivery failed signature verification",
		)

		return Result{Outcome: OutcomeUnverified}
	}

	canonical, err := adapter.Normalize(identity.EventType, request.Body)
	if err != nil {
		logger.Errorf(
			context.Reason(err),
			"unable to normalize webhook payload",
		)

		return Result{Outcome: OutcomeFailed}
	}

	if canonical == nil {
		logger.Debugf(context, "irrelevant webhook event acknowledged")

		return Result{Outcome: OutcomeIgnored}
	}

	// branch filtering is an exact match against the pipeline's single
	// tracked branch
	if canonical.MatchBranch &&
		pipeline.Branch != "" &&
		canonical.Build.Commit.Branch != pipeline.Branch {
		logger.Debugf(
			context.Describe("branch", canonical.Build.Commit.Branch),
			"webhook event for unmatched branch acknowledged",
		)

		return Result{Outcome: OutcomeIgnored}
	}

	reconciled, err := router.reconciler.Reconcile(pipeline, canonical)
	if err != nil {
		logger.Errorf(
			context.
				Describe("external_id", canonical.Build.ExternalID).
				Describe("sha", canonical.Build.Commit.SHA).
				Reason(err),
			"unable to reconcile webhook event",
		)

		return Result{Outcome: OutcomeFailed}
	}

	if reconciled.Build == nil {
		return Result{Outcome: OutcomeIgnored}
	}

	return Result{
		Outcome: OutcomePublished,
		Build:   reconciled.Build,
		Created: reconciled.Created,
	}
}

func (router *Router) resolvePipeline(
	logger *cog.Logger,
	context *karma.Context,
	identity provider.Identity,
	request Request,
) (*entities.Pipeline, Outcome) {
	var (
		pipeline *entities.Pipeline
		err      error
	)

	pipelineID := identity.PipelineID
	if pipelineID == "" {
		pipelineID = request.PipelineID
	}

	switch {
	case identity.RepositoryKey != "":
		pipeline, err = router.store.FindPipelineByRepository(
			request.Provider, identity.RepositoryKey,
		)

	case pipelineID != "":
		pipeline, err = router.store.FindPipelineByID(pipelineID)

	default:
		logger.Warningf(
			context.Reason(nil),
			"webhook delivery carries no pipeline target",
		)

		return nil, OutcomeMalformed
	}

	if err == storage.ErrNotFound {
		logger.Warningf(
			context.
				Describe("repository", identity.RepositoryKey).
				Describe("pipeline", pipelineID).
				Reason(nil),
			"webhook delivery for unknown pipeline rejected",
		)

		return nil, OutcomeMalformed
	}

	if err != nil {
		logger.Errorf(
			context.Reason(err),
			"unable to look up target pipeline",
		)

		return nil, OutcomeFailed
	}

	return pipeline, OutcomePublished
}
