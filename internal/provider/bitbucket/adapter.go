package bitbucket

import (
	"encoding/json"
	"net/http"

	"github.com/reconquest/buildhook/internal/event"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/signature"
	"github.com/reconquest/karma-go"
)

const (
	HeaderEvent     = "X-Event-Key"
	HeaderSignature = "X-Hub-Signature"
)

// Adapter is a stub: it identifies and verifies Bitbucket deliveries so
// that misconfigured hooks surface properly, but normalizes nothing yet.
// TODO: map repo:push and pullrequest events once Bitbucket Pipelines
// onboarding lands.
type Adapter struct{}

func NewAdapter() Adapter {
	return Adapter{}
}

func (Adapter) Name() string {
	return "bitbucket"
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
			Links struct {
				HTML struct {
					Href string `json:"href"`
				} `json:"html"`
			} `json:"links"`
		} `json:"repository"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return provider.Identity{}, karma.Format(
			err,
			"unable to decode webhook payload",
		)
	}

	if payload.Repository.Links.HTML.Href == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"payload carries no repository url",
		)
	}

	return provider.Identity{
		EventType:     eventType,
		RepositoryKey: payload.Repository.Links.HTML.Href,
	}, nil
}

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

func (Adapter) Normalize(eventType string, body []byte) (*event.BuildEvent, error) {
	return nil, nil
}
