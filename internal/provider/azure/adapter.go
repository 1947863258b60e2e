package azure

import (
	"encoding/json"
	"net/http"

	"github.com/reconquest/buildhook/internal/event"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/signature"
	"github.com/reconquest/karma-go"
)

const (
	HeaderToken = "X-Webhook-Token"
)

// Adapter is a stub for Azure DevOps service hooks: deliveries are
// identified and verified but not yet normalized.
type Adapter struct{}

func NewAdapter() Adapter {
	return Adapter{}
}

func (Adapter) Name() string {
	return "azure"
}

func (Adapter) Identify(headers http.Header, body []byte) (provider.Identity, error) {
	var payload struct {
		EventType string `json:"eventType"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return provider.Identity{}, karma.Format(
			err,
			"unable to decode webhook payload",
		)
	}

	if payload.EventType == "" {
		return provider.Identity{}, karma.Format(
			nil,
			"payload carries no eventType field",
		)
	}

	return provider.Identity{
		EventType: payload.EventType,
	}, nil
}

func (Adapter) Verify(headers http.Header, body []byte, secret string) bool {
	if secret == "" {
		return true
	}

	return signature.Verify(
		body,
		headers.Get(HeaderToken),
		secret,
		signature.SchemeRawToken,
	)
}

func (Adapter) Normalize(eventType string, body []byte) (*event.BuildEvent, error) {
	return nil, nil
}
