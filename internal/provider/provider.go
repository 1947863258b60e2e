package provider

import (
	"net/http"
	"sort"

	"github.com/reconquest/buildhook/internal/event"
	"github.com/reconquest/karma-go"
)

// Identity names what an inbound delivery is about before any payload
// processing happens: the provider's event type and the key used to
// resolve the target pipeline. Providers that embed no repository
// information in the payload carry the pipeline id in the webhook URL
// instead; the entry point passes it through the headers-independent
// PipelineID field.
type Identity struct {
	EventType     string
	RepositoryKey string
	PipelineID    string
}

// Adapter translates one provider's webhook dialect. Implementations
// must be stateless: a single instance serves concurrent deliveries.
type Adapter interface {
	// Name returns the provider identifier used in webhook routes and
	// stored on pipelines.
	Name() string

	// Identify extracts the event type and the pipeline lookup key from
	// the delivery. It returns an error only when the target cannot be
	// determined at all, which the caller treats as a malformed request.
	Identify(headers http.Header, body []byte) (Identity, error)

	// Verify checks the delivery's authenticity against the pipeline's
	// stored secret. Adapters for providers that sign optionally may
	// accept deliveries without a signature.
	Verify(headers http.Header, body []byte, secret string) bool

	// Normalize maps the payload onto the canonical event. A recognized
	// but irrelevant event type yields (nil, nil): the delivery is
	// acknowledged without any reconciliation.
	Normalize(eventType string, body []byte) (*event.BuildEvent, error)
}

// Registry resolves adapters by provider name. It is populated once at
// startup; request handling never loads anything dynamically.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{
		adapters: map[string]Adapter{},
	}

	for _, adapter := range adapters {
		registry.Register(adapter)
	}

	return registry
}

func (registry *Registry) Register(adapter Adapter) {
	registry.adapters[adapter.Name()] = adapter
}

func (registry *Registry) Get(name string) (Adapter, error) {
	adapter, ok := registry.adapters[name]
	if !ok {
		return nil, karma.
			Describe("provider", name).
			Format(nil, "unknown webhook provider")
	}

	return adapter, nil
}

func (registry *Registry) Names() []string {
	names := []string{}
	for name := range registry.adapters {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
