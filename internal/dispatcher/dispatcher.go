// Package dispatcher is the caller-facing entry point of the gateway
// core: it routes canonical requests to per-provider handlers resolved
// through the capability registry and propagates canonical errors
// unchanged.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/credentials"
	"github.com/stuagano/litellm/internal/handler"
	"github.com/stuagano/litellm/internal/providers"
	"github.com/stuagano/litellm/internal/transport"
)

// Dispatcher holds one stateless handler per registered provider.
// It carries no request-scoped mutable state and is safe to share
// across concurrent calls.
type Dispatcher struct {
	registry *providers.Registry
	handlers map[string]*handler.Handler
}

// New builds a dispatcher over the given registry, creating one handler
// per registered provider. The registry must be fully populated before
// this call; late registrations are not picked up.
func New(registry *providers.Registry, tr transport.Transport, creds credentials.Source, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	handlers := make(map[string]*handler.Handler)

	for _, desc := range registry.List() {
		t, _ := registry.Get(desc.ID)
		handlers[desc.ID] = handler.New(t, registry, tr, creds, timeout, logger)
	}

	return &Dispatcher{
		registry: registry,
		handlers: handlers,
	}
}

// Registry exposes the capability table for enumeration surfaces.
func (d *Dispatcher) Registry() *providers.Registry { return d.registry }

// Dispatch routes a canonical request to the named provider's handler.
// Canonical errors from the handler pass through unchanged; the
// dispatcher neither re-wraps nor swallows them.
func (d *Dispatcher) Dispatch(ctx context.Context, providerID string, req *canonical.Request) (*canonical.Response, error) {
	h, err := d.handlerFor(providerID, req.Operation)
	if err != nil {
		return nil, err
	}

	return h.Execute(ctx, req)
}

// DispatchStream routes a streaming canonical request.
func (d *Dispatcher) DispatchStream(ctx context.Context, providerID string, req *canonical.Request) (*handler.Stream, error) {
	h, err := d.handlerFor(providerID, req.Operation)
	if err != nil {
		return nil, err
	}

	return h.Stream(ctx, req)
}

// PollJob looks up a fine-tune job's status through the provider's
// handler. Job identifiers are opaque strings passed through unchanged.
func (d *Dispatcher) PollJob(ctx context.Context, providerID string, jobID string) (*canonical.Response, error) {
	h, err := d.handlerFor(providerID, canonical.OpFineTune)
	if err != nil {
		return nil, err
	}

	return h.Poll(ctx, jobID)
}

func (d *Dispatcher) handlerFor(providerID string, op canonical.Operation) (*handler.Handler, error) {
	if _, err := d.registry.Resolve(providerID, op); err != nil {
		return nil, err
	}

	h, exists := d.handlers[providerID]
	if !exists {
		return nil, canonical.Errorf(canonical.ProviderUnavailable, "no handler for provider %q", providerID)
	}

	return h, nil
}
