// Package registry implements the broker's handler registry: a
// name -> handler dispatch table with capability introspection
// (spec §4.1).
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// Handler performs an action's side effects and returns a matching
// response. Handlers must not mutate policy or audit state (spec §4.1)
// and are pure with respect to the pipeline.
type Handler func(ctx context.Context, req wire.Request) wire.Response

// IPCVersion is reported in get_capabilities responses.
const IPCVersion = "1.0"

// Registry is a mutex-guarded name -> Handler map.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty registry and wires in the built-in ping and
// get_capabilities actions.
func New() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register("ping", func(ctx context.Context, req wire.Request) wire.Response {
		return wire.OK("ping", "pong")
	})
	r.Register("get_capabilities", func(ctx context.Context, req wire.Request) wire.Response {
		resp := wire.OK("get_capabilities", "")
		resp.Capabilities = &wire.Capability{
			IPCVersion:      IPCVersion,
			Actions:         r.Names(),
			ProtocolVersion: wire.ProtocolVersion,
		}
		return resp
	})
	return r
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Dispatch looks up and invokes the handler for req.Name. Unknown names
// surface as an error response (spec §4.1).
func (r *Registry) Dispatch(ctx context.Context, req wire.Request) wire.Response {
	r.mu.RLock()
	h, ok := r.handlers[req.Name]
	r.mu.RUnlock()
	if !ok {
		return wire.Errorf(req.Name, fmt.Sprintf("no handler registered for action '%s'", req.Name))
	}
	return h(ctx, req)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the sorted set of registered action names (spec §9:
// "get_capabilities reflects the registry exactly").
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
