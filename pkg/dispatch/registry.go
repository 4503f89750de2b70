package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Handler is the capability behind one action name.
// Handlers perform their own side effects and report back through an ActionResult.
type Handler interface {
	Invoke(ctx context.Context, inv *domain.Invocation) domain.ActionResult
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv *domain.Invocation) domain.ActionResult

// Invoke calls f(ctx, inv).
func (f HandlerFunc) Invoke(ctx context.Context, inv *domain.Invocation) domain.ActionResult {
	return f(ctx, inv)
}

// Registry maps action names to handlers. It is populated at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Names are unique.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("register action: empty name")
	}
	if h == nil {
		return fmt.Errorf("register action %q: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("register action %q: already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// RegisterFunc registers a plain function.
func (r *Registry) RegisterFunc(name string, fn func(context.Context, *domain.Invocation) domain.ActionResult) error {
	return r.Register(name, HandlerFunc(fn))
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered action names, sorted.
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

// CheckFlow verifies every Invoke in the flow names a registered action.
func (r *Registry) CheckFlow(flow *domain.FlowDefinition) error {
	for _, s := range flow.States {
		for _, list := range [][]domain.Action{s.PreActions, s.PostActions} {
			for _, a := range list {
				if a.Kind != domain.ActionInvoke || r.Has(a.Function) {
					continue
				}
				return &domain.ConfigurationError{
					Op:    "check action " + a.Function,
					Flow:  flow.ID,
					State: s.Name,
					Err:   domain.ErrUnknownAction,
				}
			}
		}
	}
	return nil
}
