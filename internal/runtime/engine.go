// Package runtime executes one processing cycle of a session against its flow definition.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// DefaultMaxSteps bounds how many states and jumps one cycle may chain through.
const DefaultMaxSteps = 32

// Engine runs event-processing cycles. It keeps no per-session state and is safe to share;
// callers provide per-session exclusivity.
type Engine struct {
	flows      ports.FlowRepository
	dispatcher ports.Dispatcher
	logger     *slog.Logger
	hooks      domain.LifecycleHooks
	entryFlow  string
	maxSteps   int
}

// EngineOption defines a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithEntryFlow sets the flow (id or name) a session starts when no flow is requested.
func WithEntryFlow(flow string) EngineOption {
	return func(e *Engine) {
		e.entryFlow = flow
	}
}

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine creates a new engine with dependencies.
func NewEngine(flows ports.FlowRepository, dispatcher ports.Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		flows:      flows,
		dispatcher: dispatcher,
		logger:     logging.NewNop(),
		maxSteps:   DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EntryFlow returns the configured entry flow reference.
func (e *Engine) EntryFlow() string {
	return e.entryFlow
}

// Process runs one cycle for ev against session.
// The input session is never mutated; the outcome carries the session to persist.
func (e *Engine) Process(ctx context.Context, session *domain.Session, ev domain.InboundEvent) *Outcome {
	started := time.Now()
	c := &cycle{
		engine: e,
		sess:   session.Clone(),
		event:  ev,
	}

	out := c.run(ctx, session)

	e.emitCycleEnd(ctx, out, time.Since(started))
	return out
}

// lookupFlow resolves a flow reference by id first and by name second.
func (e *Engine) lookupFlow(ref string) (*domain.FlowDefinition, error) {
	flow, err := e.flows.Get(ref)
	if err == nil {
		return flow, nil
	}
	if !errors.Is(err, domain.ErrFlowNotFound) {
		return nil, &domain.ConfigurationError{Op: "load flow", Flow: ref, Err: err}
	}

	flow, err = e.flows.GetByName(ref)
	if err != nil {
		return nil, &domain.ConfigurationError{Op: "load flow", Flow: ref, Err: err}
	}
	return flow, nil
}

func (e *Engine) emitStateEnter(ctx context.Context, s *domain.Session, state string) {
	if e.hooks.OnStateEnter == nil {
		return
	}
	e.hooks.OnStateEnter(ctx, &domain.StateEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStateEnter, SessionID: s.ID},
		FlowID:    s.FlowID,
		State:     state,
	})
}

func (e *Engine) emitActionCall(ctx context.Context, inv *domain.Invocation) {
	if e.hooks.OnActionCall == nil {
		return
	}
	e.hooks.OnActionCall(ctx, &domain.ActionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventActionCall, SessionID: inv.Session.ID},
		FlowID:    inv.Session.FlowID,
		State:     inv.Session.CurrentState,
		Function:  inv.Function,
	})
}

func (e *Engine) emitActionReturn(ctx context.Context, inv *domain.Invocation, res domain.ActionResult) {
	if e.hooks.OnActionReturn == nil {
		return
	}
	value, _ := res.Candidate()
	e.hooks.OnActionReturn(ctx, &domain.ActionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventActionReturn, SessionID: inv.Session.ID},
		FlowID:    inv.Session.FlowID,
		State:     inv.Session.CurrentState,
		Function:  inv.Function,
		Result:    res.Kind,
		Value:     value,
	})
}

func (e *Engine) emitCycleEnd(ctx context.Context, out *Outcome, d time.Duration) {
	if e.hooks.OnCycleEnd == nil {
		return
	}
	ev := &domain.CycleEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCycleEnd},
		Status:    string(out.Status),
		Steps:     out.Steps,
		Duration:  d,
	}
	if out.Session != nil {
		ev.SessionID = out.Session.ID
		ev.FlowID = out.Session.FlowID
		ev.State = out.Session.CurrentState
	}
	if out.Archived != nil {
		ev.FlowID = out.Archived.FlowID
		ev.State = out.Archived.CurrentState
	}
	e.hooks.OnCycleEnd(ctx, ev)
}
