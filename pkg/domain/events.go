package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventStateEnter   EventType = "state_enter"
	EventActionCall   EventType = "action_call"
	EventActionReturn EventType = "action_return"
	EventCycleEnd     EventType = "cycle_end"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StateEvent represents entry into a flow state.
type StateEvent struct {
	EventBase
	FlowID string `json:"flow_id"`
	State  string `json:"state"`
}

// ActionEvent represents an Invoke call and its result.
type ActionEvent struct {
	EventBase
	FlowID   string     `json:"flow_id"`
	State    string     `json:"state"`
	Function string     `json:"function"`
	Result   ResultKind `json:"result,omitempty"`
	Value    string     `json:"value,omitempty"`
}

// CycleEvent summarizes one event-processing cycle.
type CycleEvent struct {
	EventBase
	FlowID   string        `json:"flow_id"`
	State    string        `json:"state"`
	Status   string        `json:"status"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStateEnter   func(context.Context, *StateEvent)
	OnActionCall   func(context.Context, *ActionEvent)
	OnActionReturn func(context.Context, *ActionEvent)
	OnCycleEnd     func(context.Context, *CycleEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStateEnter:   chain(h.OnStateEnter, other.OnStateEnter),
		OnActionCall:   chain(h.OnActionCall, other.OnActionCall),
		OnActionReturn: chain(h.OnActionReturn, other.OnActionReturn),
		OnCycleEnd:     chain(h.OnCycleEnd, other.OnCycleEnd),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
