package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// Builder manages the construction of one flow.
type Builder struct {
	flow   domain.FlowDefinition
	order  []string
	states map[string]*StateBuilder
}

// New creates a builder for the flow with the given id.
func New(id string) *Builder {
	return &Builder{
		flow:   domain.FlowDefinition{ID: id},
		states: make(map[string]*StateBuilder),
	}
}

// Name sets the human readable flow name.
func (b *Builder) Name(name string) *Builder {
	b.flow.Name = name
	return b
}

// Start sets the entry state. It defaults to the first state added.
func (b *Builder) Start(state string) *Builder {
	b.flow.InitState = state
	return b
}

// Add creates a new state in the flow.
// If the state already exists, it returns the existing builder.
func (b *Builder) Add(name string) *StateBuilder {
	if sb, ok := b.states[name]; ok {
		return sb
	}
	sb := &StateBuilder{state: domain.State{Name: name}}
	b.states[name] = sb
	b.order = append(b.order, name)
	return sb
}

// Build returns the flow definition with states in the order they were added.
func (b *Builder) Build() (*domain.FlowDefinition, error) {
	if b.flow.ID == "" {
		return nil, errors.New("flow id is required")
	}
	if len(b.order) == 0 {
		return nil, fmt.Errorf("flow %s has no states", b.flow.ID)
	}

	flow := b.flow
	flow.States = make([]domain.State, 0, len(b.order))
	for _, name := range b.order {
		flow.States = append(flow.States, b.states[name].Build())
	}
	if flow.InitState == "" {
		flow.InitState = b.order[0]
	}
	if !flow.HasState(flow.InitState) {
		return nil, &domain.ConfigurationError{Op: "build flow", Flow: flow.ID, State: flow.InitState, Err: domain.ErrStateNotFound}
	}
	return &flow, nil
}

// MustBuild is like Build but panics on error. Meant for tests and package-level flows.
func (b *Builder) MustBuild() *domain.FlowDefinition {
	flow, err := b.Build()
	if err != nil {
		panic(err)
	}
	return flow
}
