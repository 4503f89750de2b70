package dsl

import (
	"slices"

	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
)

// Item is shorthand for a menu entry.
func Item(label, value string) domain.MenuItem {
	return domain.MenuItem{Label: label, Value: value}
}

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	state domain.State
}

// Say adds a text prompt to the pre-actions. The state waits for a text reply.
func (s *StateBuilder) Say(text string) *StateBuilder {
	s.state.PreActions = append(s.state.PreActions, domain.SendText(text))
	return s
}

// Menu adds a menu prompt to the pre-actions. The state waits for a button reply.
func (s *StateBuilder) Menu(prompt string, items ...domain.MenuItem) *StateBuilder {
	s.state.PreActions = append(s.state.PreActions, domain.SendMenu(prompt, items...))
	return s
}

// Community is like Menu but accepts the reply from a community message.
func (s *StateBuilder) Community(prompt string, items ...domain.MenuItem) *StateBuilder {
	act := domain.SendMenu(prompt, items...)
	act.Expect = domain.ReplyCommunity
	s.state.PreActions = append(s.state.PreActions, act)
	return s
}

// Do invokes a function while entering the state.
func (s *StateBuilder) Do(function string, data map[string]any) *StateBuilder {
	s.state.PreActions = append(s.state.PreActions, domain.Invoke(function, data))
	return s
}

// Await invokes one of the pick_* built-ins, sending text first when it is not empty.
func (s *StateBuilder) Await(function, text string) *StateBuilder {
	var data map[string]any
	if text != "" {
		data = map[string]any{"text": text}
	}
	return s.Do(function, data)
}

// Jump hands the session to another flow. An empty state means its entry state.
func (s *StateBuilder) Jump(flow, state string) *StateBuilder {
	data := map[string]any{"flow": flow}
	if state != "" {
		data["state"] = state
	}
	return s.Do(dispatch.ActionJumpToFlow, data)
}

// Then invokes a function after the reply arrives.
func (s *StateBuilder) Then(function string, data map[string]any) *StateBuilder {
	s.state.PostActions = append(s.state.PostActions, domain.Invoke(function, data))
	return s
}

// Save stores the reply in the session's misc data under key.
func (s *StateBuilder) Save(key string) *StateBuilder {
	return s.Then(dispatch.ActionSaveReply, map[string]any{"key": key})
}

// Reply sends text after the reply arrives, without waiting for another one.
func (s *StateBuilder) Reply(text string) *StateBuilder {
	s.state.PostActions = append(s.state.PostActions, domain.SendText(text))
	return s
}

// Go adds a transition to target for the given events.
func (s *StateBuilder) Go(target string, events ...string) *StateBuilder {
	s.state.Transitions = append(s.state.Transitions, domain.Transition{
		Target: target,
		Events: slices.Clone(events),
	})
	return s
}

// Finish ends the flow on the given events.
func (s *StateBuilder) Finish(events ...string) *StateBuilder {
	return s.Go(domain.TargetFinish, events...)
}

// Otherwise adds a fallback transition for events no other transition matches.
func (s *StateBuilder) Otherwise(target string) *StateBuilder {
	return s.Go(target, domain.EventNoMatch)
}

// Build returns the underlying domain.State.
// This is primarily used by the Builder, but exposed for advanced usage.
func (s *StateBuilder) Build() domain.State {
	st := s.state
	st.PreActions = slices.Clone(s.state.PreActions)
	st.PostActions = slices.Clone(s.state.PostActions)
	st.Transitions = slices.Clone(s.state.Transitions)
	return st
}
