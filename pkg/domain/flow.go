package domain

import "fmt"

// FlowDefinition is an immutable dialogue script.
// It is shared read-only by every Session that references it.
type FlowDefinition struct {
	ID        string  `json:"id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	InitState string  `json:"init_state" yaml:"init_state"`
	States    []State `json:"states" yaml:"states"`
}

// State is one step of a flow.
type State struct {
	Name        string       `json:"name" yaml:"name"`
	PreActions  []Action     `json:"pre_actions,omitempty" yaml:"pre_actions,omitempty"`
	PostActions []Action     `json:"post_actions,omitempty" yaml:"post_actions,omitempty"`
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// Transition maps a set of event names to a target state.
// Events may contain EventAny and EventNoMatch.
type Transition struct {
	Target string   `json:"target" yaml:"target"`
	Events []string `json:"events" yaml:"events"`
}

// Has reports whether the transition lists the given event name.
func (t Transition) Has(event string) bool {
	for _, e := range t.Events {
		if e == event {
			return true
		}
	}
	return false
}

// FindState returns the named state.
// A missing state is a configuration error wrapping ErrStateNotFound.
func (f *FlowDefinition) FindState(name string) (State, error) {
	for _, s := range f.States {
		if s.Name == name {
			return s, nil
		}
	}
	return State{}, &ConfigurationError{
		Op:    "find state",
		Flow:  f.ID,
		State: name,
		Err:   ErrStateNotFound,
	}
}

// HasState reports whether the flow declares the named state.
func (f *FlowDefinition) HasState(name string) bool {
	_, err := f.FindState(name)
	return err == nil
}

// TransitionsFor returns the transition table of the named state.
func (f *FlowDefinition) TransitionsFor(name string) ([]Transition, error) {
	s, err := f.FindState(name)
	if err != nil {
		return nil, err
	}
	return s.Transitions, nil
}

// EntryState returns the state a fresh session enters, defaulting to the first declared state.
func (f *FlowDefinition) EntryState() (string, error) {
	if f.InitState != "" {
		return f.InitState, nil
	}
	if len(f.States) == 0 {
		return "", &ConfigurationError{Op: "entry state", Flow: f.ID, Err: fmt.Errorf("flow has no states: %w", ErrStateNotFound)}
	}
	return f.States[0].Name, nil
}

// Resolve picks the transition for an event.
// Precedence: first explicit match, then the first EventAny, then the first EventNoMatch.
func (s State) Resolve(event string) (Transition, bool) {
	if event != "" {
		for _, t := range s.Transitions {
			if t.Has(event) {
				return t, true
			}
		}
	}
	for _, t := range s.Transitions {
		if t.Has(EventAny) {
			return t, true
		}
	}
	for _, t := range s.Transitions {
		if t.Has(EventNoMatch) {
			return t, true
		}
	}
	return Transition{}, false
}

// Matches reports whether the event is listed explicitly by one of the state's transitions.
// Wildcards do not count.
func (s State) Matches(event string) bool {
	if event == "" || event == EventAny || event == EventNoMatch {
		return false
	}
	for _, t := range s.Transitions {
		if t.Has(event) {
			return true
		}
	}
	return false
}
