package domain_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Resolve(t *testing.T) {
	full := domain.State{
		Name: "Ask",
		Transitions: []domain.Transition{
			{Target: "A", Events: []string{"yes"}},
			{Target: "B", Events: []string{domain.EventAny}},
			{Target: "C", Events: []string{domain.EventNoMatch}},
		},
	}
	noWildcard := domain.State{
		Name: "Ask",
		Transitions: []domain.Transition{
			{Target: "A", Events: []string{"yes"}},
			{Target: "C", Events: []string{domain.EventNoMatch}},
		},
	}

	tests := []struct {
		name   string
		state  domain.State
		event  string
		target string
		ok     bool
	}{
		{"explicit match wins", full, "yes", "A", true},
		{"wildcard before nomatch", full, "no", "B", true},
		{"nomatch when wildcard absent", noWildcard, "no", "C", true},
		{"empty event falls back", noWildcard, "", "C", true},
		{"no transitions", domain.State{Name: "Dead"}, "yes", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := tt.state.Resolve(tt.event)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.target, tr.Target)
		})
	}
}

func TestState_Matches(t *testing.T) {
	s := domain.State{Transitions: []domain.Transition{
		{Target: "A", Events: []string{"ok"}},
		{Target: "B", Events: []string{domain.EventAny}},
	}}

	assert.True(t, s.Matches("ok"))
	assert.False(t, s.Matches("other"), "wildcards are not explicit matches")
	assert.False(t, s.Matches(domain.EventAny))
	assert.False(t, s.Matches(""))
}

func TestFlowDefinition_FindState(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:     "onboarding",
		Name:   "onboarding",
		States:[]domain.State{{Name: "Welcome"}, {Name: "Bye"}},
	}

	s, err := flow.FindState("Bye")
	require.NoError(t, err)
	assert.Equal(t, "Bye", s.Name)

	_, err = flow.FindState("Missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
	assert.True(t, domain.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "onboarding/Missing")

	entry, err := flow.EntryState()
	require.NoError(t, err)
	assert.Equal(t, "Welcome", entry, "entry defaults to the first state")

	flow.InitState = "Bye"
	entry, err = flow.EntryState()
	require.NoError(t, err)
	assert.Equal(t, "Bye", entry)
}

func TestInboundEvent_Name(t *testing.T) {
	assert.Equal(t, "yes", domain.InboundEvent{Kind: domain.KindButton, Payload: "yes"}.Name())
	assert.Equal(t, "yes", domain.InboundEvent{Kind: domain.KindInteractive, Payload: "yes"}.Name())
	assert.Equal(t, domain.EventSuccess, domain.InboundEvent{Kind: domain.KindText, Payload: "hello"}.Name())
	assert.Equal(t, "custom", domain.InboundEvent{Kind: domain.KindText, EventName: "custom"}.Name())
	assert.Equal(t, "start", domain.InboundEvent{Kind: domain.KindStart}.Name())
}

func TestActionResult_Candidate(t *testing.T) {
	v, ok := domain.Plain("ok").Candidate()
	assert.True(t, ok)
	assert.Equal(t, "ok", v)

	_, ok = domain.Plain("").Candidate()
	assert.False(t, ok)

	v, ok = domain.Deferred("", "Ask", nil).Candidate()
	assert.True(t, ok)
	assert.Equal(t, domain.EventSuccess, v)

	_, ok = domain.FlowJump("other", "Start").Candidate()
	assert.False(t, ok)

	_, ok = domain.Failure("boom").Candidate()
	assert.False(t, ok)
}
