package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func advisoryFlow() *domain.FlowDefinition {
	return &domain.FlowDefinition{
		ID:        "advisory",
		InitState: "Welcome",
		States: []domain.State{
			{
				Name:        "Welcome",
				PreActions:  []domain.Action{domain.SendText("Hello")},
				Transitions: []domain.Transition{{Target: "ask-crop", Events: []string{domain.EventAny}}},
			},
			{
				Name: "ask-crop",
				PreActions: []domain.Action{domain.SendMenu("Which crop?",
					domain.MenuItem{Label: "Wheat", Value: "wheat"},
				)},
				Transitions: []domain.Transition{
					{Target: "Lookup", Events: []string{"wheat"}},
					{Target: domain.TargetDefault, Events: []string{domain.EventNoMatch}},
				},
			},
			{
				Name:        "Lookup",
				PostActions: []domain.Action{domain.Invoke("crop_lookup", nil)},
				Transitions: []domain.Transition{{Target: domain.TargetFinish, Events: []string{"found"}}},
			},
			{
				Name: "Handoff",
				PostActions: []domain.Action{
					domain.Invoke(dispatch.ActionJumpToFlow, map[string]any{"flow": "feedback", "state": "Rate"}),
				},
			},
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(advisoryFlow(), nil)

	tests := []struct {
		name     string
		contains []string
	}{
		{"init state is a circle", []string{`Welcome(("Welcome"))`}},
		{"prompting state is an input", []string{`ask_crop[/"ask-crop"/]`}},
		{"invoke-only state is a subroutine", []string{`Lookup[["Lookup"]]`}},
		{"edges carry events", []string{
			`Welcome -- "*" --> ask_crop`,
			`ask_crop -- "wheat" --> Lookup`,
		}},
		{"reserved targets become terminals", []string{
			`Lookup -- "found" --> __finish`,
			`__finish((("finish")))`,
			`__defaultSMJ((("defaultSMJ")))`,
		}},
		{"jumps are dotted", []string{
			`ext_feedback_Rate>"feedback/Rate"]`,
			`Handoff -.-> ext_feedback_Rate`,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	flow := advisoryFlow()
	s := domain.NewSession("u1")
	s.FlowID = "advisory"
	s.CurrentState = "ask-crop"
	s.Log = []domain.LogEntry{
		{FlowID: "advisory", State: "Welcome"},
		{FlowID: "advisory", State: "Welcome"},
		{FlowID: "other", State: "Elsewhere"},
	}

	out := graph.GenerateMermaid(flow, graph.OverlayFor(flow, s))
	assert.Contains(t, out, "classDef current")
	assert.Equal(t, 1, strings.Count(out, "class Welcome visited;"))
	assert.Contains(t, out, "class ask_crop current;")
	assert.NotContains(t, out, "Elsewhere")

	s.FlowID = "feedback"
	assert.Nil(t, graph.OverlayFor(flow, s))
}
