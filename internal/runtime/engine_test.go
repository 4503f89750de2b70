package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/reply"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine   *runtime.Engine
	sender   *memory.Sender
	registry *dispatch.Registry
}

func newHarness(t *testing.T, flows []*domain.FlowDefinition, opts ...runtime.EngineOption) *harness {
	t.Helper()
	repo, err := memory.NewFlowRepository(flows...)
	require.NoError(t, err)

	sender := memory.NewSender()
	reg := dispatch.NewRegistry()
	d := dispatch.New(reg, sender, dispatch.WithRetry(1, time.Millisecond))
	require.NoError(t, dispatch.RegisterBuiltins(reg, d))

	return &harness{
		engine:   runtime.NewEngine(repo, d, opts...),
		sender:   sender,
		registry: reg,
	}
}

func (h *harness) returns(t *testing.T, name string, value string) {
	t.Helper()
	require.NoError(t, h.registry.RegisterFunc(name, func(context.Context, *domain.Invocation) domain.ActionResult {
		return domain.Plain(value)
	}))
}

func start(flow string) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.KindStart, FlowID: flow}
}

func button(value, contextID string) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.KindButton, Payload: value, ContextID: contextID}
}

func text(payload string) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.KindText, Payload: payload}
}

// surveyFlow asks a yes/no question, then asks for a name, then finishes.
func surveyFlow() *domain.FlowDefinition {
	return &domain.FlowDefinition{
		ID:        "survey",
		Name:      "survey",
		InitState: "Ask",
		States: []domain.State{
			{
				Name: "Ask",
				PreActions: []domain.Action{
					domain.SendMenu("Do you farm?", domain.MenuItem{Label: "Yes", Value: "yes"}, domain.MenuItem{Label: "No", Value: "no"}),
				},
				Transitions: []domain.Transition{
					{Target: "Name", Events: []string{"yes"}},
					{Target: "Bye", Events: []string{"no"}},
				},
			},
			{
				Name:        "Name",
				PreActions:  []domain.Action{domain.SendText("What is your name?")},
				PostActions: []domain.Action{domain.Invoke(dispatch.ActionSaveReply, map[string]any{"key": "name"})},
				Transitions: []domain.Transition{{Target: "Bye", Events: []string{domain.EventSuccess}}},
			},
			{
				Name:        "Bye",
				PreActions:  []domain.Action{domain.SendText("Thank you!")},
				Transitions: []domain.Transition{{Target: domain.TargetFinish, Events: []string{domain.EventAny}}},
			},
		},
	}
}

func TestEngine_StartSuspendsOnFirstPrompt(t *testing.T) {
	h := newHarness(t, []*domain.FlowDefinition{surveyFlow()})
	s := domain.NewSession("u1")

	out := h.engine.Process(context.Background(), s, start("survey"))

	require.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "survey", out.Session.FlowID)
	assert.Equal(t, "Ask", out.Session.CurrentState)
	assert.Equal(t, domain.ReplyButton, out.Session.ExpectedReplyType)

	last, ok := h.sender.Last("u1")
	require.True(t, ok)
	assert.Equal(t, last.ContextID, out.Session.LastContextID)
	assert.Empty(t, s.FlowID, "input session is never mutated")
}

func TestEngine_ValidatorRejectsWrongMenu(t *testing.T) {
	h := newHarness(t, []*domain.FlowDefinition{surveyFlow()})
	ctx := context.Background()

	out := h.engine.Process(ctx, domain.NewSession("u1"), start("survey"))
	s := out.Session
	require.NotEmpty(t, s.LastContextID)

	out = h.engine.Process(ctx, s, button("yes", "stale-menu"))
	assert.Equal(t, runtime.StatusRejected, out.Status)
	assert.Equal(t, reply.ReasonWrongMenu, out.Reason)
	assert.Same(t, s, out.Session, "rejected cycles return the input session")
	assert.Equal(t, "Ask", out.Session.CurrentState)

	last, _ := h.sender.Last("u1")
	assert.Equal(t, "You have chosen the option from the wrong menu.", last.Text)

	out = h.engine.Process(ctx, s, button("yes", s.LastContextID))
	assert.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "Name", out.Session.CurrentState)
	assert.Equal(t, domain.ReplyText, out.Session.ExpectedReplyType)
}

func TestEngine_FullFlowFinishesAndArchives(t *testing.T) {
	h := newHarness(t, []*domain.FlowDefinition{surveyFlow()})
	ctx := context.Background()

	s := h.engine.Process(ctx, domain.NewSession("u1"), start("survey")).Session
	s = h.engine.Process(ctx, s, button("yes", s.LastContextID)).Session
	out := h.engine.Process(ctx, s, text("Asha"))
	require.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "Bye", out.Session.CurrentState)
	assert.Equal(t, "Asha", out.Session.MiscData["name"])

	out = h.engine.Process(ctx, out.Session, text("bye"))
	require.Equal(t, runtime.StatusFinished, out.Status)

	assert.False(t, out.Session.Active())
	assert.Empty(t, out.Session.ExpectedReplyType)
	assert.Empty(t, out.Session.MiscData)
	assert.Empty(t, out.Session.Log)

	require.NotNil(t, out.Archived)
	assert.Equal(t, "survey", out.Archived.FlowID)
	assert.Equal(t, "Asha", out.Archived.MiscData["name"])

	var events []string
	for _, e := range out.Archived.Log {
		events = append(events, e.State+":"+e.Event)
	}
	assert.Equal(t, []string{"Ask:start", "Ask:yes", "Name:success", "Bye:success"}, events)
}

func TestEngine_SilentStateChaining(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "calc",
		InitState: "Compute",
		States: []domain.State{
			{
				Name:        "Compute",
				PostActions: []domain.Action{domain.Invoke("compute", nil)},
				Transitions: []domain.Transition{{Target: "Next", Events: []string{"ok"}}},
			},
			{
				Name:       "Next",
				PreActions: []domain.Action{domain.SendText("Computed.")},
			},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	h.returns(t, "compute", "ok")

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), start("calc"))

	require.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "Next", out.Session.CurrentState)
	assert.Equal(t, 2, out.Steps)
	last, _ := h.sender.Last("u1")
	assert.Equal(t, "Computed.", last.Text, "Next's pre-actions ran in the same cycle")
}

func TestEngine_FlowJumpMidCycle(t *testing.T) {
	main := &domain.FlowDefinition{
		ID:        "main",
		InitState: "Route",
		States: []domain.State{{
			Name:       "Route",
			PreActions: []domain.Action{domain.Invoke(dispatch.ActionJumpToFlow, map[string]any{"flow": "other", "state": "Start"})},
		}},
	}
	other := &domain.FlowDefinition{
		ID: "other",
		States: []domain.State{
			{Name: "Intro", PreActions: []domain.Action{domain.SendText("wrong state")}},
			{Name: "Start", PreActions: []domain.Action{domain.SendText("Welcome to the other flow")}},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{main, other})

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), start("main"))

	require.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "other", out.Session.FlowID)
	assert.Equal(t, "Start", out.Session.CurrentState)
	last, _ := h.sender.Last("u1")
	assert.Equal(t, "Welcome to the other flow", last.Text)
}

func TestEngine_OnlyLastPreActionConcludes(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "S",
		States: []domain.State{
			{
				Name: "S",
				PreActions: []domain.Action{
					domain.Invoke("early", nil),
					domain.Invoke("late", nil),
				},
				Transitions: []domain.Transition{
					{Target: "Early", Events: []string{"early"}},
					{Target: "Late", Events: []string{"late"}},
				},
			},
			{Name: "Early", PreActions: []domain.Action{domain.SendText("early")}},
			{Name: "Late", PreActions: []domain.Action{domain.SendText("late")}},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	h.returns(t, "early", "early")
	h.returns(t, "late", "late")

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), start("f"))
	assert.Equal(t, "Late", out.Session.CurrentState)
}

func TestEngine_IntermediateMatchIgnored(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "S",
		States: []domain.State{
			{
				Name:       "S",
				PreActions: []domain.Action{domain.Invoke("early", nil), domain.Invoke("quiet", nil)},
				Transitions: []domain.Transition{
					{Target: "Early", Events: []string{"early"}},
					{Target: "Silent", Events: []string{domain.EventSuccess}},
				},
			},
			{Name: "Early", PreActions: []domain.Action{domain.SendText("early")}},
			{Name: "Silent", PreActions: []domain.Action{domain.SendText("silent")}},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	h.returns(t, "early", "early")
	h.returns(t, "quiet", "")

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), start("f"))
	assert.Equal(t, "Silent", out.Session.CurrentState, "an early match is not the state's conclusion")
}

func TestEngine_FailureFallsBackToNomatch(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "S",
		States: []domain.State{
			{
				Name:        "S",
				PostActions: []domain.Action{domain.Invoke("broken", nil)},
				Transitions: []domain.Transition{
					{Target: "Good", Events: []string{"ok"}},
					{Target: "Fallback", Events: []string{domain.EventNoMatch}},
				},
			},
			{Name: "Good", PreActions: []domain.Action{domain.SendText("good")}},
			{Name: "Fallback", PreActions: []domain.Action{domain.SendText("fallback")}},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	require.NoError(t, h.registry.RegisterFunc("broken", func(context.Context, *domain.Invocation) domain.ActionResult {
		return domain.Failure("remote service down")
	}))

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), start("f"))
	assert.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "Fallback", out.Session.CurrentState)
}

func TestEngine_NoTransitionHalts(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "Ask",
		States: []domain.State{{
			Name:        "Ask",
			PreActions:  []domain.Action{domain.SendText("Say something")},
			Transitions: []domain.Transition{{Target: "Ask", Events: []string{"never"}}},
		}},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	ctx := context.Background()

	s := h.engine.Process(ctx, domain.NewSession("u1"), start("f")).Session
	out := h.engine.Process(ctx, s, text("hello"))

	assert.Equal(t, runtime.StatusHalted, out.Status)
	assert.Equal(t, runtime.ReasonNoTransition, out.Reason)
	assert.Equal(t, "Ask", out.Session.CurrentState)
	assert.Equal(t, domain.ReplyText, out.Session.ExpectedReplyType)
}

func TestEngine_DefaultTargetHalts(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "S",
		States: []domain.State{{
			Name:        "S",
			Transitions: []domain.Transition{{Target: domain.TargetDefault, Events: []string{domain.EventAny}}},
		}},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), start("f"))
	assert.Equal(t, runtime.StatusHalted, out.Status)
	assert.Equal(t, runtime.ReasonDefaultTarget, out.Reason)
	assert.Equal(t, "S", out.Session.CurrentState)
	assert.NoError(t, out.Err)
}

func TestEngine_ConfigurationErrorsDropCycle(t *testing.T) {
	broken := &domain.FlowDefinition{
		ID:        "broken",
		InitState: "S",
		States: []domain.State{{
			Name:        "S",
			Transitions: []domain.Transition{{Target: "Nowhere", Events: []string{domain.EventAny}}},
		}},
	}
	h := newHarness(t, []*domain.FlowDefinition{broken})
	ctx := context.Background()
	s := domain.NewSession("u1")

	out := h.engine.Process(ctx, s, start("broken"))
	assert.Equal(t, runtime.StatusDropped, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrStateNotFound)
	assert.Same(t, s, out.Session)
	assert.False(t, out.Changed())

	out = h.engine.Process(ctx, s, start("missing"))
	assert.ErrorIs(t, out.Err, domain.ErrFlowNotFound)
	assert.True(t, domain.IsConfigurationError(out.Err))

	out = h.engine.Process(ctx, s, text("hi"))
	assert.ErrorIs(t, out.Err, domain.ErrNoEntryFlow)
}

func TestEngine_JumpLoopHitsStepLimit(t *testing.T) {
	a := &domain.FlowDefinition{ID: "a", States: []domain.State{{
		Name:       "S",
		PreActions: []domain.Action{domain.Invoke(dispatch.ActionJumpToFlow, map[string]any{"flow": "b"})},
	}}}
	b := &domain.FlowDefinition{ID: "b", States: []domain.State{{
		Name:       "S",
		PreActions: []domain.Action{domain.Invoke(dispatch.ActionJumpToFlow, map[string]any{"flow": "a"})},
	}}}
	h := newHarness(t, []*domain.FlowDefinition{a, b}, runtime.WithMaxSteps(5))

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), start("a"))
	assert.Equal(t, runtime.StatusDropped, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrStepLimit)
	assert.Equal(t, 6, out.Steps)
}

func TestEngine_IdleSessionStartsEntryFlow(t *testing.T) {
	h := newHarness(t, []*domain.FlowDefinition{surveyFlow()}, runtime.WithEntryFlow("survey"))

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), text("Hi"))
	require.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "Ask", out.Session.CurrentState)
	require.Len(t, out.Session.Log, 1)
	assert.Equal(t, "start", out.Session.Log[0].Event)
	assert.Equal(t, "Hi", out.Session.Log[0].Payload)
}

func TestEngine_StartHintsAndEntryByName(t *testing.T) {
	h := newHarness(t, []*domain.FlowDefinition{surveyFlow()})

	out := h.engine.Process(context.Background(), domain.NewSession("u1"), domain.InboundEvent{Kind: domain.KindStart, FlowID: "survey", State: "Name"})
	assert.Equal(t, "Name", out.Session.CurrentState)
}

func TestEngine_AwaitingHandlerSuspends(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "media",
		InitState: "Photo",
		States: []domain.State{
			{
				Name:        "Photo",
				PreActions:  []domain.Action{domain.Invoke(dispatch.ActionPickImage, map[string]any{"text": "Send a photo of the check dam"})},
				PostActions: []domain.Action{domain.Invoke(dispatch.ActionSaveReply, map[string]any{"key": "photo"})},
				Transitions: []domain.Transition{{Target: domain.TargetFinish, Events: []string{domain.EventSuccess}}},
			},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	ctx := context.Background()

	out := h.engine.Process(ctx, domain.NewSession("u1"), start("media"))
	require.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, domain.ReplyImage, out.Session.ExpectedReplyType)

	rejected := h.engine.Process(ctx, out.Session, text("no photo"))
	assert.Equal(t, runtime.StatusRejected, rejected.Status)

	done := h.engine.Process(ctx, out.Session, domain.InboundEvent{Kind: domain.KindImage, Payload: "media-123"})
	require.Equal(t, runtime.StatusFinished, done.Status)
	assert.Equal(t, "media-123", done.Archived.MiscData["photo"])
}

func TestEngine_DeferredTransitionFromPostAction(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "Ask",
		States: []domain.State{
			{
				Name:        "Ask",
				PreActions:  []domain.Action{domain.SendText("Anything?")},
				PostActions: []domain.Action{domain.Invoke(dispatch.ActionMoveForward, map[string]any{"event": "skip", "data": map[string]any{"skipped": true}})},
				Transitions: []domain.Transition{
					{Target: "Skipped", Events: []string{"skip"}},
					{Target: "Ask", Events: []string{domain.EventSuccess}},
				},
			},
			{Name: "Skipped", PreActions: []domain.Action{domain.SendText("Skipped")}},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	ctx := context.Background()

	s := h.engine.Process(ctx, domain.NewSession("u1"), start("f")).Session
	out := h.engine.Process(ctx, s, text("whatever"))

	assert.Equal(t, "Skipped", out.Session.CurrentState)
	assert.Equal(t, true, out.Session.MiscData["skipped"])
}

func TestEngine_ReplayIsDeterministic(t *testing.T) {
	events := []func(*domain.Session) domain.InboundEvent{
		func(*domain.Session) domain.InboundEvent { return start("survey") },
		func(s *domain.Session) domain.InboundEvent { return button("no", s.LastContextID) },
	}

	run := func() *domain.Session {
		h := newHarness(t, []*domain.FlowDefinition{surveyFlow()})
		s := domain.NewSession("u1")
		for _, ev := range events {
			s = h.engine.Process(context.Background(), s, ev(s)).Session
		}
		return s
	}

	a, b := run(), run()
	assert.Equal(t, a.CurrentState, b.CurrentState)
	assert.Equal(t, "Bye", a.CurrentState)
	assert.Len(t, a.Log, len(b.Log))
}

func TestEngine_UndeliveredQuestionStillSuspends(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "Ask",
		States: []domain.State{
			{
				Name:        "Ask",
				PreActions:  []domain.Action{domain.Invoke(dispatch.ActionUserInput, map[string]any{"text": "What is your name?"})},
				PostActions: []domain.Action{domain.Invoke(dispatch.ActionSaveReply, map[string]any{"key": "name"})},
				Transitions: []domain.Transition{{Target: "Thanks", Events: []string{domain.EventSuccess}}},
			},
			{
				Name:        "Thanks",
				PreActions:  []domain.Action{domain.SendText("Thanks")},
				Transitions: []domain.Transition{{Target: domain.TargetFinish, Events: []string{domain.EventAny}}},
			},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	ctx := context.Background()
	h.sender.FailNext(1)

	out := h.engine.Process(ctx, domain.NewSession("u1"), start("f"))
	require.Equal(t, runtime.StatusSuspended, out.Status)
	assert.Equal(t, "Ask", out.Session.CurrentState)
	assert.Equal(t, domain.ReplyText, out.Session.ExpectedReplyType)
	assert.Empty(t, out.Session.LastContextID)
	assert.NotContains(t, out.Session.MiscData, "name")
	assert.Empty(t, h.sender.Messages())

	next := h.engine.Process(ctx, out.Session, text("Asha"))
	require.Equal(t, runtime.StatusSuspended, next.Status)
	assert.Equal(t, "Thanks", next.Session.CurrentState)
	assert.Equal(t, "Asha", next.Session.MiscData["name"])
}

func TestEngine_PostActionPromptSurvivesTransition(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "Ask",
		States: []domain.State{
			{
				Name:       "Ask",
				PreActions: []domain.Action{domain.SendText("What is your name?")},
				PostActions: []domain.Action{domain.SendMenu("Shall we continue later?",
					domain.MenuItem{Label: "Yes", Value: "yes"},
					domain.MenuItem{Label: "No", Value: "no"},
				)},
				Transitions: []domain.Transition{{Target: "Parked", Events: []string{domain.EventSuccess}}},
			},
			{
				Name:        "Parked",
				Transitions: []domain.Transition{{Target: "Parked", Events: []string{"wake"}}},
			},
		},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	ctx := context.Background()

	s := h.engine.Process(ctx, domain.NewSession("u1"), start("f")).Session
	out := h.engine.Process(ctx, s, text("Asha"))
	require.Equal(t, runtime.StatusHalted, out.Status)
	assert.Equal(t, "Parked", out.Session.CurrentState)

	menu, ok := h.sender.Last("u1")
	require.True(t, ok)
	require.Len(t, menu.Items, 2)
	assert.Equal(t, domain.ReplyButton, out.Session.ExpectedReplyType)
	assert.Equal(t, menu.ContextID, out.Session.LastContextID)

	again := h.engine.Process(ctx, out.Session, button("yes", menu.ContextID))
	assert.Equal(t, runtime.StatusHalted, again.Status)

	wrong := h.engine.Process(ctx, out.Session, text("yes"))
	assert.Equal(t, runtime.StatusRejected, wrong.Status)
}

func TestEngine_NoTransitionHaltKeepsStateButLogsEvent(t *testing.T) {
	flow := &domain.FlowDefinition{
		ID:        "f",
		InitState: "Ask",
		States: []domain.State{{
			Name:        "Ask",
			PreActions:  []domain.Action{domain.SendText("Say something")},
			Transitions: []domain.Transition{{Target: "Ask", Events: []string{"never"}}},
		}},
	}
	h := newHarness(t, []*domain.FlowDefinition{flow})
	ctx := context.Background()

	s := h.engine.Process(ctx, domain.NewSession("u1"), start("f")).Session
	before := len(s.Log)
	out := h.engine.Process(ctx, s, text("hello"))

	require.Equal(t, runtime.StatusHalted, out.Status)
	assert.True(t, out.Changed())
	assert.Equal(t, "f", out.Session.FlowID)
	assert.Equal(t, "Ask", out.Session.CurrentState)
	require.Len(t, out.Session.Log, before+1)
	assert.Equal(t, "success", out.Session.Log[before].Event)
}
