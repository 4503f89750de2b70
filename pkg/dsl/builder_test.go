package dsl_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onboarding() *dsl.Builder {
	b := dsl.New("onboarding").Name("Farmer onboarding")

	b.Add("AskName").
		Say("What is your name?").
		Save("name").
		Go("AskCrop", domain.EventAny)

	b.Add("AskCrop").
		Menu("Which crop?", dsl.Item("Wheat", "wheat"), dsl.Item("Rice", "rice")).
		Go("AskPhoto", "wheat").
		Finish("rice")

	b.Add("AskPhoto").
		Await(dispatch.ActionPickImage, "Send a photo of the field.").
		Save("photo").
		Reply("Thanks!").
		Finish(domain.EventAny)

	return b
}

func TestBuilder_Structure(t *testing.T) {
	flow, err := onboarding().Build()
	require.NoError(t, err)

	assert.Equal(t, "onboarding", flow.ID)
	assert.Equal(t, "Farmer onboarding", flow.Name)
	assert.Equal(t, "AskName", flow.InitState, "the first state is the entry state")
	require.Len(t, flow.States, 3)
	assert.Equal(t, []string{"AskName", "AskCrop", "AskPhoto"},
		[]string{flow.States[0].Name, flow.States[1].Name, flow.States[2].Name})

	ask := flow.States[0]
	require.Len(t, ask.PreActions, 1)
	assert.Equal(t, domain.SendText("What is your name?"), ask.PreActions[0])
	require.Len(t, ask.PostActions, 1)
	assert.Equal(t, dispatch.ActionSaveReply, ask.PostActions[0].Function)
	assert.Equal(t, map[string]any{"key": "name"}, ask.PostActions[0].Data)

	crop := flow.States[1]
	assert.Equal(t, domain.ReplyButton, crop.PreActions[0].ExpectedReply())
	tr, ok := crop.Resolve("rice")
	require.True(t, ok)
	assert.Equal(t, domain.TargetFinish, tr.Target)

	photo := flow.States[2]
	assert.Equal(t, map[string]any{"text": "Send a photo of the field."}, photo.PreActions[0].Data)
	assert.Equal(t, domain.ActionSendText, photo.PostActions[1].Kind)
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := dsl.New("f")
	b.Add("A").Say("hi")
	b.Add("A").Finish(domain.EventAny)

	flow := b.MustBuild()
	require.Len(t, flow.States, 1)
	assert.Len(t, flow.States[0].PreActions, 1)
	assert.Len(t, flow.States[0].Transitions, 1)
}

func TestBuilder_Errors(t *testing.T) {
	_, err := dsl.New("").Build()
	assert.Error(t, err)

	_, err = dsl.New("empty").Build()
	assert.Error(t, err)

	b := dsl.New("f").Start("Missing")
	b.Add("A").Say("hi")
	_, err = b.Build()
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	assert.Panics(t, func() { dsl.New("empty").MustBuild() })
}

func TestBuilder_JumpAndCommunity(t *testing.T) {
	b := dsl.New("f")
	b.Add("Vote").
		Community("Pick a date", dsl.Item("Monday", "mon")).
		Otherwise("Vote").
		Finish("mon")
	b.Add("Handoff").Jump("support", "")

	flow := b.MustBuild()
	assert.Equal(t, domain.ReplyCommunity, flow.States[0].PreActions[0].ExpectedReply())
	tr, ok := flow.States[0].Resolve("tue")
	require.True(t, ok)
	assert.Equal(t, "Vote", tr.Target)

	jump := flow.States[1].PreActions[0]
	assert.Equal(t, dispatch.ActionJumpToFlow, jump.Function)
	assert.Equal(t, map[string]any{"flow": "support"}, jump.Data)
}

func TestBuilder_RunsInBot(t *testing.T) {
	repo, err := memory.NewFlowRepository(onboarding().MustBuild())
	require.NoError(t, err)
	sender := memory.NewSender()
	reg := dispatch.NewRegistry()
	d := dispatch.New(reg, sender, dispatch.WithRetry(1, time.Millisecond))
	require.NoError(t, dispatch.RegisterBuiltins(reg, d))
	bot, err := parley.New(repo, d, memory.NewStore())
	require.NoError(t, err)

	ctx := context.Background()
	out, err := bot.Start(ctx, "u1", "onboarding")
	require.NoError(t, err)
	require.Equal(t, parley.StatusSuspended, out.Status)

	out, err = bot.Handle(ctx, "u1", domain.InboundEvent{Kind: domain.KindText, Payload: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, "AskCrop", out.Session.CurrentState)
}
