package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plotYAML = `id: plot
init_state: Pick
states:
  - name: Pick
    pre_actions:
      - kind: send_menu
        text: Which crop?
        items:
          - {label: Wheat, value: wheat}
          - {label: Rice, value: rice}
    transitions:
      - target: Acres
        events: [wheat, rice]
  - name: Acres
    pre_actions:
      - kind: send_text
        text: How many acres?
    post_actions:
      - kind: invoke
        function: save_reply
        data: {key: acres}
    transitions:
      - target: finish
        events: ["*"]
`

func runChat(t *testing.T, flow, input string) string {
	t.Helper()
	cfg := testConfig(t, writeFlows(t, map[string]string{"greet.json": greetJSON, "crop.yaml": cropYAML, "plot.yaml": plotYAML}))

	var out bytes.Buffer
	sender := NewTerminalSender(&out, tui.PlainRenderer)
	app, err := Build(context.Background(), cfg, BuildOptions{Logger: logging.NewNop(), Sender: sender})
	require.NoError(t, err)

	err = RunChat(context.Background(), app.Bot, sender, ChatOptions{
		SessionKey: "cli",
		Flow:       flow,
		In:         strings.NewReader(input),
		Out:        &out,
		Prompt:     "> ",
	})
	require.NoError(t, err)
	return out.String()
}

func TestRunChat_TextConversation(t *testing.T) {
	out := runChat(t, "greet", "\nAsha\n")
	assert.Contains(t, out, "What is your name?")
	assert.Contains(t, out, ">>> Conversation finished.")
}

func TestRunChat_NumberedMenu(t *testing.T) {
	out := runChat(t, "crop", "maize\n2\n")
	assert.Contains(t, out, "Which crop?\n\n1. Wheat\n2. Rice")
	assert.Contains(t, out, ">>> Reply not accepted")
	assert.Contains(t, out, ">>> Conversation finished.")
}

func TestRunChat_NumberAfterMenuAnswersTextQuestion(t *testing.T) {
	out := runChat(t, "plot", "1\n1\n")
	assert.Contains(t, out, "How many acres?")
	assert.NotContains(t, out, ">>> Reply not accepted")
	assert.Contains(t, out, ">>> Conversation finished.")
}

func TestRunChat_QuitAndEOF(t *testing.T) {
	out := runChat(t, "greet", "/quit\n")
	assert.Contains(t, out, ">>> Bye!")
	assert.NotContains(t, out, "finished")

	out = runChat(t, "greet", "")
	assert.Contains(t, out, "What is your name?")
}

func TestRunChat_Restart(t *testing.T) {
	out := runChat(t, "greet", "/restart\nAsha\n")
	assert.Equal(t, 2, strings.Count(out, "What is your name?"))
}

func TestRunChat_UnknownFlow(t *testing.T) {
	cfg := testConfig(t, writeFlows(t, map[string]string{"greet.json": greetJSON}))
	sender := NewTerminalSender(&bytes.Buffer{}, nil)
	app, err := Build(context.Background(), cfg, BuildOptions{Logger: logging.NewNop(), Sender: sender})
	require.NoError(t, err)

	err = RunChat(context.Background(), app.Bot, sender, ChatOptions{
		SessionKey: "cli",
		Flow:       "nope",
		In:         strings.NewReader(""),
		Out:        &bytes.Buffer{},
	})
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestTerminalSender_ResolveReply(t *testing.T) {
	s := NewTerminalSender(&bytes.Buffer{}, nil)
	id, err := s.SendMenu(context.Background(), "k", "Pick", []domain.MenuItem{
		{Label: "Wheat", Value: "wheat"},
		{Label: "Rice", Value: "rice"},
	})
	require.NoError(t, err)

	ev := s.ResolveReply("k", "rice")
	assert.Equal(t, domain.KindButton, ev.Kind)
	assert.Equal(t, "rice", ev.Payload)
	assert.Equal(t, id, ev.ContextID)

	ev = s.ResolveReply("k", "3")
	assert.Equal(t, domain.KindText, ev.Kind)

	ev = s.ResolveReply("other", "1")
	assert.Equal(t, domain.KindText, ev.Kind)
}
