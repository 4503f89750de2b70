package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/twilio"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/reply"
	"github.com/google/uuid"
)

// TerminalSender implements ports.Sender by printing prompts to a terminal.
type TerminalSender struct {
	mu     sync.Mutex
	out    io.Writer
	render func(string) (string, error)
	menus  map[string]terminalMenu
}

type terminalMenu struct {
	contextID string
	items     []domain.MenuItem
}

// NewTerminalSender creates a sender writing to out. A nil render prints text as is.
func NewTerminalSender(out io.Writer, render func(string) (string, error)) *TerminalSender {
	return &TerminalSender{
		out:    out,
		render: render,
		menus:  make(map[string]terminalMenu),
	}
}

func (s *TerminalSender) SendText(ctx context.Context, sessionKey, text string) (string, error) {
	return uuid.NewString(), s.print(text)
}

func (s *TerminalSender) SendMenu(ctx context.Context, sessionKey, prompt string, items []domain.MenuItem) (string, error) {
	id := uuid.NewString()
	if err := s.print(twilio.RenderMenu(prompt, items)); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.menus[sessionKey] = terminalMenu{contextID: id, items: items}
	s.mu.Unlock()
	return id, nil
}

func (s *TerminalSender) print(text string) error {
	if s.render != nil {
		if rendered, err := s.render(text); err == nil {
			text = strings.TrimRight(rendered, "\n")
		}
	}
	_, err := fmt.Fprintln(s.out, text)
	return err
}

// ResolveReply turns a typed line into an event. A number or label picking an item of the
// last menu becomes a button reply to that menu.
func (s *TerminalSender) ResolveReply(sessionKey, line string) domain.InboundEvent {
	ev := domain.InboundEvent{Kind: domain.KindText, Payload: line}

	s.mu.Lock()
	menu, ok := s.menus[sessionKey]
	s.mu.Unlock()
	if !ok {
		return ev
	}
	for i, item := range menu.items {
		if line == strconv.Itoa(i+1) || strings.EqualFold(line, item.Label) {
			return domain.InboundEvent{Kind: domain.KindButton, Payload: item.Value, ContextID: menu.contextID}
		}
	}
	return ev
}

// ChatBot is the slice of parley.Bot a terminal chat drives.
type ChatBot interface {
	Start(ctx context.Context, key, flow string) (*parley.Outcome, error)
	Handle(ctx context.Context, key string, ev domain.InboundEvent) (*parley.Outcome, error)
}

// ChatOptions configures RunChat.
type ChatOptions struct {
	SessionKey string
	Flow       string
	In         io.Reader
	Out        io.Writer
	// Prompt is printed before each read. Empty for non-interactive input.
	Prompt string
}

// RunChat starts a flow and relays lines from In until the conversation ends,
// In is exhausted or the user types /quit. /restart starts the flow over.
func RunChat(ctx context.Context, bot ChatBot, sender *TerminalSender, opts ChatOptions) error {
	out, err := bot.Start(ctx, opts.SessionKey, opts.Flow)
	if err != nil {
		return err
	}
	if done, err := report(opts.Out, out); done || err != nil {
		return err
	}

	scanner := bufio.NewScanner(opts.In)
	for {
		fmt.Fprint(opts.Out, opts.Prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			printSystemMessage(opts.Out, "Bye!")
			return nil
		case "/restart":
			out, err = bot.Start(ctx, opts.SessionKey, opts.Flow)
		default:
			ev := domain.InboundEvent{Kind: domain.KindText, Payload: line}
			if awaitingMenu(out) {
				ev = sender.ResolveReply(opts.SessionKey, line)
			}
			out, err = bot.Handle(ctx, opts.SessionKey, ev)
		}
		if err != nil {
			return err
		}
		if done, err := report(opts.Out, out); done || err != nil {
			return err
		}
	}
}

// awaitingMenu reports whether the last outcome left the session on a button expectation.
func awaitingMenu(out *parley.Outcome) bool {
	return out != nil && out.Session != nil && reply.IsMenu(out.Session.ExpectedReplyType)
}

// report prints the outcome and tells whether the conversation is over.
func report(w io.Writer, out *parley.Outcome) (bool, error) {
	switch out.Status {
	case parley.StatusRejected:
		printSystemMessage(w, "Reply not accepted (%s).", out.Reason)
	case parley.StatusFinished:
		printSystemMessage(w, "Conversation finished.")
		return true, nil
	case parley.StatusHalted:
		printSystemMessage(w, "Conversation halted: %s", out.Reason)
		return true, nil
	case parley.StatusDropped:
		if out.Err == nil {
			return true, errors.New("event dropped")
		}
		return true, out.Err
	}
	return false, nil
}
