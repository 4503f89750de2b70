// Package dispatch routes flow actions to registered handlers and delivers prompts
// through a ports.Sender with retries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/cenkalti/backoff/v4"
)

// ErrTransport wraps send failures that survived every retry.
var ErrTransport = errors.New("transport failure")

const (
	defaultSendAttempts = 3
	defaultSendInterval = 500 * time.Millisecond
)

// Dispatcher implements ports.Dispatcher on top of a Registry and a Sender.
type Dispatcher struct {
	registry *Registry
	sender   ports.Sender
	logger   *slog.Logger
	lang     string
	attempts int
	interval time.Duration
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for send and handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithLanguage selects the re-prompt language ("en" or "hi").
func WithLanguage(lang string) Option {
	return func(d *Dispatcher) {
		d.lang = lang
	}
}

// WithRetry bounds outbound delivery to attempts tries spaced by a fixed interval.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		if interval >= 0 {
			d.interval = interval
		}
	}
}

// New creates a Dispatcher.
func New(registry *Registry, sender ports.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		sender:   sender,
		logger:   logging.NewNop(),
		lang:     LangEnglish,
		attempts: defaultSendAttempts,
		interval: defaultSendInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the action registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke runs the named handler. Unknown names and panics become failure results.
func (d *Dispatcher) Invoke(ctx context.Context, inv *domain.Invocation) (result domain.ActionResult) {
	h, ok := d.registry.Lookup(inv.Function)
	if !ok {
		return domain.Failure(domain.ErrUnknownAction.Error() + ": " + inv.Function)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Action handler panicked",
				"action", inv.Function,
				"session", sessionID(inv.Session),
				"panic", r,
			)
			result = domain.Failure(fmt.Sprintf("panic: %v", r))
		}
	}()

	return h.Invoke(ctx, inv)
}

// Prompt delivers a SendText or SendMenu action with bounded retry.
func (d *Dispatcher) Prompt(ctx context.Context, session *domain.Session, action domain.Action) (string, error) {
	switch action.Kind {
	case domain.ActionSendText:
		return d.send(ctx, session.ID, func(ctx context.Context) (string, error) {
			return d.sender.SendText(ctx, session.ID, action.Text)
		})
	case domain.ActionSendMenu:
		return d.send(ctx, session.ID, func(ctx context.Context) (string, error) {
			return d.sender.SendMenu(ctx, session.ID, action.Text, action.Items)
		})
	default:
		return "", fmt.Errorf("prompt: action kind %q is not a prompt", action.Kind)
	}
}

// Reprompt sends the explanation for a rejected reply.
func (d *Dispatcher) Reprompt(ctx context.Context, session *domain.Session, reason string) error {
	text := RepromptText(d.lang, session.ExpectedReplyType, reason)
	_, err := d.send(ctx, session.ID, func(ctx context.Context) (string, error) {
		return d.sender.SendText(ctx, session.ID, text)
	})
	return err
}

// SendText delivers an arbitrary message. Handlers use it for side-effect messages.
func (d *Dispatcher) SendText(ctx context.Context, sessionKey, text string) (string, error) {
	return d.send(ctx, sessionKey, func(ctx context.Context) (string, error) {
		return d.sender.SendText(ctx, sessionKey, text)
	})
}

func (d *Dispatcher) send(ctx context.Context, key string, fn func(context.Context) (string, error)) (string, error) {
	if d.sender == nil {
		return "", fmt.Errorf("%w: no sender configured", ErrTransport)
	}

	var contextID string
	op := func() error {
		id, err := fn(ctx)
		if err != nil {
			return err
		}
		contextID = id
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.interval), uint64(d.attempts-1))
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("Send failed, retrying", "session", key, "wait", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		d.logger.Error("Send failed", "session", key, "attempts", d.attempts, "err", err)
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return contextID, nil
}

func sessionID(s *domain.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}
