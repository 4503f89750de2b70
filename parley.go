package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/internal/validator"
	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
)

// Outcome is the result of handling one inbound event.
type Outcome = runtime.Outcome

// Status summarizes how a cycle ended.
type Status = runtime.Status

const (
	StatusSuspended = runtime.StatusSuspended
	StatusRejected  = runtime.StatusRejected
	StatusFinished  = runtime.StatusFinished
	StatusHalted    = runtime.StatusHalted
	StatusDropped   = runtime.StatusDropped
	StatusDuplicate = runtime.StatusDuplicate
)

// Bot is the high-level entry point of the library.
// It serializes cycles per session, persists their results and drops redelivered events.
type Bot struct {
	engine     *runtime.Engine
	sessions   *session.Manager
	flows      ports.FlowRepository
	dispatcher ports.Dispatcher
	dedup      ports.Deduplicator
	logger     *slog.Logger

	hooks          domain.LifecycleHooks
	runtimeOpts    []runtime.EngineOption
	sessionOpts    []session.Option
	skipValidation bool
}

// Option defines a functional option for configuring the Bot.
type Option func(*Bot)

// WithLogger sets a custom structured logger for the bot and its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		b.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Bot) {
		b.hooks = hooks
	}
}

// WithEntryFlow sets the flow (id or name) new sessions start.
func WithEntryFlow(flow string) Option {
	return func(b *Bot) {
		b.runtimeOpts = append(b.runtimeOpts, runtime.WithEntryFlow(flow))
	}
}

// WithMaxSteps bounds how many states and jumps one cycle may chain through.
func WithMaxSteps(n int) Option {
	return func(b *Bot) {
		b.runtimeOpts = append(b.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithDeduplicator drops events whose MessageID was already claimed.
func WithDeduplicator(d ports.Deduplicator) Option {
	return func(b *Bot) {
		b.dedup = d
	}
}

// WithLocker makes session exclusivity span processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(b *Bot) {
		b.sessionOpts = append(b.sessionOpts, session.WithLocker(l))
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(b *Bot) {
		b.sessionOpts = append(b.sessionOpts, session.WithLockTTL(ttl))
	}
}

// WithoutValidation skips the flow check New runs against the dispatcher registry.
func WithoutValidation() Option {
	return func(b *Bot) {
		b.skipValidation = true
	}
}

// New wires a Bot. Flows are validated up front when the dispatcher exposes its registry.
func New(flows ports.FlowRepository, dispatcher ports.Dispatcher, store ports.SessionStore, opts ...Option) (*Bot, error) {
	if flows == nil || dispatcher == nil || store == nil {
		return nil, fmt.Errorf("flows, dispatcher and store are required")
	}

	b := &Bot{
		flows:      flows,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NewNop()
	}

	runtimeOpts := append([]runtime.EngineOption{
		runtime.WithLogger(b.logger),
		runtime.WithLifecycleHooks(b.hooks),
	}, b.runtimeOpts...)
	b.engine = runtime.NewEngine(flows, dispatcher, runtimeOpts...)

	sessionOpts := append([]session.Option{session.WithLogger(b.logger)}, b.sessionOpts...)
	b.sessions = session.NewManager(store, sessionOpts...)

	if !b.skipValidation {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Validate checks the current flow set. Warnings are logged, errors returned.
func (b *Bot) Validate() error {
	list, err := b.flows.List()
	if err != nil {
		return fmt.Errorf("failed to list flows: %w", err)
	}

	var actions validator.ActionSet
	if r, ok := b.dispatcher.(interface{ Registry() *dispatch.Registry }); ok {
		actions = r.Registry()
	}

	report := validator.ValidateFlows(list, actions)
	for _, w := range report.Warnings {
		b.logger.Warn("Flow needs attention", "flow", w.Err.Flow, "state", w.Err.State, "err", w.Err.Err)
	}
	if entry := b.engine.EntryFlow(); entry != "" {
		if _, err := b.flows.Get(entry); errors.Is(err, domain.ErrFlowNotFound) {
			if _, err := b.flows.GetByName(entry); err != nil {
				return errors.Join(report.Err(), &domain.ConfigurationError{Op: "entry flow", Flow: entry, Err: err})
			}
		}
	}
	return report.Err()
}

// Handle runs one cycle for an inbound event addressed to the session key.
// Only infrastructure failures (store, lock, dedup) are returned as errors; flow
// defects surface as a dropped Outcome.
func (b *Bot) Handle(ctx context.Context, key string, ev domain.InboundEvent) (*Outcome, error) {
	if key == "" {
		return nil, fmt.Errorf("session key cannot be empty")
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	if b.dedup != nil && ev.MessageID != "" {
		first, err := b.dedup.Claim(ctx, ev.MessageID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim message %s: %w", ev.MessageID, err)
		}
		if !first {
			b.logger.Debug("Dropping redelivered event", "session", key, "message", ev.MessageID)
			return &Outcome{Status: StatusDuplicate, Err: domain.ErrDuplicateEvent}, nil
		}
	}

	var out *Outcome
	err := b.sessions.WithLock(ctx, key, func(ctx context.Context) error {
		s, err := b.sessions.LoadOrNew(ctx, key)
		if err != nil {
			return err
		}

		out = b.engine.Process(ctx, s, ev)

		store := b.sessions.Store()
		var archiveID string
		if out.Archived != nil {
			rec, err := store.Archive(ctx, out.Archived, domain.ReasonFinished)
			if err != nil {
				return fmt.Errorf("failed to archive session %s: %w", key, err)
			}
			archiveID = rec.ID
		}
		if out.Changed() {
			if err := store.Save(ctx, out.Session); err != nil {
				if archiveID != "" {
					// Not atomic: history holds the finished conversation while the
					// live session is still at its pre-finish state.
					b.logger.Error("Session archived but reset not saved",
						"session", key,
						"archive", archiveID,
						"message", ev.MessageID,
						"err", err,
					)
				}
				return fmt.Errorf("failed to save session %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Cycle complete",
		"session", key,
		"status", out.Status,
		"steps", out.Steps,
	)
	return out, nil
}

// Start begins (or restarts) a flow for the session. An empty flow means the entry flow.
func (b *Bot) Start(ctx context.Context, key, flow string) (*Outcome, error) {
	return b.Handle(ctx, key, domain.InboundEvent{Kind: domain.KindStart, FlowID: flow})
}

// Session returns the stored session for key.
func (b *Bot) Session(ctx context.Context, key string) (*domain.Session, error) {
	return b.sessions.Load(ctx, key)
}

// Sessions lists stored session keys.
func (b *Bot) Sessions(ctx context.Context) ([]string, error) {
	return b.sessions.List(ctx)
}

// Abandon archives the session's conversation and resets it to idle.
func (b *Bot) Abandon(ctx context.Context, key, reason string) (domain.ArchiveRecord, error) {
	if reason == "" {
		reason = domain.ReasonAbandoned
	}
	return b.sessions.Abandon(ctx, key, reason)
}

// History returns the archived conversations of a session, oldest first.
func (b *Bot) History(ctx context.Context, key string) ([]domain.ArchiveRecord, error) {
	return b.sessions.History(ctx, key)
}

// Flows returns the flow repository the bot reads from.
func (b *Bot) Flows() ports.FlowRepository {
	return b.flows
}

// Watch returns a channel that signals when the flow set changes.
// Returns an error if the repository does not support watching.
func (b *Bot) Watch(ctx context.Context) (<-chan struct{}, error) {
	if w, ok := b.flows.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("flow repository does not support watching")
}
