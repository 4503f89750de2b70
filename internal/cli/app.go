package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/validator"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/adapters/sqlstore"
	"github.com/aretw0/parley/pkg/adapters/twilio"
	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// App is a fully wired bot plus the adapters behind it.
type App struct {
	Bot      *parley.Bot
	Flows    *file.FlowRepository
	Registry *dispatch.Registry
	Store    ports.SessionStore
	Dedup    ports.Deduplicator
	Metrics  *observability.Metrics
	// Twilio is set when outbound WhatsApp delivery is configured.
	Twilio *twilio.Sender

	closers []func() error
}

// BuildOptions adjusts Build for a particular command.
type BuildOptions struct {
	Logger *slog.Logger
	// Sender overrides the configured outbound channel.
	Sender ports.Sender
	// Registerer receives the engine metrics. Nil skips metrics.
	Registerer prometheus.Registerer
	// Debug logs every lifecycle event.
	Debug bool
}

// Build wires configuration into a runnable bot.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Registry: dispatch.NewRegistry()}

	sender, err := app.buildSender(cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	d := dispatch.New(app.Registry, sender,
		dispatch.WithLogger(logger),
		dispatch.WithLanguage(cfg.Bot.Language),
		dispatch.WithRetry(cfg.Send.Attempts, cfg.Send.Interval),
	)
	if err := dispatch.RegisterBuiltins(app.Registry, d); err != nil {
		return nil, err
	}

	app.Flows, err = file.NewFlowRepository(cfg.Flows.Dir,
		file.WithFlowLogger(logger),
		file.WithFlowCheck(func(flows []*domain.FlowDefinition) error {
			return validator.ValidateFlows(flows, app.Registry).Err()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows from %s: %w", cfg.Flows.Dir, err)
	}

	botOpts := []parley.Option{
		parley.WithLogger(logger),
		parley.WithMaxSteps(cfg.Engine.MaxSteps),
	}
	if cfg.Bot.EntryFlow != "" {
		botOpts = append(botOpts, parley.WithEntryFlow(cfg.Bot.EntryFlow))
	}

	storeOpts, err := app.buildStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	botOpts = append(botOpts, storeOpts...)
	if err := app.secureStore(cfg); err != nil {
		app.Close()
		return nil, err
	}

	var hooks domain.LifecycleHooks
	if opts.Registerer != nil {
		app.Metrics = observability.NewMetrics(opts.Registerer)
		hooks = app.Metrics.Hooks()
	}
	if opts.Debug {
		hooks = hooks.Merge(createDebugHooks(logger))
	}
	botOpts = append(botOpts, parley.WithLifecycleHooks(hooks))

	app.Bot, err = parley.New(app.Flows, d, app.Store, botOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) buildSender(cfg *config.Config, opts BuildOptions, logger *slog.Logger) (ports.Sender, error) {
	if opts.Sender != nil {
		return opts.Sender, nil
	}
	if !cfg.Twilio.Enabled() {
		logger.Info("Twilio is not configured, outbound messages are recorded in memory")
		return memory.NewSender(), nil
	}

	s, err := twilio.NewSender(
		twilio.WithAccountSID(cfg.Twilio.AccountSID),
		twilio.WithAuthToken(cfg.Twilio.AuthToken),
		twilio.WithFrom(cfg.Twilio.From),
		twilio.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create twilio sender: %w", err)
	}
	a.Twilio = s
	return s, nil
}

// buildStore opens the session store and returns the bot options for its dedup and lock.
func (a *App) buildStore(ctx context.Context, cfg *config.Config) ([]parley.Option, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		a.Store = memory.NewStore()
		a.Dedup = memory.NewDedup(cfg.Dedup.TTL)
		return []parley.Option{parley.WithDeduplicator(a.Dedup)}, nil

	case config.DriverFile:
		a.Store = file.NewStore(cfg.Store.DSN)
		a.Dedup = memory.NewDedup(cfg.Dedup.TTL)
		return []parley.Option{parley.WithDeduplicator(a.Dedup)}, nil

	case config.DriverRedis:
		client := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		store := redis.NewFromClient(client, redis.WithPrefix(cfg.Redis.Prefix), redis.WithTTL(cfg.Redis.TTL))
		a.Store = store
		a.Dedup = redis.NewDedup(client, cfg.Redis.Prefix, cfg.Dedup.TTL)
		a.closers = append(a.closers, store.Close)
		return []parley.Option{
			parley.WithDeduplicator(a.Dedup),
			parley.WithLocker(redis.NewLocker(client, cfg.Redis.Prefix)),
		}, nil

	case config.DriverSQLite, config.DriverPostgres:
		dialect, err := sqlstore.ParseDialect(cfg.Store.Driver)
		if err != nil {
			return nil, err
		}
		store, err := sqlstore.Open(ctx, dialect, cfg.Store.DSN, sqlstore.WithDedupTTL(cfg.Dedup.TTL))
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.Dedup = store
		a.closers = append(a.closers, store.Close)
		return []parley.Option{parley.WithDeduplicator(store)}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// secureStore wraps the session store with archive redaction and encryption at rest.
func (a *App) secureStore(cfg *config.Config) error {
	var mws []middleware.Middleware
	if len(cfg.Store.RedactKeys) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.Store.RedactKeys)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	if cfg.Store.EncryptionKey != "" {
		keys, err := middleware.ParseKeys(cfg.Store.EncryptionKey, cfg.Store.FallbackKeys...)
		if err != nil {
			return fmt.Errorf("invalid store encryption key: %w", err)
		}
		mw, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	a.Store = middleware.Chain(a.Store, mws...)
	return nil
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
