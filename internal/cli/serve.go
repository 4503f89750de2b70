package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/parley/internal/config"
	httpAdapter "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/adapters/twilio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long in-flight requests may run after a stop signal.
const ShutdownTimeout = 5 * time.Second

// DedupPruneInterval is how often SQL stores drop expired dedup rows.
const DedupPruneInterval = time.Hour

type dedupPruner interface {
	PruneDedup(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewHandler builds the HTTP API for the app. A nil gatherer disables /metrics.
func NewHandler(app *App, cfg *config.Config, logger *slog.Logger, gatherer prometheus.Gatherer) http.Handler {
	opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
	if gatherer != nil {
		opts = append(opts, httpAdapter.WithMetricsHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if app.Twilio != nil {
		opts = append(opts, httpAdapter.WithMenuResolver(app.Twilio))
		if cfg.Twilio.ValidateSignature {
			opts = append(opts, httpAdapter.WithSignatureValidation(
				twilio.NewSignatureValidator(cfg.Twilio.AuthToken), cfg.HTTP.PublicURL))
		}
	}
	return httpAdapter.NewHandler(app.Bot, opts...)
}

// Serve runs the HTTP server, the flow watcher and the dedup pruner until ctx ends
// or one of them fails.
func Serve(ctx context.Context, app *App, cfg *config.Config, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting parley server", "addr", srv.Addr, "flows", cfg.Flows.Dir, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			return srv.Close()
		}
		logger.Info("Parley server stopped gracefully")
		return nil
	})

	if cfg.Flows.Watch {
		g.Go(func() error {
			return watchFlows(ctx, app, logger)
		})
	}

	if p, ok := app.Dedup.(dedupPruner); ok && cfg.Dedup.TTL > 0 {
		g.Go(func() error {
			pruneDedup(ctx, p, cfg.Dedup.TTL, DedupPruneInterval, logger)
			return nil
		})
	}

	return g.Wait()
}

func watchFlows(ctx context.Context, app *App, logger *slog.Logger) error {
	changes, err := app.Bot.Watch(ctx)
	if err != nil {
		return err
	}
	logger.Info("Watching flows", "dir", app.Flows.Dir())

	for range changes {
		flows, err := app.Flows.List()
		if err != nil {
			logger.Warn("Flows reloaded but could not be listed", "err", err)
			continue
		}
		logger.Info("Flows reloaded", "count", len(flows))
	}
	return nil
}

func pruneDedup(ctx context.Context, p dedupPruner, ttl, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PruneDedup(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Warn("Dedup prune failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Debug("Pruned dedup entries", "count", n)
			}
		}
	}
}
