package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors emit for a single save.
const DefaultDebounce = 300 * time.Millisecond

// FlowRepository serves the JSON and YAML flow documents of one directory.
// A reload parses every file first and swaps the set only if all of them are valid,
// so a half-edited file never takes a running bot down.
type FlowRepository struct {
	*memory.FlowRepository

	dir      string
	parser   *compiler.Parser
	check    func([]*domain.FlowDefinition) error
	logger   *slog.Logger
	debounce time.Duration
}

// FlowOption configures a FlowRepository.
type FlowOption func(*FlowRepository)

// WithFlowCheck runs check on every candidate set before it is installed.
func WithFlowCheck(check func([]*domain.FlowDefinition) error) FlowOption {
	return func(r *FlowRepository) {
		r.check = check
	}
}

// WithFlowLogger sets the logger used while watching.
func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(r *FlowRepository) {
		r.logger = logger
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) FlowOption {
	return func(r *FlowRepository) {
		r.debounce = d
	}
}

// NewFlowRepository loads every flow document in dir.
func NewFlowRepository(dir string, opts ...FlowOption) (*FlowRepository, error) {
	empty, _ := memory.NewFlowRepository()
	r := &FlowRepository{
		FlowRepository: empty,
		dir:            dir,
		parser:         compiler.NewParser(),
		logger:         logging.NewNop(),
		debounce:       DefaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the watched directory.
func (r *FlowRepository) Dir() string {
	return r.dir
}

// Reload re-reads the directory. On any error the current set stays in place.
func (r *FlowRepository) Reload() error {
	flows, err := LoadDir(r.parser, r.dir)
	if err != nil {
		return err
	}
	if r.check != nil {
		if err := r.check(flows); err != nil {
			return fmt.Errorf("flow check failed: %w", err)
		}
	}
	return r.Replace(flows)
}

// LoadDir parses every *.json, *.yaml and *.yml file directly inside dir, in name order.
// All parse failures are reported together.
func LoadDir(parser *compiler.Parser, dir string) ([]*domain.FlowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := compiler.FormatFor(entry.Name()); ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var (
		flows []*domain.FlowDefinition
		errs  []error
	)
	for _, name := range names {
		flow, err := parser.ParseFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		flows = append(flows, flow)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return flows, nil
}

// Watch reloads the flow set whenever a flow document changes and signals each
// successful reload. Failed reloads are logged and not signaled.
func (r *FlowRepository) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	ch := make(chan struct{}, 1)
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	go func() {
		defer close(ch)
		defer func() { _ = watcher.Close() }()

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&relevant == 0 {
					continue
				}
				if _, ok := compiler.FormatFor(event.Name); !ok {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(r.debounce)
				} else {
					timer.Reset(r.debounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				if err := r.Reload(); err != nil {
					r.logger.Error("Flow reload failed, keeping previous flows", "dir", r.dir, "err", err)
					continue
				}
				r.logger.Info("Flows reloaded", "dir", r.dir)
				select {
				case ch <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("Watcher error", "dir", r.dir, "err", err)
			}
		}
	}()

	return ch, nil
}
