// Package engine orchestrates pipeline runs: it validates and resolves
// batches, schedules the resulting plan against an engine adapter, and records
// run history.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/dispatch"
	"github.com/leapstack-labs/leapgis/internal/state"
	"github.com/leapstack-labs/leapgis/internal/validate"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

// DefaultConcurrency bounds concurrent engine calls within a run.
const DefaultConcurrency = 4

// Engine owns the adapter connection and run history shared by all sessions.
type Engine struct {
	// Adapter (lazy initialized)
	backend     adapter.Engine
	backendCfg  adapter.Config
	connected   bool
	backendMu   sync.Mutex
	ownsBackend bool

	logger *slog.Logger

	history     state.Store
	registry    *catalog.Registry
	validator   *validate.Validator
	timeout     time.Duration
	concurrency int
}

// Config holds engine configuration.
type Config struct {
	// Adapter selects and configures the geoprocessing engine.
	Adapter adapter.Config
	// Backend, when set, is used instead of creating one from Adapter. It must
	// already be connected and is not closed by the engine.
	Backend adapter.Engine
	// StatePath is the SQLite run history database; empty means in-memory.
	StatePath string
	// Timeout bounds each operation (default dispatch.DefaultTimeout).
	Timeout time.Duration
	// Concurrency bounds concurrent engine calls per run (default DefaultConcurrency).
	Concurrency int
	// Registry overrides the compiled-in catalog.
	Registry *catalog.Registry
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// History overrides the SQLite store, mostly for tests.
	History state.Store
}

// New creates an engine. The adapter is connected lazily on first use.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	history := cfg.History
	if history == nil {
		path := cfg.StatePath
		if path == "" {
			path = ":memory:"
		}
		store := state.NewSQLiteStore(logger)
		if err := store.Open(path); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		if err := store.InitSchema(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize state schema: %w", err)
		}
		history = store
	}

	reg := cfg.Registry
	if reg == nil {
		reg = catalog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = dispatch.DefaultTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	e := &Engine{
		backendCfg:  cfg.Adapter,
		logger:      logger,
		history:     history,
		registry:    reg,
		validator:   validate.New(reg),
		timeout:     timeout,
		concurrency: concurrency,
	}
	if cfg.Backend != nil {
		e.backend = cfg.Backend
		e.connected = true
		if cfg.Adapter.Type == "" {
			e.backendCfg.Type = fmt.Sprintf("%T", cfg.Backend)
		}
	}

	logger.Debug("engine initialized", "adapter", e.backendCfg.Type, "timeout", timeout, "concurrency", concurrency)
	return e, nil
}

// ensureConnected lazily creates and connects the adapter.
func (e *Engine) ensureConnected(ctx context.Context) (adapter.Engine, error) {
	e.backendMu.Lock()
	defer e.backendMu.Unlock()

	if e.connected {
		return e.backend, nil
	}

	e.logger.Debug("connecting to engine", "adapter_type", e.backendCfg.Type)
	backend, err := adapter.NewEngine(e.backendCfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine adapter: %w", err)
	}
	if err := backend.Connect(ctx, e.backendCfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", e.backendCfg.Type, err)
	}

	e.backend = backend
	e.connected = true
	e.ownsBackend = true
	return backend, nil
}

// Close releases the adapter and the history store.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	e.backendMu.Lock()
	if e.backend != nil && e.ownsBackend {
		if err := e.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.backendMu.Unlock()
	if e.history != nil {
		if err := e.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// Registry returns the operation catalog in use.
func (e *Engine) Registry() *catalog.Registry { return e.registry }

// History returns the run history store.
func (e *Engine) History() state.Store { return e.history }

// AdapterType returns the configured adapter type.
func (e *Engine) AdapterType() string { return e.backendCfg.Type }

// Timeout returns the default per-operation timeout.
func (e *Engine) Timeout() time.Duration { return e.timeout }
