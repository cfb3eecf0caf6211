package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory creates an unconnected engine.
type Factory func(*slog.Logger) Engine

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an engine factory to the registry.
// Called by engine implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves an engine factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// NewEngine creates an engine instance based on config type.
// The logger is passed to the engine constructor (nil uses a discard logger).
func NewEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("engine type not specified")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{
			Type:      cfg.Type,
			Available: ListAdapters(),
		}
	}
	return factory(logger), nil
}

// ListAdapters returns all registered engine names (sorted).
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if an engine type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownAdapterError is returned when an unknown engine type is requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown engine type %q\nAvailable engines: %v\nHint: Check your engine.type in leapgis.yaml", e.Type, e.Available)
}
