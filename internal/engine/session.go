package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapgis/internal/dispatch"
	"github.com/leapstack-labs/leapgis/internal/layerstore"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Session scopes a layer store. Layers produced in one session are invisible
// to every other session.
type Session struct {
	ID        string
	CreatedAt time.Time

	engine     *Engine
	backend    adapter.Engine
	store      *layerstore.Store
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSession connects the adapter if needed and opens an empty session.
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	backend, err := e.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger := e.logger.With(slog.String("session", id))
	store := layerstore.New()
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		engine:    e,
		backend:   backend,
		store:     store,
		dispatcher: dispatch.New(backend, store,
			dispatch.WithLogger(logger),
			dispatch.WithTimeout(e.timeout),
		),
		logger: logger,
	}, nil
}

// Store returns the session's layer store.
func (s *Session) Store() *layerstore.Store { return s.store }

// Layers lists the layers currently held by the session.
func (s *Session) Layers() []*core.Layer { return s.store.List() }

// Layer returns one layer of the session.
func (s *Session) Layer(id string) (*core.Layer, error) { return s.store.Get(id) }

// Import loads a layer from a file through the adapter. An empty ID gets a
// fresh layer identifier.
func (s *Session) Import(ctx context.Context, src LayerSource) (*core.Layer, error) {
	id, path := src.ID, src.Path
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	imp, ok := s.backend.(adapter.Importer)
	if !ok {
		return nil, fmt.Errorf("engine %s cannot import files", s.engine.AdapterType())
	}
	if id == "" {
		id = adapter.NewLayerID()
	}
	if err := s.store.Reserve(id); err != nil {
		return nil, err
	}
	layer, err := imp.Import(ctx, id, path)
	if err != nil {
		s.store.Abandon(id, err)
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	if src.Name != "" {
		layer.Name = src.Name
	}
	if err := s.store.Put(id, layer); err != nil {
		return nil, err
	}
	s.logger.Debug("layer imported", slog.String("layer", id), slog.String("path", path))
	return s.store.Get(id)
}

// Export writes a layer out through the adapter and returns the written path.
func (s *Session) Export(ctx context.Context, id, path string) (string, error) {
	exp, ok := s.backend.(adapter.Exporter)
	if !ok {
		return "", fmt.Errorf("engine %s cannot export layers", s.engine.AdapterType())
	}
	layer, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	return exp.Export(ctx, layer, path)
}

// Release drops a layer from the session and frees its engine artifacts.
func (s *Session) Release(ctx context.Context, id string) error {
	layer, err := s.store.Release(id)
	if err != nil {
		return err
	}
	s.discard(ctx, layer)
	return nil
}

// Close releases every layer. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	for _, l := range s.store.ReleaseAll() {
		s.discard(ctx, l)
	}
	s.logger.Debug("session closed")
	return nil
}

func (s *Session) discard(ctx context.Context, l *core.Layer) {
	if d, ok := s.backend.(adapter.Discarder); ok {
		if err := d.Discard(ctx, l); err != nil {
			s.logger.Warn("failed to discard layer", slog.String("layer", l.ID), slog.String("error", err.Error()))
		}
	}
	if err := s.engine.history.MarkLayerReleased(l.ID); err != nil {
		s.logger.Debug("failed to mark layer released", slog.String("error", err.Error()))
	}
}

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session is closed")

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}
