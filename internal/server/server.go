// Package server exposes the dispatch layer over HTTP: the operation catalog,
// per-client sessions holding layers, single invocations and pipelines.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapgis/internal/config"
	"github.com/leapstack-labs/leapgis/internal/engine"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Server is the HTTP invocation surface.
type Server struct {
	engine *engine.Engine
	addr   string
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*engine.Session
}

// Config holds configuration for the HTTP server.
type Config struct {
	Engine *engine.Engine
	Addr   string
	Logger *slog.Logger
}

// NewServer creates a new server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = config.DefaultServerAddr
	}
	return &Server{
		engine:   cfg.Engine,
		addr:     addr,
		logger:   logger,
		sessions: make(map[string]*engine.Session),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.logRequests,
	)
	s.setupRoutes(r)
	return r
}

// Serve starts the server and blocks until the context is cancelled. Open
// sessions are closed on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting HTTP server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down HTTP server")
		err := srv.Shutdown(shutdownCtx)
		s.CloseSessions(shutdownCtx)
		return err
	})

	return eg.Wait()
}

// CloseSessions closes every open session.
func (s *Server) CloseSessions(ctx context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*engine.Session)
	s.mu.Unlock()

	for id, sess := range sessions {
		if err := sess.Close(ctx); err != nil {
			s.logger.Warn("failed to close session", "session", id, "error", err)
		}
	}
}

func (s *Server) session(id string) (*engine.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// logRequests logs one line per request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
