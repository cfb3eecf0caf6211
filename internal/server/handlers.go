package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/engine"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

type sessionBody struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type invokeBody struct {
	core.Request
	// Timeout overrides the engine timeout for this call ("30s", "2m").
	Timeout string `json:"timeout,omitempty"`
}

func (s *Server) handleListOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Views(s.engine.Registry()))
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Registry().Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.NewOperationView(c))
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Tools(s.engine.Registry()))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.NewSession(r.Context())
	if err != nil {
		writeError(w, &core.OperationError{Kind: core.KindEngineFailure, Message: err.Error(), Err: err})
		return
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("session opened", "session", sess.ID)
	writeJSON(w, http.StatusCreated, sessionBody{ID: sess.ID, CreatedAt: sess.CreatedAt})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, notFound(fmt.Sprintf("session %q not found", id)))
		return
	}
	if err := sess.Close(r.Context()); err != nil {
		s.logger.Warn("failed to close session", "session", id, "error", err)
	}
	s.logger.Info("session closed", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	layers := sess.Layers()
	views := make([]*engine.LayerView, 0, len(layers))
	for _, l := range layers {
		views = append(views, engine.NewLayerView(l))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleImportLayer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var src engine.LayerSource
	if err := decodeBody(r, &src); err != nil {
		writeError(w, badRequest(err))
		return
	}
	if src.Path == "" {
		writeError(w, badRequest(fmt.Errorf("path is required")))
		return
	}
	layer, err := sess.Import(r.Context(), src)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	writeJSON(w, http.StatusCreated, engine.NewLayerView(layer))
}

func (s *Server) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "layer")
	layer, err := sess.Layer(id)
	if err != nil {
		writeError(w, notFound(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, engine.NewLayerView(layer))
}

func (s *Server) handleReleaseLayer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := sess.Release(r.Context(), chi.URLParam(r, "layer")); err != nil {
		writeError(w, notFound(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body invokeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, badRequest(err))
		return
	}
	opts, err := runOptions(body.Timeout)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}

	res := sess.Invoke(r.Context(), body.Request, opts)
	if !res.OK() {
		if res.Err == nil {
			writeError(w, core.Errorf(core.KindEngineFailure, "%s produced no layer", res.Operation))
			return
		}
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, engine.NewResultView(res))
}

// handlePipeline runs a batch. A rejected batch answers with every
// validation error; an executed batch answers 200 with per-step results,
// failed steps included.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	p, err := engine.ParsePipeline(data, "json")
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	opts, err := runOptions(r.URL.Query().Get("timeout"))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}

	report, runErr := sess.RunPipeline(r.Context(), p, opts)
	if report == nil {
		writeError(w, badRequest(runErr))
		return
	}
	if len(report.Results) == 0 && runErr != nil {
		writeErrors(w, runErr)
		return
	}
	writeJSON(w, http.StatusOK, engine.NewReportView(report))
}

func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	id := chi.URLParam(r, "session")
	sess, ok := s.session(id)
	if !ok {
		writeError(w, notFound(fmt.Sprintf("session %q not found", id)))
	}
	return sess, ok
}

// decodeBody decodes a JSON body strictly, keeping numbers as json.Number.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func runOptions(timeout string) (engine.RunOptions, error) {
	if timeout == "" {
		return engine.RunOptions{}, nil
	}
	d, err := time.ParseDuration(timeout)
	if err != nil || d <= 0 {
		return engine.RunOptions{}, fmt.Errorf("invalid timeout %q", timeout)
	}
	return engine.RunOptions{Timeout: d}, nil
}
