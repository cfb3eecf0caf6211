package server

import "github.com/go-chi/chi/v5"

// setupRoutes registers the /v1 API.
func (s *Server) setupRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/operations", s.handleListOperations)
		r.Get("/operations/{name}", s.handleGetOperation)
		r.Get("/tools", s.handleTools)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Get("/layers", s.handleListLayers)
			r.Post("/layers", s.handleImportLayer)
			r.Get("/layers/{layer}", s.handleGetLayer)
			r.Delete("/layers/{layer}", s.handleReleaseLayer)
			r.Post("/invoke", s.handleInvoke)
			r.Post("/pipelines", s.handlePipeline)
		})
	})
}
