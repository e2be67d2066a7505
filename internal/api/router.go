package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the API under /api, Prometheus at /metrics and, when
// staticDir is set, the UI at /.
func NewRouter(apiHandler *APIHandler, staticDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Post("/documents", apiHandler.UploadDocumentsHandler)
		r.Get("/documents", apiHandler.ListDocumentsHandler)
		r.Get("/documents/{documentID}", apiHandler.GetDocumentHandler)

		r.Post("/questions", apiHandler.AskQuestionHandler)
	})

	r.Handle("/metrics", promhttp.Handler())

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}

	return r
}
