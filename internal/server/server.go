// Package server exposes the REST surface: catalog and matrix reads,
// suggestion builds and reviews, per-cell estimates, and background task
// control.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/cmw-cli/internal/store"
	"github.com/sells-group/cmw-cli/internal/suggest"
	"github.com/sells-group/cmw-cli/internal/task"
)

// Server holds the handlers' collaborators.
type Server struct {
	store      store.Store
	builder    *suggest.Builder
	runner     *task.Runner
	matrixPath string
}

// New creates a Server.
func New(st store.Store, builder *suggest.Builder, runner *task.Runner, matrixPath string) *Server {
	return &Server{store: st, builder: builder, runner: runner, matrixPath: matrixPath}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/matrix", s.handleGetMatrix)
		r.Get("/matrix/export", s.handleExportMatrix)

		r.Get("/prices", s.handleListPrices)

		r.Get("/disciplines", s.handleListDisciplines)
		r.Post("/disciplines/save", s.handleSaveDisciplines)

		r.Route("/suggestions", func(r chi.Router) {
			r.Post("/disciplines", s.handleBuildDisciplineSuggestions)
			r.Get("/disciplines", s.handleListDisciplineSuggestions)
			r.Post("/elements", s.handleBuildElementSuggestions)
			r.Get("/elements", s.handleListElementSuggestions)
			r.Post("/cells", s.handleBuildCellSuggestions)
			r.Get("/cells", s.handleListCellSuggestions)
			r.Patch("/{kind}/{id}", s.handleUpdateSuggestionStatus)
		})

		r.Get("/events/suggestions", s.handleListSuggestionEvents)

		r.Get("/cells/{row}/{col}/estimate", s.handleGetCellEstimate)
		r.Get("/cells/{row}/{col}/risk", s.handleGetCellRisk)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleStartTask)
			r.Get("/", s.handleListTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Post("/{id}/cancel", s.handleCancelTask)
			r.Get("/{id}/logs", s.handleListTaskLogs)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
