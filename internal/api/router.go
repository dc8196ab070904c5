package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency probe made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/controls", func(r chi.Router) {
			r.Get("/", s.handleListControls)
			r.Post("/", s.handleCreateControl)
			r.Post("/import", s.handleImportControl)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetControl)
				r.Patch("/", s.handleUpdateControl)
				r.Delete("/", s.handleDeleteControl)
				r.Get("/style", s.handleGetControlStyle)
				r.Get("/feedbacks", s.handleGetControlFeedbacks)
				r.Get("/journal", s.handleControlJournal)

				// Entity lists are addressed by query: ?list=feedbacks or
				// ?step=0&set=down, plus ?parent=&group= for child groups.
				r.Route("/entities", func(r chi.Router) {
					r.Get("/", s.handleListEntities)
					r.Post("/", s.handleAddEntity)
					r.Post("/move", s.handleMoveEntity)

					r.Route("/{entityId}", func(r chi.Router) {
						r.Patch("/", s.handleUpdateEntity)
						r.Delete("/", s.handleRemoveEntity)
						r.Post("/duplicate", s.handleDuplicateEntity)
						r.Post("/learn", s.handleLearnEntity)
					})
				})
			})
		})

		r.Get("/learning", s.handleListLearning)
		r.Get("/journal", s.handleListJournal)

		// Step and action-set RPC: POST /rpc/steps.add, /rpc/actionSets.rename, ...
		r.Post("/rpc/{method}", s.handleRPC)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports the server status plus every configured dependency.
// Any failing dependency turns the response into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "ok"

	probe := func(name string, hc HealthChecker) {
		if hc == nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	probe("database", s.db)
	probe("mqtt", s.mqtt)
	probe("influxdb", s.influx)

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"version":  s.version,
		"controls": s.registry.GetControlCount(),
		"checks":   checks,
	})
}
