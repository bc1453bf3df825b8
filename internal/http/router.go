package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Webhooks   *WebhookHandler
	Batches    *BatchHandler
	Interviews *InterviewHandler
	Roster     *RosterHandler
	Health     HealthChecker

	Auth           APIKeyAuthenticator
	WebhookLimiter *ClientRateLimiter
	// DebugRoutes exposes the past interview endpoint.
	DebugRoutes bool
	Logger      *slog.Logger
	Middleware  []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health, logger))

	r.Route("/webhooks", func(r chi.Router) {
		if cfg.WebhookLimiter != nil {
			r.Use(cfg.WebhookLimiter.Middleware)
		}
		if cfg.Webhooks != nil {
			r.Post("/messages", cfg.Webhooks.Messages)
			r.Post("/feedback", cfg.Webhooks.Feedback)
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireAPIKey(cfg.Auth, logger))

		if cfg.Batches != nil {
			r.Post("/batches", cfg.Batches.Create)
			r.Get("/batches/{id}", cfg.Batches.Get)
		}

		if cfg.Interviews != nil {
			r.Get("/interviews", cfg.Interviews.List)
			r.Get("/interviews/{id}", cfg.Interviews.Get)
			r.Post("/interviews/{id}/cancel", cfg.Interviews.Cancel)
			if cfg.DebugRoutes {
				r.Post("/debug/past-interview", cfg.Interviews.CreatePast)
			}
		}

		if cfg.Roster != nil {
			r.Get("/candidates", cfg.Roster.ListCandidates)
			r.Post("/candidates", cfg.Roster.CreateCandidate)
			r.Get("/interviewers", cfg.Roster.ListInterviewers)
			r.Post("/interviewers", cfg.Roster.CreateInterviewer)
			r.Put("/interviewers/{id}/availability", cfg.Roster.UpdateAvailability)
		}
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	responder := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Store: "unchecked"})
			return
		}
		if err := checker.Ping(r.Context()); err != nil {
			responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
			responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: "unreachable"})
			return
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
	}
}
