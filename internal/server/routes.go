package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := s.handlers

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Runs share one limiter across both verbs.
		limit := RateLimitMiddleware(s.opts.RunRateLimit, s.opts.RunBurst)
		r.With(limit).Get("/run", h.RunQuery)
		r.With(limit).Post("/run", h.RunBody)

		// Predictions
		r.Get("/predictions", h.GetPredictions)
		r.Post("/predictions/{symbol}/{model}", h.IngestPredictions)
	})

	r.Handle("/debug/vars", expvar.Handler())
}
