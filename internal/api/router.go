package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Persistent channel
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	// One-shot REST surface
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)

		r.Post("/display", s.handleDisplay)
		r.Post("/alert", s.handleAlert)
		r.Post("/alert/clear", s.handleClearAlert)
		r.Post("/brightness", s.handleBrightness)
		r.Post("/mode", s.handleMode)
	})

	return r
}
