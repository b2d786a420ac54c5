package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/signalix/loginbroker/internal/http/handlers"
	"github.com/signalix/loginbroker/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(loginHandler *handlers.LoginHandler, adminHandler *handlers.AdminHandler, verifier middleware.TokenVerifier) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/login", func(r chi.Router) {
		r.Post("/start", loginHandler.HandleStart)
		r.Post("/verify", loginHandler.HandleVerify)
		r.Post("/cancel", loginHandler.HandleCancel)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.HandleLogin)

		// Protected routes (require valid admin token)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(verifier))
			r.Get("/sessions", adminHandler.HandleListSessions)
			r.Delete("/sessions/{phone}", adminHandler.HandleDeleteSession)
			r.Get("/attempts", adminHandler.HandleListAttempts)
		})
	})

	return r
}
