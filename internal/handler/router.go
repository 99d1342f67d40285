package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chargefix/portal/internal/middleware"
)

// RouterDeps bundles the dependencies NewRouter needs.
type RouterDeps struct {
	Logger *slog.Logger

	// Middleware
	SessionClient     middleware.SessionClient
	CookieConfig      middleware.CookieConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// Services
	AuthService   AuthServiceInterface
	RepairService RepairServiceInterface

	// Prometheus scrape handler
	MetricsHandler http.Handler
}

// NewRouter builds the router with the full middleware chain.
//
// Middleware order:
//
//	CORS → SecurityHeaders → Recovery → Logging → SessionGuard
//
// The session guard runs globally and classifies every path itself
// (default deny), so no route can be mounted outside the check.
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSessionGuard(deps.SessionClient, deps.CookieConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.CookieConfig)
	repairHandler := NewRepairHandler(deps.RepairService)

	// --- public routes ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- auth routes (these establish the session) ---

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/validar", authHandler.Validate)
		// passcode dispatch carries its own per-IP limiter
		r.With(deps.RateLimiter.OTPDispatchMiddleware()).Post("/enviar-codigo", authHandler.SendCode)
		r.Post("/verificar-codigo", authHandler.VerifyCode)
		r.Post("/logout", authHandler.Logout)

		// profile is protected: the guard has already resolved the session
		r.With(deps.RateLimiter.GeneralMiddleware()).Get("/me", authHandler.Me)
	})

	// --- protected routes ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/reparaciones", func(r chi.Router) {
			r.Get("/", repairHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/aceptar", repairHandler.Accept)
				r.Post("/rechazar", repairHandler.Reject)
				r.Post("/cita", repairHandler.Schedule)
				r.Post("/parte", repairHandler.SubmitReport)
			})
		})
	})

	return r
}
