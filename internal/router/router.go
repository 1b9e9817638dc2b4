package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-identity-service/internal/config"
	"go-identity-service/internal/handler"
	"go-identity-service/internal/metrics"
	"go-identity-service/internal/middleware"
	"go-identity-service/internal/model"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Health *handler.HealthHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(m))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", h.Health.Health)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	requireAuth := authMiddleware.RequireAuth
	adminOnly := authMiddleware.RequireRoles(model.RoleAdmin)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Get("/logout", h.Auth.Logout)
			auth.Post("/forgot-password", h.Auth.ForgotPassword)
			auth.Patch("/reset-password/{token}", h.Auth.ResetPassword)
			auth.With(requireAuth).Patch("/password", h.Auth.UpdatePassword)
		})

		api.Route("/me", func(me chi.Router) {
			me.Use(requireAuth)
			me.Get("/", h.User.Me)
			me.Patch("/", h.User.UpdateMe)
			me.Delete("/", h.User.DeleteMe)
		})

		api.Route("/users", func(users chi.Router) {
			users.Use(requireAuth, adminOnly)
			users.Get("/", h.User.List)
			users.Post("/", h.User.Create)
			users.Get("/{id}", h.User.Get)
			users.Patch("/{id}", h.User.Update)
			users.Delete("/{id}", h.User.Delete)
		})
	})

	return r
}
