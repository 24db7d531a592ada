package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/crm-admin/internal/api/http/handlers"
	"github.com/spec-kit/crm-admin/internal/auth"
	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	requireAuth := cfg.AuthMiddleware.Handle

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", requireAuth, cfg.Auth.Logout)
	authGroup.Post("/logout-all", requireAuth, cfg.Auth.LogoutAll)
	authGroup.Get("/verify", requireAuth, cfg.Auth.Verify)

	users := api.Group("/users", requireAuth)
	users.Get("/me", cfg.Users.Me)
	users.Get("/:id", auth.RequireOwnerOrRoles("id", auth.AdminRoles...), cfg.Users.Get)
	users.Get("/:id/history", auth.RequireOwnerOrRoles("id", auth.AdminRoles...), cfg.Users.History)

	admin := api.Group("/admin", requireAuth, auth.RequireRoles(domain.RoleSuperAdmin, domain.RoleAdmin))
	admin.Post("/users/:id/sessions/revoke", cfg.Users.RevokeSessions)
}
