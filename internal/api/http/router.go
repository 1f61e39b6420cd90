package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/deskbot/internal/api/http/handlers"
	"github.com/spec-kit/deskbot/internal/auth"
	"github.com/spec-kit/deskbot/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Ops            *handlers.OpsHandler
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

	app.Post("/auth/login", cfg.Auth.Login)

	ops := app.Group("/ops", cfg.AuthMiddleware.Handle, auth.RequireOperator())
	ops.Get("/tickets", cfg.Ops.ListTickets)
	ops.Get("/tickets/:id", cfg.Ops.GetTicket)
	ops.Get("/warnings/:identity", cfg.Ops.ListWarnings)
	ops.Get("/settings", cfg.Ops.GetSettings)
}
