package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/api/http/handlers"
	"github.com/spec-kit/sla-monitor/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	SLA            *handlers.SLAHandler
	Breaches       *handlers.BreachHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/token", cfg.Auth.IssueToken)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	api.Get("/tickets/:id/risk", cfg.SLA.TicketRisk)
	api.Get("/tickets/:id/breaches", cfg.Breaches.ByTicket)
	api.Get("/tickets/:id/executions", cfg.Breaches.Executions)

	api.Get("/predictions", cfg.SLA.Predictions)
	api.Post("/sweep", cfg.SLA.Sweep)

	api.Get("/policies", cfg.SLA.Policies)
	api.Post("/policies/refresh", cfg.SLA.RefreshPolicies)

	api.Get("/breaches", cfg.Breaches.ListOpen)
	api.Get("/breaches/:id", cfg.Breaches.Get)
	api.Post("/breaches/:id/resolve", cfg.Breaches.Resolve)
	api.Post("/breaches/:id/escalate", cfg.Breaches.Escalate)

	api.Get("/technicians/overview", cfg.Metrics.RosterOverview)
	api.Get("/technicians/:id/metrics", cfg.Metrics.TechnicianMetrics)

	api.Get("/metrics", cfg.Metrics.EngineMetrics)
}
