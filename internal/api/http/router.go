package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/service-desk/internal/api/http/handlers"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	Sla            *handlers.SlaHandler
	AuthMiddleware *auth.Middleware
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Post("/auth/staff/login", cfg.Staff.Login)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireRole())
	staff.Get("/me", cfg.Staff.Me)
	staff.Get("/departments", cfg.Staff.ListDepartments)
	staff.Get("/departments/:id/teams", cfg.Staff.ListTeams)

	// Admin checks are per route; a Group middleware would cover every
	// route under the shared /staff prefix.
	requireAdmin := auth.RequireRole(domain.StaffRoleAdmin)
	staff.Post("/departments", requireAdmin, cfg.Staff.CreateDepartment)
	staff.Post("/departments/:id/teams", requireAdmin, cfg.Staff.CreateTeam)
	staff.Get("/members", requireAdmin, cfg.Staff.ListStaff)
	staff.Post("/members", requireAdmin, cfg.Staff.CreateStaff)

	tickets := staff.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Get("/:id/sla", cfg.Tickets.GetSla)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)

	slaGroup := staff.Group("/sla")
	slaGroup.Get("/calendars", cfg.Sla.ListCalendars)
	slaGroup.Get("/calendars/:id/preview", cfg.Sla.PreviewCalendar)

	jobs := slaGroup.Group("/jobs", requireAdmin)
	jobs.Post("/check-sla", cfg.Sla.CheckSla)
	jobs.Post("/process-escalations", cfg.Sla.ProcessEscalations)
	jobs.Post("/recalculate-sla", cfg.Sla.RecalculateSla)
}
