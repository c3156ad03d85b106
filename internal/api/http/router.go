package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repairdesk/repairdesk/internal/api/http/handlers"
	"github.com/repairdesk/repairdesk/internal/auth"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Line           *handlers.LineHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	// UploadsDir is served under UploadsPath when attachments live on local disk.
	UploadsDir  string
	UploadsPath string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}
	if cfg.UploadsDir != "" && cfg.UploadsPath != "" {
		app.Static(cfg.UploadsPath, cfg.UploadsDir)
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	requireUser := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAuthenticated()}
	requireStaff := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin, domain.RoleIT)}

	tickets := api.Group("/tickets")
	tickets.Post("/line-oa", cfg.Tickets.CreateLineTicket)
	tickets.Post("/", chain(requireUser, cfg.Tickets.CreateTicket)...)
	tickets.Get("/", chain(requireUser, cfg.Tickets.ListTickets)...)
	tickets.Get("/:id", chain(requireUser, cfg.Tickets.GetTicket)...)
	tickets.Put("/:id", chain(requireUser, cfg.Tickets.UpdateTicket)...)
	tickets.Delete("/:id", chain(requireUser, cfg.Tickets.DeleteTicket)...)

	lineOA := api.Group("/line-oa")
	lineOA.Post("/webhook", cfg.Line.Webhook)
	lineOA.Post("/linking/initiate", chain(requireUser, cfg.Line.InitiateLinking)...)
	lineOA.Post("/linking/verify", chain(requireUser, cfg.Line.VerifyLink)...)
	lineOA.Get("/linking/status", chain(requireUser, cfg.Line.LinkingStatus)...)
	lineOA.Delete("/linking", chain(requireUser, cfg.Line.Unlink)...)
	lineOA.Get("/notifications", chain(requireUser, cfg.Line.Notifications)...)
	lineOA.Post("/send-ticket-status", chain(requireStaff, cfg.Line.SendTicketStatus)...)
	lineOA.Post("/notifications/bulk", chain(requireStaff, cfg.Line.SendBulk)...)
	lineOA.Post("/notifications/retry", chain(requireStaff, cfg.Line.RetryNotifications)...)
}

// chain returns a fresh slice so routes never share a backing array.
func chain(middleware []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(middleware)+1)
	out = append(out, middleware...)
	return append(out, handler)
}
