package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/service"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Agents         *handlers.AgentsHandler
	Groups         *handlers.GroupsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, actorContext)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/auto-assign", cfg.Tickets.AutoAssign)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/replies", cfg.Tickets.Reply)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Post("/:id/resolve", cfg.Tickets.Resolve)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Patch("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Patch("/:id/category", cfg.Tickets.UpdateCategory)
	tickets.Post("/:id/transfer", cfg.Tickets.RequestTransfer)
	tickets.Post("/:id/transfer/approve", cfg.Tickets.ApproveTransfer)

	agents := api.Group("/agents")
	agents.Get("/", cfg.Agents.ListAgents)
	agents.Get("/:id", cfg.Agents.GetAgent)
	agents.Get("/:id/tickets", cfg.Agents.OwnedTickets)

	// roster edits are admin only; reads stay open to every agent
	adminOnly := auth.RequireRole(domain.AgentRoleAdmin)
	agents.Post("/", adminOnly, cfg.Agents.CreateAgent)
	agents.Put("/:id", adminOnly, cfg.Agents.UpdateAgent)
	agents.Patch("/:id/status", adminOnly, cfg.Agents.SetStatus)

	groups := api.Group("/groups")
	groups.Get("/", cfg.Groups.ListGroups)
	groups.Get("/:id/queue", cfg.Groups.Queue)
}

// actorContext records the authenticated agent on the request context so engine events
// name who acted.
func actorContext(c *fiber.Ctx) error {
	if principal, ok := auth.PrincipalFromContext(c); ok {
		c.SetUserContext(service.WithActor(c.UserContext(), principal.Agent.ID))
	}
	return c.Next()
}
