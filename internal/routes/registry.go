package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coffre-pay/coffre/internal/registry"
)

// RegisterRegistryRoutes wires account provisioning and directory endpoints.
// Static paths go first so they are not captured by the :accountId segment.
func RegisterRegistryRoutes(r fiber.Router, h *registry.Handler) {
	r.Post("/accounts", h.Register)
	r.Get("/accounts", h.List)
	r.Get("/accounts/count", h.Count)
	r.Get("/accounts/me", h.Me)
	r.Get("/accounts/:accountId/verify", h.Verify)
}
