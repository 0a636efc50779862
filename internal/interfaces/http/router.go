package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Workflow     *billing.InvoiceWorkflow
	Sweeper      *billing.RetryCoordinator
	Registry     *billing.ConfigRegistry
	Tickets      repository.TicketRepository
	TicketMargin time.Duration
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Health (público)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Facturación (protegido)
	invoices := protected.Group("/invoices")
	invoiceHandler := NewInvoiceHandler(deps.Workflow, deps.Sweeper)
	invoices.Post("/", invoiceHandler.Create)
	invoices.Post("/sweep", invoiceHandler.Sweep)
	invoices.Post("/:id/process", invoiceHandler.Process)
	invoices.Get("/:id", invoiceHandler.GetStatus)
	protected.Get("/sales/:id/invoice", invoiceHandler.GetBySale)

	// Configuración fiscal (protegido)
	configs := protected.Group("/fiscal-configs")
	configHandler := NewConfigHandler(deps.Registry)
	configs.Post("/", configHandler.Create)
	configs.Get("/diagnostics", configHandler.Diagnostics)

	// Tickets WSAA (protegido, solo metadatos)
	ticketHandler := NewTicketHandler(deps.Tickets, deps.TicketMargin)
	protected.Get("/afip/tickets/:cuit", ticketHandler.Get)
}
