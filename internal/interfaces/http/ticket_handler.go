package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/pkg/afip"
)

// TicketHandler consulta de estado de los tickets de autenticación WSAA.
// Expone solo metadatos: el token y la firma son credenciales y no salen
// por la API.
type TicketHandler struct {
	tickets repository.TicketRepository
	margin  time.Duration
}

func NewTicketHandler(tickets repository.TicketRepository, margin time.Duration) *TicketHandler {
	return &TicketHandler{tickets: tickets, margin: margin}
}

// Get estado del ticket de un CUIT emisor.
// GET /api/afip/tickets/:cuit
func (h *TicketHandler) Get(c *fiber.Ctx) error {
	cuit, err := afip.NormalizeCUIT(c.Params("cuit"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	ticket, err := h.tickets.Get(c.Context(), cuit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if ticket == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "el CUIT no tiene ticket almacenado"})
	}
	return c.JSON(fiber.Map{
		"cuit":            ticket.CUIT,
		"obtained_at":     ticket.ObtainedAt,
		"expiration_time": ticket.ExpirationTime,
		"valid":           ticket.ValidFor(h.margin, time.Now()),
	})
}
