package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
)

// InvoiceHandler maneja las peticiones HTTP de facturación (protegido).
type InvoiceHandler struct {
	workflow *billing.InvoiceWorkflow
	sweeper  *billing.RetryCoordinator
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(workflow *billing.InvoiceWorkflow, sweeper *billing.RetryCoordinator) *InvoiceHandler {
	return &InvoiceHandler{workflow: workflow, sweeper: sweeper}
}

// Create da de alta la factura de una venta completada (PENDING).
// POST /api/invoices
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	if GetUserID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.CreateInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.SaleID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "sale_id requerido"})
	}
	inv, err := h.workflow.CreateInvoiceForSale(c.Context(), in.SaleID)
	if err != nil {
		return invoiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ToInvoiceResponse(inv))
}

// Process dispara un intento de autorización contra AFIP.
// POST /api/invoices/:id/process
func (h *InvoiceHandler) Process(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	inv, err := h.workflow.ProcessInvoice(c.Context(), id)
	if err != nil {
		// Intento fallido con factura actualizada: se devuelve el estado
		// persistido, con el status HTTP según la clase del error — 502 si
		// AFIP no estuvo disponible (reintentable), 422 si el rechazo es
		// del contenido o de las credenciales.
		if inv != nil {
			status := fiber.StatusUnprocessableEntity
			if errors.Is(err, domain.ErrServiceUnavailable) {
				status = fiber.StatusBadGateway
			}
			return c.Status(status).JSON(dto.ToInvoiceResponse(inv))
		}
		return invoiceError(c, err)
	}
	return c.JSON(dto.ToInvoiceResponse(inv))
}

// GetStatus devuelve el estado de la factura con su bitácora.
// GET /api/invoices/:id
func (h *InvoiceHandler) GetStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	inv, events, err := h.workflow.GetInvoiceStatus(c.Context(), id)
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(dto.ToInvoiceStatusResponse(inv, events))
}

// GetBySale devuelve la factura asociada a una venta.
// GET /api/sales/:id/invoice
func (h *InvoiceHandler) GetBySale(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	inv, err := h.workflow.GetInvoiceBySale(c.Context(), id)
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(dto.ToInvoiceResponse(inv))
}

// Sweep ejecuta una pasada del barrido de reintentos (pensado para cron externo).
// POST /api/invoices/sweep
func (h *InvoiceHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.sweeper.Sweep(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(result)
}

// invoiceError mapea los errores de dominio a respuestas HTTP.
func invoiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "IN_FLIGHT", Message: err.Error()})
	case errors.Is(err, domain.ErrConfiguration):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "CONFIGURATION", Message: err.Error()})
	case errors.Is(err, domain.ErrServiceUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "AFIP_UNAVAILABLE", Message: err.Error()})
	case errors.Is(err, domain.ErrAuthRejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "AUTH_REJECTED", Message: err.Error()})
	case errors.Is(err, domain.ErrBusinessRejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "BUSINESS_REJECTED", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
