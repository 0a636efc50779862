package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
)

// ConfigHandler administración de la configuración fiscal por sucursal.
type ConfigHandler struct {
	registry *billing.ConfigRegistry
}

func NewConfigHandler(registry *billing.ConfigRegistry) *ConfigHandler {
	return &ConfigHandler{registry: registry}
}

// Create da de alta la configuración fiscal de una sucursal.
// POST /api/fiscal-configs
func (h *ConfigHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateBranchConfigRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	cfg, err := h.registry.CreateConfig(c.Context(), in.BranchID, in.CUIT, in.PtoVta, in.IssuerMonotributo)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		}
		if errors.Is(err, domain.ErrDuplicate) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: "la sucursal ya tiene una configuración activa"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ToBranchConfigResponse(cfg))
}

// Diagnostics reporte de salud fiscal de todas las sucursales.
// GET /api/fiscal-configs/diagnostics
func (h *ConfigHandler) Diagnostics(c *fiber.Ctx) error {
	diags, err := h.registry.Diagnostics(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(fiber.Map{
		"cert_cuit": h.registry.CertCUIT(),
		"branches":  diags,
	})
}
