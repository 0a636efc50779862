// Package dto define los contratos de entrada/salida de la API HTTP.
package dto

import (
	"time"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/pkg/afip"
)

// ErrorResponse respuesta de error estándar de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateInvoiceRequest alta de factura a partir de una venta completada.
type CreateInvoiceRequest struct {
	SaleID string `json:"sale_id"`
}

// InvoiceResponse proyección pública de una factura.
type InvoiceResponse struct {
	ID              string `json:"id"`
	SaleID          string `json:"sale_id"`
	BranchID        string `json:"branch_id"`
	Letter          string `json:"letter"`
	PtoVta          int    `json:"pto_vta"`
	Status          string `json:"status"`
	Number          int64  `json:"number,omitempty"`
	CAE             string `json:"cae,omitempty"`
	CAEDue          string `json:"cae_due,omitempty"`
	NetTotal        string `json:"net_total"`
	TaxTotal        string `json:"tax_total"`
	GrandTotal      string `json:"grand_total"`
	LastErrorReason string `json:"last_error_reason,omitempty"`
	LastErrorDetail string `json:"last_error_detail,omitempty"`
	Attempts        int    `json:"attempts"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// InvoiceEventResponse entrada de la bitácora de una factura.
type InvoiceEventResponse struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// InvoiceStatusResponse factura más su bitácora.
type InvoiceStatusResponse struct {
	Invoice InvoiceResponse        `json:"invoice"`
	Events  []InvoiceEventResponse `json:"events"`
}

// ToInvoiceResponse proyecta la entidad al contrato público. Los importes se
// serializan como strings con dos decimales (mismo formato que viaja a AFIP).
func ToInvoiceResponse(inv *entity.Invoice) InvoiceResponse {
	out := InvoiceResponse{
		ID:              inv.ID,
		SaleID:          inv.SaleID,
		BranchID:        inv.BranchID,
		Letter:          inv.Letter,
		PtoVta:          inv.PtoVta,
		Status:          inv.Status,
		Number:          inv.Number,
		CAE:             inv.CAE,
		NetTotal:        afip.FormatAmount(inv.NetTotal),
		TaxTotal:        afip.FormatAmount(inv.TaxTotal),
		GrandTotal:      afip.FormatAmount(inv.GrandTotal),
		LastErrorReason: inv.LastErrorReason,
		LastErrorDetail: inv.LastErrorDetail,
		Attempts:        inv.Attempts,
		CreatedAt:       inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       inv.UpdatedAt.Format(time.RFC3339),
	}
	if !inv.CAEDue.IsZero() {
		out.CAEDue = inv.CAEDue.Format("2006-01-02")
	}
	return out
}

// ToInvoiceStatusResponse arma la respuesta de estado con bitácora.
func ToInvoiceStatusResponse(inv *entity.Invoice, events []*entity.InvoiceEvent) InvoiceStatusResponse {
	out := InvoiceStatusResponse{
		Invoice: ToInvoiceResponse(inv),
		Events:  make([]InvoiceEventResponse, 0, len(events)),
	}
	for _, ev := range events {
		out.Events = append(out.Events, InvoiceEventResponse{
			Stage:     ev.Stage,
			Message:   ev.Message,
			CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// CreateBranchConfigRequest alta de configuración fiscal de una sucursal.
type CreateBranchConfigRequest struct {
	BranchID          string `json:"branch_id"`
	CUIT              string `json:"cuit"`
	PtoVta            int    `json:"pto_vta"`
	IssuerMonotributo bool   `json:"issuer_monotributo"`
}

// BranchConfigResponse proyección pública de la configuración fiscal.
type BranchConfigResponse struct {
	ID                string `json:"id"`
	BranchID          string `json:"branch_id"`
	CUIT              string `json:"cuit"`
	PtoVta            int    `json:"pto_vta"`
	IssuerMonotributo bool   `json:"issuer_monotributo"`
	IsActive          bool   `json:"is_active"`
	CreatedAt         string `json:"created_at"`
}

// ToBranchConfigResponse proyecta la entidad al contrato público.
func ToBranchConfigResponse(cfg *entity.BranchFiscalConfig) BranchConfigResponse {
	return BranchConfigResponse{
		ID:                cfg.ID,
		BranchID:          cfg.BranchID,
		CUIT:              cfg.CUIT,
		PtoVta:            cfg.PtoVta,
		IssuerMonotributo: cfg.IssuerMonotributo,
		IsActive:          cfg.IsActive,
		CreatedAt:         cfg.CreatedAt.Format(time.RFC3339),
	}
}
