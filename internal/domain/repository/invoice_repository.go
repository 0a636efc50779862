package repository

import (
	"context"
	"time"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// InvoiceRepository persistencia de comprobantes y su bitácora.
// Los getters devuelven (nil, nil) cuando el registro no existe.
type InvoiceRepository interface {
	// Create persiste la factura inicial (PENDING). Retorna domain.ErrDuplicate
	// si ya existe una factura para la misma venta (unique sale_id).
	Create(ctx context.Context, inv *entity.Invoice) error

	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetBySaleID(ctx context.Context, saleID string) (*entity.Invoice, error)

	// CompareAndSetStatus cambia el estado solo si el actual está en `from`.
	// Devuelve false si la fila no estaba en un estado de origen válido
	// (guard de idempotencia a nivel DB, además del lock en memoria).
	CompareAndSetStatus(ctx context.Context, id string, from []string, to string) (bool, error)

	// Update persiste todos los campos fiscales mutables (estado, número, CAE,
	// vencimiento, razón/detalle de error, intentos, updated_at) en un solo UPDATE.
	Update(ctx context.Context, inv *entity.Invoice) error

	// ListEligibleForRetry devuelve facturas PENDING, ERROR con intentos por
	// debajo de maxAttempts, y PROCESSING sin update desde antes de staleBefore.
	ListEligibleForRetry(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]*entity.Invoice, error)

	// AppendEvent agrega una entrada a la bitácora y recorta las más viejas
	// por encima de keep (bitácora acotada).
	AppendEvent(ctx context.Context, ev *entity.InvoiceEvent, keep int) error
	ListEvents(ctx context.Context, invoiceID string, limit int) ([]*entity.InvoiceEvent, error)
}
