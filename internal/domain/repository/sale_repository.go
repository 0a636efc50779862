package repository

import (
	"context"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// SaleRepository acceso de solo lectura a las ventas del subsistema de ventas.
// Este core nunca escribe en las tablas de ventas.
type SaleRepository interface {
	// GetByID devuelve la venta con sus líneas, o (nil, nil) si no existe.
	GetByID(ctx context.Context, id string) (*entity.Sale, error)
}
