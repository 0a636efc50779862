package repository

import (
	"context"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// BranchConfigRepository persistencia de la configuración fiscal por sucursal.
type BranchConfigRepository interface {
	Create(ctx context.Context, cfg *entity.BranchFiscalConfig) error

	// GetActiveByBranch devuelve la configuración activa de la sucursal o
	// (nil, nil) si no hay ninguna activa.
	GetActiveByBranch(ctx context.Context, branchID string) (*entity.BranchFiscalConfig, error)

	List(ctx context.Context) ([]*entity.BranchFiscalConfig, error)
}
