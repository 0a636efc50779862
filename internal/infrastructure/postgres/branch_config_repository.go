package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

var _ repository.BranchConfigRepository = (*BranchConfigRepo)(nil)

// BranchConfigRepo persistencia de la configuración fiscal por sucursal.
type BranchConfigRepo struct {
	q Querier
}

func NewBranchConfigRepository(q Querier) *BranchConfigRepo {
	return &BranchConfigRepo{q: q}
}

// Create persiste una configuración. El índice único parcial sobre
// (branch_id) WHERE is_active garantiza a lo sumo una activa por sucursal.
func (r *BranchConfigRepo) Create(ctx context.Context, cfg *entity.BranchFiscalConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO branch_fiscal_configs (id, branch_id, cuit, pto_vta, issuer_monotributo, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query,
		cfg.ID, cfg.BranchID, cfg.CUIT, cfg.PtoVta, cfg.IssuerMonotributo, cfg.IsActive,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert branch fiscal config: %w", err)
	}
	return nil
}

const branchConfigColumns = `id, branch_id, cuit, pto_vta, issuer_monotributo, is_active, created_at, updated_at`

// GetActiveByBranch devuelve la config activa de la sucursal, o (nil, nil).
func (r *BranchConfigRepo) GetActiveByBranch(ctx context.Context, branchID string) (*entity.BranchFiscalConfig, error) {
	query := `
		SELECT ` + branchConfigColumns + `
		FROM branch_fiscal_configs
		WHERE branch_id = $1 AND is_active = true`
	var cfg entity.BranchFiscalConfig
	err := r.q.QueryRow(ctx, query, branchID).Scan(
		&cfg.ID, &cfg.BranchID, &cfg.CUIT, &cfg.PtoVta, &cfg.IssuerMonotributo, &cfg.IsActive,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get branch fiscal config: %w", err)
	}
	return &cfg, nil
}

// List devuelve todas las configuraciones (activas e inactivas).
func (r *BranchConfigRepo) List(ctx context.Context) ([]*entity.BranchFiscalConfig, error) {
	query := `
		SELECT ` + branchConfigColumns + `
		FROM branch_fiscal_configs
		ORDER BY branch_id, created_at DESC`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list branch fiscal configs: %w", err)
	}
	defer rows.Close()
	var list []*entity.BranchFiscalConfig
	for rows.Next() {
		var cfg entity.BranchFiscalConfig
		if err := rows.Scan(
			&cfg.ID, &cfg.BranchID, &cfg.CUIT, &cfg.PtoVta, &cfg.IssuerMonotributo, &cfg.IsActive,
			&cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan branch fiscal config: %w", err)
		}
		list = append(list, &cfg)
	}
	return list, rows.Err()
}
