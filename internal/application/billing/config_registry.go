package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/pkg/afip"
	"github.com/tu-usuario/facturacion-pro/pkg/logger"
)

// ConfigRegistry resuelve y valida la configuración fiscal de cada sucursal.
// La identidad del certificado de firma (certCUIT) se compara contra el CUIT
// configurado: la discrepancia es advisory, se loguea una vez por sucursal y
// nunca bloquea la operación ni se corrige sola.
type ConfigRegistry struct {
	configs  repository.BranchConfigRepository
	certCUIT string // CUIT extraído del certificado; vacío si no hay certificado cargado
	log      *logger.Logger

	mu     sync.Mutex
	warned map[string]bool
}

func NewConfigRegistry(configs repository.BranchConfigRepository, certCUIT string, log *logger.Logger) *ConfigRegistry {
	return &ConfigRegistry{
		configs:  configs,
		certCUIT: certCUIT,
		log:      log.Component("config_registry"),
		warned:   make(map[string]bool),
	}
}

// ActiveConfig devuelve la configuración activa de la sucursal validada.
// Sucursal sin configuración, CUIT inválido o punto de venta fuera de rango
// son errores de configuración: fatales, sin reintento automático.
func (r *ConfigRegistry) ActiveConfig(ctx context.Context, branchID string) (*entity.BranchFiscalConfig, error) {
	cfg, err := r.configs.GetActiveByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: sucursal %s sin configuración fiscal activa", domain.ErrConfiguration, branchID)
	}
	if err := afip.ValidateCUIT(cfg.CUIT); err != nil {
		return nil, fmt.Errorf("%w: CUIT de la sucursal %s: %v", domain.ErrConfiguration, branchID, err)
	}
	if cfg.PtoVta <= 0 {
		return nil, fmt.Errorf("%w: punto de venta inválido %d (sucursal %s)", domain.ErrConfiguration, cfg.PtoVta, branchID)
	}
	r.warnIfCertMismatch(cfg)
	return cfg, nil
}

// warnIfCertMismatch loguea (una sola vez por sucursal) si el CUIT configurado
// no coincide con la identidad del certificado de firma.
func (r *ConfigRegistry) warnIfCertMismatch(cfg *entity.BranchFiscalConfig) {
	if r.certCUIT == "" || r.certCUIT == cfg.CUIT {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.warned[cfg.BranchID] {
		return
	}
	r.warned[cfg.BranchID] = true
	r.log.Warn().
		Str("branch_id", cfg.BranchID).
		Str("cuit_config", cfg.CUIT).
		Str("cuit_cert", r.certCUIT).
		Msg("el CUIT configurado no coincide con el del certificado de firma")
}

// CreateConfig da de alta la configuración fiscal de una sucursal (activa).
// Normaliza el CUIT (acepta guiones) y lo valida con el dígito verificador.
// Si la sucursal ya tiene una configuración activa devuelve ErrDuplicate.
func (r *ConfigRegistry) CreateConfig(ctx context.Context, branchID, cuit string, ptoVta int, monotributo bool) (*entity.BranchFiscalConfig, error) {
	if branchID == "" {
		return nil, fmt.Errorf("%w: branch_id requerido", domain.ErrInvalidInput)
	}
	normalized, err := afip.NormalizeCUIT(cuit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if ptoVta <= 0 {
		return nil, fmt.Errorf("%w: punto de venta debe ser mayor a cero", domain.ErrInvalidInput)
	}

	now := time.Now()
	cfg := &entity.BranchFiscalConfig{
		BranchID:          branchID,
		CUIT:              normalized,
		PtoVta:            ptoVta,
		IssuerMonotributo: monotributo,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := r.configs.Create(ctx, cfg); err != nil {
		return nil, err
	}
	r.warnIfCertMismatch(cfg)
	return cfg, nil
}

// BranchDiagnostic estado de salud fiscal de una sucursal.
type BranchDiagnostic struct {
	BranchID  string `json:"branch_id"`
	CUIT      string `json:"cuit"`
	PtoVta    int    `json:"pto_vta"`
	IsActive  bool   `json:"is_active"`
	CUITValid bool   `json:"cuit_valid"`
	CertMatch bool   `json:"cert_match"` // true también cuando no hay certificado cargado
}

// Diagnostics arma el reporte de configuración de todas las sucursales.
func (r *ConfigRegistry) Diagnostics(ctx context.Context) ([]BranchDiagnostic, error) {
	configs, err := r.configs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]BranchDiagnostic, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, BranchDiagnostic{
			BranchID:  cfg.BranchID,
			CUIT:      cfg.CUIT,
			PtoVta:    cfg.PtoVta,
			IsActive:  cfg.IsActive,
			CUITValid: afip.ValidateCUIT(cfg.CUIT) == nil,
			CertMatch: r.certCUIT == "" || r.certCUIT == cfg.CUIT,
		})
	}
	return out, nil
}

// CertCUIT devuelve la identidad del certificado cargado (vacío si no hay).
func (r *ConfigRegistry) CertCUIT() string {
	return r.certCUIT
}
