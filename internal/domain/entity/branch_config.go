package entity

import "time"

// BranchFiscalConfig configuración fiscal de una sucursal: CUIT emisor y
// punto de venta habilitado ante AFIP. A lo sumo una configuración activa por
// sucursal. El CUIT debe coincidir con la identidad del certificado de firma;
// la discrepancia se reporta como warning, nunca se corrige sola.
type BranchFiscalConfig struct {
	ID                string
	BranchID          string
	CUIT              string // Solo dígitos (11)
	PtoVta            int    // Punto de venta (> 0)
	IssuerMonotributo bool   // true → emite comprobantes letra C
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
