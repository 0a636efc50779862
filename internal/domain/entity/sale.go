package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale venta completada que requiere facturación. Es propiedad del subsistema
// de ventas: este core solo la lee para armar el payload de autorización.
type Sale struct {
	ID            string
	BranchID      string
	Total         decimal.Decimal
	BuyerName     string // Vacío = consumidor final
	BuyerDocTipo  int    // 80 CUIT, 96 DNI, 99 consumidor final
	BuyerDocNro   string // Vacío o "0" para consumidor final
	Date          time.Time
	Items         []*SaleItem
}

// SaleItem línea de venta (producto, cantidad, precio unitario, descuento).
type SaleItem struct {
	ID        string
	SaleID    string
	ProductID string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal // Importe absoluto descontado de la línea
	IVAId     int             // Id de alícuota WSFE (3, 4, 5, 6)
}

// NetAmount importe neto de la línea (cantidad × precio − descuento).
func (it *SaleItem) NetAmount() decimal.Decimal {
	return it.Quantity.Mul(it.UnitPrice).Sub(it.Discount)
}
