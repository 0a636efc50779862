package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de autorización AFIP. Transiciones permitidas:
//
//	PENDING → PROCESSING → COMPLETED
//	                     → ERROR → PROCESSING (reintento)
//
// COMPLETED es terminal. ERROR es reintentable hasta el tope de intentos.
const (
	InvoiceStatusPending    = "PENDING"    // Creada, sin intento en vuelo
	InvoiceStatusProcessing = "PROCESSING" // Intento de autorización en vuelo
	InvoiceStatusCompleted  = "COMPLETED"  // CAE obtenido (terminal)
	InvoiceStatusError      = "ERROR"      // Último intento falló; razón clasificada
)

// Razones clasificadas de error (se persisten en last_error_reason).
const (
	ErrorReasonConfiguration = "CONFIGURATION"
	ErrorReasonUnavailable   = "UNAVAILABLE"
	ErrorReasonAuthRejected  = "AUTH_REJECTED"
	ErrorReasonRejected      = "BUSINESS_REJECTED"
)

// Invoice representa el comprobante fiscal de una venta.
// Invariantes: CAE no vacío ⇔ Status == COMPLETED; Number se asigna una sola
// vez (en la transición a COMPLETED) y nunca se reutiliza; existe a lo sumo
// una factura por venta (unique sale_id).
type Invoice struct {
	ID              string
	SaleID          string // Venta que origina el comprobante (único)
	BranchID        string
	Letter          string // A | B | C
	PtoVta          int    // Punto de venta de la sucursal al momento de crear
	Status          string
	Number          int64     // Número secuencial asignado por AFIP (0 = sin asignar)
	CAE             string    // Código de Autorización Electrónico (opaco, verbatim)
	CAEDue          time.Time // Vencimiento del CAE
	NetTotal        decimal.Decimal
	TaxTotal        decimal.Decimal
	GrandTotal      decimal.Decimal
	LastErrorReason string // Razón clasificada del último error (vacío si no hubo)
	LastErrorDetail string // Detalle legible del último error
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal indica si la factura ya no admite procesamiento automático.
func (i *Invoice) IsTerminal(maxAttempts int) bool {
	if i.Status == InvoiceStatusCompleted {
		return true
	}
	return i.Status == InvoiceStatusError && i.Attempts >= maxAttempts
}

// InvoiceEvent entrada de la bitácora append-only de una factura.
// La bitácora está acotada: el repositorio conserva los últimos N eventos.
type InvoiceEvent struct {
	ID        string
	InvoiceID string
	Stage     string // created | process | wsaa | wsfe-num | completed | error
	Message   string
	CreatedAt time.Time
}
