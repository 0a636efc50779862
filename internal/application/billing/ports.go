// Package billing contiene el núcleo de orquestación fiscal: obtención y
// renovación del ticket WSAA, ciclo de autorización de comprobantes contra el
// WSFE y barrido de reintentos.
package billing

import (
	"context"
	"crypto/tls"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

// TRASigner puerto de firma del TRA (CMS/PKCS#7). Lo implementa
// signer.CMSSigner; en tests se reemplaza por un stub.
type TRASigner interface {
	Sign(tra []byte, cert tls.Certificate) ([]byte, error)
}

// BillingTxRunner ejecuta una función dentro de una transacción de BD,
// pasando el repositorio de facturas atado a esa tx. Se usa para que el alta
// de la factura y su primer evento de bitácora sean atómicos.
type BillingTxRunner interface {
	RunBilling(ctx context.Context, fn func(invoices repository.InvoiceRepository) error) error
}

// TicketSource puerto del proveedor de tickets WSAA. Lo implementa
// TicketManager; el workflow depende de la interfaz para poder testearse sin
// firmar nada. Invalidate descarta el ticket almacenado cuando el WS rechaza
// credenciales que localmente parecían vigentes.
type TicketSource interface {
	GetTicket(ctx context.Context, cuit string) (*entity.AuthTicket, error)
	Invalidate(ctx context.Context, cuit string) error
}
