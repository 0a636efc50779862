package repository

import (
	"context"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// TicketRepository persistencia del ticket WSAA vigente por CUIT.
// Un registro por CUIT: Upsert pisa el anterior. Get devuelve (nil, nil) si
// nunca se obtuvo un ticket para ese CUIT. Delete descarta el ticket (p.ej.
// cuando el WS lo rechaza antes de su vencimiento local); borrar un CUIT sin
// ticket no es error.
type TicketRepository interface {
	Get(ctx context.Context, cuit string) (*entity.AuthTicket, error)
	Upsert(ctx context.Context, ticket *entity.AuthTicket) error
	Delete(ctx context.Context, cuit string) error
}
