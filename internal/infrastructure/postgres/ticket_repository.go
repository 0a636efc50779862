package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

var _ repository.TicketRepository = (*TicketRepo)(nil)

// TicketRepo persistencia del ticket WSAA (un registro por CUIT).
type TicketRepo struct {
	q Querier
}

func NewTicketRepository(q Querier) *TicketRepo {
	return &TicketRepo{q: q}
}

// Get devuelve el ticket almacenado para el CUIT, o (nil, nil) si nunca hubo.
func (r *TicketRepo) Get(ctx context.Context, cuit string) (*entity.AuthTicket, error) {
	query := `
		SELECT cuit, token, sign, expiration_time, obtained_at
		FROM auth_tickets
		WHERE cuit = $1`
	var t entity.AuthTicket
	err := r.q.QueryRow(ctx, query, cuit).Scan(
		&t.CUIT, &t.Token, &t.Sign, &t.ExpirationTime, &t.ObtainedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get auth ticket: %w", err)
	}
	return &t, nil
}

// Upsert pisa el ticket anterior del CUIT con el recién obtenido.
func (r *TicketRepo) Upsert(ctx context.Context, ticket *entity.AuthTicket) error {
	query := `
		INSERT INTO auth_tickets (cuit, token, sign, expiration_time, obtained_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cuit) DO UPDATE
		SET token           = EXCLUDED.token,
		    sign            = EXCLUDED.sign,
		    expiration_time = EXCLUDED.expiration_time,
		    obtained_at     = EXCLUDED.obtained_at`
	_, err := r.q.Exec(ctx, query,
		ticket.CUIT, ticket.Token, ticket.Sign, ticket.ExpirationTime, ticket.ObtainedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert auth ticket: %w", err)
	}
	return nil
}

// Delete descarta el ticket del CUIT. Idempotente: sin registro no es error.
func (r *TicketRepo) Delete(ctx context.Context, cuit string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM auth_tickets WHERE cuit = $1`, cuit); err != nil {
		return fmt.Errorf("delete auth ticket: %w", err)
	}
	return nil
}
