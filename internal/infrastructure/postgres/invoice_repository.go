package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, sale_id, branch_id, letter, pto_vta, status, number,
	cae, cae_due, net_total, tax_total, grand_total,
	last_error_reason, last_error_detail, attempts, created_at, updated_at`

// Create persiste la factura inicial. El unique sobre sale_id garantiza a lo
// sumo una factura por venta.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoices (id, sale_id, branch_id, letter, pto_vta, status, number,
		                      cae, cae_due, net_total, tax_total, grand_total,
		                      last_error_reason, last_error_detail, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.SaleID, inv.BranchID, inv.Letter, inv.PtoVta, inv.Status, inv.Number,
		nullIfEmpty(inv.CAE), nullTime(inv.CAEDue), inv.NetTotal, inv.TaxTotal, inv.GrandTotal,
		nullIfEmpty(inv.LastErrorReason), nullIfEmpty(inv.LastErrorDetail), inv.Attempts,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID obtiene una factura por ID. Devuelve (nil, nil) si no existe.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetBySaleID obtiene la factura de una venta. Devuelve (nil, nil) si no existe.
func (r *InvoiceRepo) GetBySaleID(ctx context.Context, saleID string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE sale_id = $1`
	return r.getOne(ctx, query, saleID)
}

func (r *InvoiceRepo) getOne(ctx context.Context, query string, arg any) (*entity.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// CompareAndSetStatus cambia el estado solo si el actual está en `from`.
// El WHERE condicional es el guard contra doble submit a nivel DB.
func (r *InvoiceRepo) CompareAndSetStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	query := `
		UPDATE invoices
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($2)`
	tag, err := r.q.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("cas invoice status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update persiste todos los campos fiscales mutables de la factura.
// El número y el CAE quedan atados al cambio de estado en el mismo UPDATE.
func (r *InvoiceRepo) Update(ctx context.Context, inv *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET status            = $2,
		    number            = $3,
		    cae               = $4,
		    cae_due           = $5,
		    last_error_reason = $6,
		    last_error_detail = $7,
		    attempts          = $8,
		    updated_at        = $9
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.Status, inv.Number,
		nullIfEmpty(inv.CAE), nullTime(inv.CAEDue),
		nullIfEmpty(inv.LastErrorReason), nullIfEmpty(inv.LastErrorDetail),
		inv.Attempts, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

// ListEligibleForRetry es la consulta del barrido: PENDING, ERROR por
// indisponibilidad bajo el tope de intentos y PROCESSING sin update desde
// antes de staleBefore (crash a mitad de vuelo). Los rechazos de negocio, de
// credenciales y los errores de configuración NUNCA se reintentan solos:
// reenviar el mismo payload no los arregla, esperan al operador (que puede
// reprocesar a mano). Las que superan el tope también quedan para el operador.
func (r *InvoiceRepo) ListEligibleForRetry(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = 'PENDING'
		   OR (status = 'ERROR' AND attempts < $1 AND last_error_reason = $4)
		   OR (status = 'PROCESSING' AND updated_at < $2)
		ORDER BY created_at
		LIMIT $3`
	rows, err := r.q.Query(ctx, query, maxAttempts, staleBefore, limit, entity.ErrorReasonUnavailable)
	if err != nil {
		return nil, fmt.Errorf("list retryable invoices: %w", err)
	}
	defer rows.Close()
	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// AppendEvent agrega una entrada a la bitácora y recorta por encima de keep.
func (r *InvoiceRepo) AppendEvent(ctx context.Context, ev *entity.InvoiceEvent, keep int) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	insert := `
		INSERT INTO invoice_events (id, invoice_id, stage, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.q.Exec(ctx, insert, ev.ID, ev.InvoiceID, ev.Stage, ev.Message, ev.CreatedAt); err != nil {
		return fmt.Errorf("insert invoice event: %w", err)
	}
	// Bitácora acotada: se borran las entradas más viejas por encima de keep.
	trim := `
		DELETE FROM invoice_events
		WHERE invoice_id = $1
		  AND id NOT IN (
			SELECT id FROM invoice_events
			WHERE invoice_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2)`
	if _, err := r.q.Exec(ctx, trim, ev.InvoiceID, keep); err != nil {
		return fmt.Errorf("trim invoice events: %w", err)
	}
	return nil
}

// ListEvents devuelve las últimas entradas de la bitácora (más nuevas primero).
func (r *InvoiceRepo) ListEvents(ctx context.Context, invoiceID string, limit int) ([]*entity.InvoiceEvent, error) {
	query := `
		SELECT id, invoice_id, stage, message, created_at
		FROM invoice_events
		WHERE invoice_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, invoiceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invoice events: %w", err)
	}
	defer rows.Close()
	var list []*entity.InvoiceEvent
	for rows.Next() {
		var ev entity.InvoiceEvent
		if err := rows.Scan(&ev.ID, &ev.InvoiceID, &ev.Stage, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice event: %w", err)
		}
		list = append(list, &ev)
	}
	return list, rows.Err()
}

// ── helpers ───────────────────────────────────────────────────────────────────

// pgxScanner abstrae pgx.Row y pgx.Rows para reutilizar scanInvoice.
type pgxScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row pgxScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var cae, reason, detail *string
	var caeDue *time.Time
	err := row.Scan(
		&inv.ID, &inv.SaleID, &inv.BranchID, &inv.Letter, &inv.PtoVta, &inv.Status, &inv.Number,
		&cae, &caeDue, &inv.NetTotal, &inv.TaxTotal, &inv.GrandTotal,
		&reason, &detail, &inv.Attempts, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.CAE = derefStr(cae)
	inv.LastErrorReason = derefStr(reason)
	inv.LastErrorDetail = derefStr(detail)
	if caeDue != nil {
		inv.CAEDue = *caeDue
	}
	return &inv, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
