package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	afipws "github.com/tu-usuario/facturacion-pro/internal/infrastructure/afip"
	"github.com/tu-usuario/facturacion-pro/pkg/afip"
	"github.com/tu-usuario/facturacion-pro/pkg/logger"
)

// WorkflowConfig parámetros operativos del ciclo de autorización.
type WorkflowConfig struct {
	MaxAttempts int           // Tope de intentos automáticos por factura
	StaleAfter  time.Duration // Antigüedad para considerar colgada una PROCESSING
	EventKeep   int           // Entradas que conserva la bitácora por factura
}

// InvoiceWorkflow orquesta el ciclo completo de un comprobante: alta en
// PENDING, intento de autorización contra el WSFE y transición a COMPLETED o
// ERROR. El doble guard contra procesamiento concurrente es un lock en
// memoria por factura más el compare-and-set de estado en la DB.
type InvoiceWorkflow struct {
	invoices repository.InvoiceRepository
	sales    repository.SaleRepository
	txRunner BillingTxRunner
	registry *ConfigRegistry
	tickets  TicketSource
	wsfe     afipws.WSFEClient
	cfg      WorkflowConfig
	log      *logger.Logger

	locks lockTable
	now   func() time.Time
}

func NewInvoiceWorkflow(
	invoices repository.InvoiceRepository,
	sales repository.SaleRepository,
	txRunner BillingTxRunner,
	registry *ConfigRegistry,
	tickets TicketSource,
	wsfe afipws.WSFEClient,
	cfg WorkflowConfig,
	log *logger.Logger,
) *InvoiceWorkflow {
	return &InvoiceWorkflow{
		invoices: invoices,
		sales:    sales,
		txRunner: txRunner,
		registry: registry,
		tickets:  tickets,
		wsfe:     wsfe,
		cfg:      cfg,
		log:      log.Component("invoice_workflow"),
		locks:    lockTable{locks: make(map[string]*invoiceLock)},
		now:      time.Now,
	}
}

// CreateInvoiceForSale da de alta la factura PENDING de una venta. Idempotente:
// si la venta ya tiene factura, devuelve la existente sin tocar nada. Si la
// sucursal no tiene configuración fiscal válida, falla sin crear registro.
func (w *InvoiceWorkflow) CreateInvoiceForSale(ctx context.Context, saleID string) (*entity.Invoice, error) {
	sale, err := w.sales.GetByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, fmt.Errorf("%w: venta %s", domain.ErrNotFound, saleID)
	}

	if existing, err := w.invoices.GetBySaleID(ctx, saleID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	// La configuración se valida ANTES de crear: una sucursal mal configurada
	// no deja facturas huérfanas en PENDING.
	cfg, err := w.registry.ActiveConfig(ctx, sale.BranchID)
	if err != nil {
		return nil, err
	}

	totals, err := computeTotals(sale.Items)
	if err != nil {
		return nil, err
	}
	if !totals.Grand.Equal(sale.Total.Round(2)) {
		w.log.Warn().
			Str("sale_id", saleID).
			Str("total_venta", sale.Total.String()).
			Str("total_liquidado", totals.Grand.String()).
			Msg("el total de la venta no coincide con la liquidación de IVA")
	}

	now := w.now()
	inv := &entity.Invoice{
		SaleID:     saleID,
		BranchID:   sale.BranchID,
		Letter:     afip.DetermineLetter(cfg.IssuerMonotributo, sale.BuyerDocTipo),
		PtoVta:     cfg.PtoVta,
		Status:     entity.InvoiceStatusPending,
		NetTotal:   totals.Net,
		TaxTotal:   totals.Tax,
		GrandTotal: totals.Grand,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// Alta + primer evento en la misma transacción.
	err = w.txRunner.RunBilling(ctx, func(invoices repository.InvoiceRepository) error {
		if err := invoices.Create(ctx, inv); err != nil {
			return err
		}
		ev := &entity.InvoiceEvent{
			InvoiceID: inv.ID,
			Stage:     "created",
			Message:   fmt.Sprintf("factura %s creada para la venta %s", inv.Letter, saleID),
			CreatedAt: now,
		}
		return invoices.AppendEvent(ctx, ev, w.cfg.EventKeep)
	})
	if err != nil {
		// Carrera de alta: otro llamador creó la factura entre el check y el
		// insert. El unique sobre sale_id la detecta; devolvemos la ganadora.
		if errors.Is(err, domain.ErrDuplicate) {
			return w.invoices.GetBySaleID(ctx, saleID)
		}
		return nil, err
	}
	return inv, nil
}

// ProcessInvoice ejecuta un intento de autorización. Idempotente sobre
// COMPLETED; rechaza con ErrConflict si hay otro intento en vuelo.
func (w *InvoiceWorkflow) ProcessInvoice(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	lock := w.locks.acquire(invoiceID)
	defer w.locks.release(invoiceID, lock)

	inv, err := w.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: factura %s", domain.ErrNotFound, invoiceID)
	}
	if inv.Status == entity.InvoiceStatusCompleted {
		return inv, nil
	}

	from := []string{entity.InvoiceStatusPending, entity.InvoiceStatusError}
	if inv.Status == entity.InvoiceStatusProcessing {
		// PROCESSING solo se retoma si quedó colgada (crash a mitad de vuelo).
		if inv.UpdatedAt.After(w.now().Add(-w.cfg.StaleAfter)) {
			return nil, fmt.Errorf("%w: factura %s con intento en vuelo", domain.ErrConflict, invoiceID)
		}
		from = append(from, entity.InvoiceStatusProcessing)
	}

	ok, err := w.invoices.CompareAndSetStatus(ctx, invoiceID, from, entity.InvoiceStatusProcessing)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Otro proceso ganó la transición. Releer para informar estado real.
		current, err := w.invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == entity.InvoiceStatusCompleted {
			return current, nil
		}
		return nil, fmt.Errorf("%w: factura %s con intento en vuelo", domain.ErrConflict, invoiceID)
	}

	inv.Status = entity.InvoiceStatusProcessing
	inv.Attempts++
	w.event(ctx, inv.ID, "process", fmt.Sprintf("intento %d de autorización", inv.Attempts))

	if err := w.authorize(ctx, inv); err != nil {
		reason := classifyReason(err)
		inv.Status = entity.InvoiceStatusError
		inv.LastErrorReason = reason
		inv.LastErrorDetail = err.Error()
		inv.UpdatedAt = w.now()
		if uerr := w.invoices.Update(ctx, inv); uerr != nil {
			return nil, fmt.Errorf("persistir factura en error: %w", uerr)
		}
		w.event(ctx, inv.ID, "error", fmt.Sprintf("[%s] %s", reason, err.Error()))
		w.log.Error().
			Str("invoice_id", inv.ID).
			Str("reason", reason).
			Int("attempts", inv.Attempts).
			Err(err).
			Msg("autorización fallida")
		return inv, err
	}

	inv.LastErrorReason = ""
	inv.LastErrorDetail = ""
	inv.UpdatedAt = w.now()
	if err := w.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("persistir factura autorizada: %w", err)
	}
	w.event(ctx, inv.ID, "completed", fmt.Sprintf("CAE %s, comprobante %d, vence %s",
		inv.CAE, inv.Number, inv.CAEDue.Format("2006-01-02")))
	w.log.Info().
		Str("invoice_id", inv.ID).
		Int64("number", inv.Number).
		Str("cae", inv.CAE).
		Msg("comprobante autorizado")
	return inv, nil
}

// authorize ejecuta las llamadas AFIP del intento y muta la factura a
// COMPLETED si el comprobante fue aprobado. Si el WSFE rechaza las
// credenciales a mitad de vuelo, renueva el ticket y reintenta una vez.
// Cualquier error deja la factura sin tocar (el llamador decide la
// transición).
func (w *InvoiceWorkflow) authorize(ctx context.Context, inv *entity.Invoice) error {
	cfg, err := w.registry.ActiveConfig(ctx, inv.BranchID)
	if err != nil {
		return err
	}
	sale, err := w.sales.GetByID(ctx, inv.SaleID)
	if err != nil {
		return err
	}
	if sale == nil {
		return fmt.Errorf("%w: la venta %s de la factura ya no existe", domain.ErrConfiguration, inv.SaleID)
	}

	cbteTipo, err := afip.CbteTipoForLetter(inv.Letter)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	ticket, err := w.tickets.GetTicket(ctx, cfg.CUIT)
	if err != nil {
		return err
	}
	w.event(ctx, inv.ID, "wsaa", "ticket WSAA vigente")

	err = w.submit(ctx, inv, sale, ticket, cfg.CUIT, cbteTipo)
	if errors.Is(err, domain.ErrAuthRejected) {
		// El WSFE rechazó credenciales que localmente parecían vigentes (p.ej.
		// un login concurrente desde otro host invalidó el ticket). Se descarta
		// el ticket, se renueva y se reintenta una sola vez.
		if ierr := w.tickets.Invalidate(ctx, cfg.CUIT); ierr != nil {
			w.log.Warn().Str("cuit", cfg.CUIT).Err(ierr).Msg("no se pudo descartar el ticket rechazado")
		}
		w.event(ctx, inv.ID, "wsaa", "credenciales rechazadas por el WS, se renueva el ticket")
		ticket, err = w.tickets.GetTicket(ctx, cfg.CUIT)
		if err != nil {
			return err
		}
		err = w.submit(ctx, inv, sale, ticket, cfg.CUIT, cbteTipo)
	}
	return err
}

// submit ejecuta la consulta de numeración y el pedido de CAE con un ticket
// concreto; en éxito muta la factura a COMPLETED.
func (w *InvoiceWorkflow) submit(ctx context.Context, inv *entity.Invoice, sale *entity.Sale, ticket *entity.AuthTicket, cuit string, cbteTipo int) error {
	auth := afipws.FEAuth{Token: ticket.Token, Sign: ticket.Sign, CUIT: cuit}

	// El WS es la única fuente de verdad de la numeración: el siguiente
	// número se consulta antes de cada intento, nunca se cachea.
	last, err := w.wsfe.LastAuthorized(ctx, auth, inv.PtoVta, cbteTipo)
	if err != nil {
		return err
	}
	number := last + 1
	w.event(ctx, inv.ID, "wsfe-num", fmt.Sprintf("último autorizado %d, se solicita %d", last, number))

	docTipo, docNro := buyerDoc(sale)
	req := &afipws.CAERequest{
		PtoVta:   inv.PtoVta,
		CbteTipo: cbteTipo,
		CbteNro:  number,
		CbteFch:  w.now(),
		DocTipo:  docTipo,
		DocNro:   docNro,
		ImpNeto:  inv.NetTotal,
		ImpIVA:   inv.TaxTotal,
		ImpTotal: inv.GrandTotal,
	}
	if inv.Letter == afip.LetterC {
		// Los comprobantes C no discriminan IVA: viaja todo como neto.
		req.ImpNeto = inv.GrandTotal
		req.ImpIVA = decimal.Zero
	} else {
		totals, err := computeTotals(sale.Items)
		if err != nil {
			return err
		}
		req.IVA = totals.IVA
	}

	result, err := w.wsfe.RequestCAE(ctx, auth, req)
	if err != nil {
		return err
	}
	if !result.Approved {
		return fmt.Errorf("%w: %s", domain.ErrBusinessRejected, formatObservations(result.Observations))
	}

	inv.Number = number
	inv.CAE = result.CAE
	inv.CAEDue = result.CAEDue
	inv.Status = entity.InvoiceStatusCompleted
	return nil
}

// GetInvoiceStatus devuelve la factura y su bitácora (más nuevas primero).
func (w *InvoiceWorkflow) GetInvoiceStatus(ctx context.Context, invoiceID string) (*entity.Invoice, []*entity.InvoiceEvent, error) {
	inv, err := w.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv == nil {
		return nil, nil, fmt.Errorf("%w: factura %s", domain.ErrNotFound, invoiceID)
	}
	events, err := w.invoices.ListEvents(ctx, invoiceID, w.cfg.EventKeep)
	if err != nil {
		return nil, nil, err
	}
	return inv, events, nil
}

// GetInvoiceBySale devuelve la factura de una venta, o ErrNotFound.
func (w *InvoiceWorkflow) GetInvoiceBySale(ctx context.Context, saleID string) (*entity.Invoice, error) {
	inv, err := w.invoices.GetBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: la venta %s no tiene factura", domain.ErrNotFound, saleID)
	}
	return inv, nil
}

// event registra una entrada de bitácora. Una falla acá no aborta el ciclo.
func (w *InvoiceWorkflow) event(ctx context.Context, invoiceID, stage, msg string) {
	ev := &entity.InvoiceEvent{InvoiceID: invoiceID, Stage: stage, Message: msg, CreatedAt: w.now()}
	if err := w.invoices.AppendEvent(ctx, ev, w.cfg.EventKeep); err != nil {
		w.log.Warn().Str("invoice_id", invoiceID).Str("stage", stage).Err(err).Msg("no se pudo registrar el evento")
	}
}

// classifyReason mapea el error del intento a la razón persistible.
func classifyReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidInput):
		return entity.ErrorReasonConfiguration
	case errors.Is(err, domain.ErrAuthRejected):
		return entity.ErrorReasonAuthRejected
	case errors.Is(err, domain.ErrBusinessRejected):
		return entity.ErrorReasonRejected
	default:
		return entity.ErrorReasonUnavailable
	}
}

func formatObservations(obs []afipws.Observation) string {
	if len(obs) == 0 {
		return "rechazado sin observaciones"
	}
	parts := make([]string, 0, len(obs))
	for _, o := range obs {
		parts = append(parts, fmt.Sprintf("(%d) %s", o.Code, o.Msg))
	}
	return strings.Join(parts, "; ")
}

// lockTable locks en memoria por factura (guard local contra doble submit).
// Las entradas se cuentan por referencia y se descartan cuando el último
// tenedor las libera, para que la tabla no crezca con la vida del proceso.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*invoiceLock
}

type invoiceLock struct {
	sync.Mutex
	refs int
}

// acquire toma el lock de la factura, bloqueando si otro llamador lo tiene.
func (t *lockTable) acquire(id string) *invoiceLock {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &invoiceLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()
	l.Lock()
	return l
}

// release suelta el lock y borra la entrada cuando nadie más la referencia.
func (t *lockTable) release(id string, l *invoiceLock) {
	l.Unlock()
	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
	t.mu.Unlock()
}
