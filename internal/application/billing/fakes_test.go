package billing

// Dobles de test en memoria para el núcleo de facturación. Implementan los
// puertos de dominio con mapas protegidos por mutex; devuelven copias para
// que los tests concurrentes no compartan punteros con el "repositorio".

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	afipws "github.com/tu-usuario/facturacion-pro/internal/infrastructure/afip"
	"github.com/tu-usuario/facturacion-pro/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "development", Level: "error"})
}

// ── fakeInvoiceRepo ───────────────────────────────────────────────────────────

type fakeInvoiceRepo struct {
	mu     sync.Mutex
	byID   map[string]*entity.Invoice
	bySale map[string]string
	events map[string][]*entity.InvoiceEvent
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{
		byID:   make(map[string]*entity.Invoice),
		bySale: make(map[string]string),
		events: make(map[string][]*entity.InvoiceEvent),
	}
}

func copyInvoice(inv *entity.Invoice) *entity.Invoice {
	cp := *inv
	return &cp
}

func (r *fakeInvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.bySale[inv.SaleID]; dup {
		return domain.ErrDuplicate
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	r.byID[inv.ID] = copyInvoice(inv)
	r.bySale[inv.SaleID] = inv.ID
	return nil
}

func (r *fakeInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return copyInvoice(inv), nil
}

func (r *fakeInvoiceRepo) GetBySaleID(ctx context.Context, saleID string) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySale[saleID]
	if !ok {
		return nil, nil
	}
	return copyInvoice(r.byID[id]), nil
}

func (r *fakeInvoiceRepo) CompareAndSetStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if inv.Status == f {
			inv.Status = to
			inv.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeInvoiceRepo) Update(ctx context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inv.ID]; !ok {
		return fmt.Errorf("factura %s inexistente", inv.ID)
	}
	r.byID[inv.ID] = copyInvoice(inv)
	return nil
}

func (r *fakeInvoiceRepo) ListEligibleForRetry(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range r.byID {
		eligible := inv.Status == entity.InvoiceStatusPending ||
			(inv.Status == entity.InvoiceStatusError && inv.Attempts < maxAttempts &&
				inv.LastErrorReason == entity.ErrorReasonUnavailable) ||
			(inv.Status == entity.InvoiceStatusProcessing && inv.UpdatedAt.Before(staleBefore))
		if eligible && len(out) < limit {
			out = append(out, copyInvoice(inv))
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) AppendEvent(ctx context.Context, ev *entity.InvoiceEvent, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.events[ev.InvoiceID] = append(r.events[ev.InvoiceID], &cp)
	if n := len(r.events[ev.InvoiceID]); n > keep {
		r.events[ev.InvoiceID] = r.events[ev.InvoiceID][n-keep:]
	}
	return nil
}

func (r *fakeInvoiceRepo) ListEvents(ctx context.Context, invoiceID string, limit int) ([]*entity.InvoiceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[invoiceID]
	var out []*entity.InvoiceEvent
	for i := len(evs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *evs[i]
		out = append(out, &cp)
	}
	return out, nil
}

var _ repository.InvoiceRepository = (*fakeInvoiceRepo)(nil)

// ── fakeTxRunner ──────────────────────────────────────────────────────────────

type fakeTxRunner struct {
	invoices repository.InvoiceRepository
}

func (r *fakeTxRunner) RunBilling(ctx context.Context, fn func(invoices repository.InvoiceRepository) error) error {
	return fn(r.invoices)
}

// ── fakeSaleRepo ──────────────────────────────────────────────────────────────

type fakeSaleRepo struct {
	sales map[string]*entity.Sale
}

func (r *fakeSaleRepo) GetByID(ctx context.Context, id string) (*entity.Sale, error) {
	return r.sales[id], nil
}

// ── fakeConfigRepo ────────────────────────────────────────────────────────────

type fakeConfigRepo struct {
	mu      sync.Mutex
	configs []*entity.BranchFiscalConfig
}

func (r *fakeConfigRepo) Create(ctx context.Context, cfg *entity.BranchFiscalConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.BranchID == cfg.BranchID && c.IsActive && cfg.IsActive {
			return domain.ErrDuplicate
		}
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cp := *cfg
	r.configs = append(r.configs, &cp)
	return nil
}

func (r *fakeConfigRepo) GetActiveByBranch(ctx context.Context, branchID string) (*entity.BranchFiscalConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.BranchID == branchID && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeConfigRepo) List(ctx context.Context) ([]*entity.BranchFiscalConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.BranchFiscalConfig, 0, len(r.configs))
	for _, c := range r.configs {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

var _ repository.BranchConfigRepository = (*fakeConfigRepo)(nil)

// ── fakeTicketRepo / fakeWSAA / stubSigner ────────────────────────────────────

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*entity.AuthTicket
	gets    int
	upserts int
	deletes int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*entity.AuthTicket)}
}

func (r *fakeTicketRepo) Get(ctx context.Context, cuit string) (*entity.AuthTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	t, ok := r.tickets[cuit]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTicketRepo) Upsert(ctx context.Context, ticket *entity.AuthTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	cp := *ticket
	r.tickets[ticket.CUIT] = &cp
	return nil
}

func (r *fakeTicketRepo) Delete(ctx context.Context, cuit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.tickets, cuit)
	return nil
}

var _ repository.TicketRepository = (*fakeTicketRepo)(nil)

// fakeWSAA cuenta logins y devuelve credenciales con vencimiento fijo.
type fakeWSAA struct {
	mu     sync.Mutex
	logins int
	delay  time.Duration
	err    error
	exp    time.Time
}

func (w *fakeWSAA) LoginCMS(ctx context.Context, cms []byte) (*afipws.LoginResult, error) {
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logins++
	if w.err != nil {
		return nil, w.err
	}
	return &afipws.LoginResult{
		Token:          fmt.Sprintf("token-%d", w.logins),
		Sign:           "sign",
		ExpirationTime: w.exp,
	}, nil
}

func (w *fakeWSAA) loginCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logins
}

// stubSigner evita la criptografía real en los tests del manager.
type stubSigner struct{ err error }

func (s *stubSigner) Sign(tra []byte, cert tls.Certificate) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("cms-firmado"), nil
}

// ── stubTicketSource / fakeWSFE ───────────────────────────────────────────────

type stubTicketSource struct {
	mu          sync.Mutex
	ticket      *entity.AuthTicket
	err         error
	invalidated int
	getCount    int
}

func (s *stubTicketSource) GetTicket(ctx context.Context, cuit string) (*entity.AuthTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCount++
	if s.err != nil {
		return nil, s.err
	}
	return s.ticket, nil
}

func (s *stubTicketSource) Invalidate(ctx context.Context, cuit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
	return nil
}

var _ TicketSource = (*stubTicketSource)(nil)

// fakeWSFE simula la numeración del WS y el resultado de FECAESolicitar.
// approveButFail registra el comprobante como autorizado pero devuelve error,
// simulando un timeout después de que AFIP ya lo tomó.
type fakeWSFE struct {
	mu             sync.Mutex
	last           int64
	lastErr        error
	caeErr         error
	approveButFail bool
	authRejectOnce bool
	reject         bool
	obs            []afipws.Observation
	lastCalls      int
	caeCalls       int
	lastRequest    *afipws.CAERequest
}

func (w *fakeWSFE) LastAuthorized(ctx context.Context, auth afipws.FEAuth, ptoVta, cbteTipo int) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastCalls++
	if w.authRejectOnce {
		w.authRejectOnce = false
		return 0, fmt.Errorf("wsfe: 600 token invalido: %w", domain.ErrAuthRejected)
	}
	if w.lastErr != nil {
		return 0, w.lastErr
	}
	return w.last, nil
}

func (w *fakeWSFE) RequestCAE(ctx context.Context, auth afipws.FEAuth, req *afipws.CAERequest) (*afipws.CAEResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.caeCalls++
	cp := *req
	w.lastRequest = &cp
	if w.caeErr != nil {
		err := w.caeErr
		w.caeErr = nil
		if w.approveButFail {
			w.last = req.CbteNro
			w.approveButFail = false
		}
		return nil, err
	}
	if w.reject {
		return &afipws.CAEResult{Approved: false, Observations: w.obs}, nil
	}
	w.last = req.CbteNro
	return &afipws.CAEResult{
		Approved: true,
		CAE:      fmt.Sprintf("750%011d", req.CbteNro),
		CAEDue:   time.Now().AddDate(0, 0, 10),
	}, nil
}

var (
	_ afipws.WSAAClient = (*fakeWSAA)(nil)
	_ afipws.WSFEClient = (*fakeWSFE)(nil)
)
