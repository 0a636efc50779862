package billing

import (
	"context"
	"errors"
	"time"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/pkg/logger"
)

// sweepBatchSize tope de facturas por pasada del barrido.
const sweepBatchSize = 100

// SweepResult resumen de una pasada del barrido.
type SweepResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RetryCoordinator barre las facturas pendientes de resolución y las
// reprocesa: PENDING nunca intentadas, ERROR por indisponibilidad (UNAVAILABLE)
// por debajo del tope de intentos y PROCESSING colgadas (crash a mitad de
// vuelo). Los rechazos de negocio/credenciales y los errores de configuración
// no se reintentan solos; igual que las que superan el tope, quedan en ERROR
// a la espera del operador.
type RetryCoordinator struct {
	invoices repository.InvoiceRepository
	workflow *InvoiceWorkflow
	cfg      WorkflowConfig
	log      *logger.Logger
	now      func() time.Time
}

func NewRetryCoordinator(
	invoices repository.InvoiceRepository,
	workflow *InvoiceWorkflow,
	cfg WorkflowConfig,
	log *logger.Logger,
) *RetryCoordinator {
	return &RetryCoordinator{
		invoices: invoices,
		workflow: workflow,
		cfg:      cfg,
		log:      log.Component("retry_coordinator"),
		now:      time.Now,
	}
}

// Sweep ejecuta una pasada. Pensado para invocarse desde un ticker interno o
// un cron externo; las pasadas concurrentes son inocuas gracias al guard de
// estado del workflow.
func (c *RetryCoordinator) Sweep(ctx context.Context) (*SweepResult, error) {
	staleBefore := c.now().Add(-c.cfg.StaleAfter)
	eligible, err := c.invoices.ListEligibleForRetry(ctx, c.cfg.MaxAttempts, staleBefore, sweepBatchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, inv := range eligible {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Processed++
		if _, err := c.workflow.ProcessInvoice(ctx, inv.ID); err != nil {
			// ErrConflict = otro proceso lo tomó mientras barríamos; no es falla.
			if errors.Is(err, domain.ErrConflict) {
				result.Processed--
				continue
			}
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	if result.Processed > 0 {
		c.log.Info().
			Int("processed", result.Processed).
			Int("succeeded", result.Succeeded).
			Int("failed", result.Failed).
			Msg("barrido de reintentos completado")
	}
	return result, nil
}

// Run dispara Sweep cada interval hasta que el contexto se cancele.
// Con interval <= 0 no hace nada (se asume cron externo).
func (c *RetryCoordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error().Err(err).Msg("barrido de reintentos fallido")
			}
		}
	}
}
