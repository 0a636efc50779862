package billing

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/internal/infrastructure/afip"
	"github.com/tu-usuario/facturacion-pro/pkg/logger"
)

// traTTL validez que se solicita para el ticket en el TRA. El WSAA decide la
// vigencia real; la que manda es la expirationTime de la respuesta.
const traTTL = 12 * time.Hour

// TicketManager administra el ticket de acceso WSAA por CUIT. El ticket
// vigente se sirve desde la DB; la renovación colapsa llamadas concurrentes
// con singleflight para que N facturas simultáneas generen un solo login.
type TicketManager struct {
	tickets repository.TicketRepository
	wsaa    afip.WSAAClient
	signer  TRASigner
	cert    tls.Certificate
	margin  time.Duration // Margen de seguridad antes del vencimiento
	log     *logger.Logger

	group singleflight.Group
	now   func() time.Time
}

func NewTicketManager(
	tickets repository.TicketRepository,
	wsaa afip.WSAAClient,
	signer TRASigner,
	cert tls.Certificate,
	margin time.Duration,
	log *logger.Logger,
) *TicketManager {
	return &TicketManager{
		tickets: tickets,
		wsaa:    wsaa,
		signer:  signer,
		cert:    cert,
		margin:  margin,
		log:     log.Component("ticket_manager"),
		now:     time.Now,
	}
}

// GetTicket devuelve un ticket vigente para el CUIT, renovándolo si está
// vencido o dentro del margen de seguridad. Seguro para uso concurrente.
func (m *TicketManager) GetTicket(ctx context.Context, cuit string) (*entity.AuthTicket, error) {
	ticket, err := m.tickets.Get(ctx, cuit)
	if err != nil {
		return nil, fmt.Errorf("leer ticket almacenado: %w", err)
	}
	if ticket != nil && ticket.ValidFor(m.margin, m.now()) {
		return ticket, nil
	}

	// Renovación colapsada por CUIT: los llamadores concurrentes esperan el
	// mismo login en vez de disparar N.
	v, err, _ := m.group.Do(cuit, func() (any, error) {
		return m.renew(ctx, cuit)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.AuthTicket), nil
}

// Invalidate descarta el ticket almacenado del CUIT. Se usa cuando el WSFE
// rechaza credenciales que localmente todavía no vencieron (p.ej. un login
// concurrente desde otro host las invalidó); el próximo GetTicket renueva.
func (m *TicketManager) Invalidate(ctx context.Context, cuit string) error {
	if err := m.tickets.Delete(ctx, cuit); err != nil {
		return fmt.Errorf("descartar ticket: %w", err)
	}
	m.log.Warn().Str("cuit", cuit).Msg("ticket WSAA descartado por rechazo del WS")
	return nil
}

func (m *TicketManager) renew(ctx context.Context, cuit string) (*entity.AuthTicket, error) {
	// Releer dentro del vuelo: otro proceso pudo renovar mientras esperábamos.
	if ticket, err := m.tickets.Get(ctx, cuit); err == nil &&
		ticket != nil && ticket.ValidFor(m.margin, m.now()) {
		return ticket, nil
	}

	now := m.now()
	tra, err := afip.BuildTRA(afip.ServiceWSFE, now, traTTL)
	if err != nil {
		return nil, err
	}
	cms, err := m.signer.Sign(tra, m.cert)
	if err != nil {
		return nil, fmt.Errorf("firmar TRA: %w", err)
	}

	m.log.Info().Str("cuit", cuit).Msg("renovando ticket WSAA")
	result, err := m.wsaa.LoginCMS(ctx, cms)
	if err != nil {
		return nil, err
	}

	ticket := &entity.AuthTicket{
		CUIT:           cuit,
		Token:          result.Token,
		Sign:           result.Sign,
		ExpirationTime: result.ExpirationTime,
		ObtainedAt:     now,
	}
	if err := m.tickets.Upsert(ctx, ticket); err != nil {
		return nil, fmt.Errorf("persistir ticket: %w", err)
	}
	m.log.Info().
		Str("cuit", cuit).
		Time("expira", ticket.ExpirationTime).
		Msg("ticket WSAA renovado")
	return ticket, nil
}
