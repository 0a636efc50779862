package billing

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

const testCUIT = "30500010912"

func newTestManager(repo *fakeTicketRepo, wsaa *fakeWSAA) *TicketManager {
	return NewTicketManager(repo, wsaa, &stubSigner{}, tls.Certificate{},
		10*time.Minute, testLogger())
}

func TestGetTicket_TicketVigente_NoHaceLogin(t *testing.T) {
	repo := newFakeTicketRepo()
	repo.tickets[testCUIT] = &entity.AuthTicket{
		CUIT:           testCUIT,
		Token:          "vigente",
		Sign:           "sign",
		ExpirationTime: time.Now().Add(6 * time.Hour),
		ObtainedAt:     time.Now().Add(-6 * time.Hour),
	}
	wsaa := &fakeWSAA{exp: time.Now().Add(12 * time.Hour)}
	m := newTestManager(repo, wsaa)

	ticket, err := m.GetTicket(context.Background(), testCUIT)
	require.NoError(t, err)
	assert.Equal(t, "vigente", ticket.Token)
	assert.Equal(t, 0, wsaa.loginCount(), "ticket vigente no debe disparar login")
}

func TestGetTicket_TicketVencido_Renueva(t *testing.T) {
	repo := newFakeTicketRepo()
	repo.tickets[testCUIT] = &entity.AuthTicket{
		CUIT:           testCUIT,
		Token:          "vencido",
		ExpirationTime: time.Now().Add(-time.Hour),
	}
	wsaa := &fakeWSAA{exp: time.Now().Add(12 * time.Hour)}
	m := newTestManager(repo, wsaa)

	ticket, err := m.GetTicket(context.Background(), testCUIT)
	require.NoError(t, err)
	assert.Equal(t, "token-1", ticket.Token)
	assert.Equal(t, 1, wsaa.loginCount())
	assert.Equal(t, 1, repo.upserts, "el ticket nuevo debe persistirse")
}

func TestGetTicket_DentroDelMargen_Renueva(t *testing.T) {
	// Vence en 5 minutos con margen de 10: se considera vencido.
	repo := newFakeTicketRepo()
	repo.tickets[testCUIT] = &entity.AuthTicket{
		CUIT:           testCUIT,
		Token:          "por-vencer",
		ExpirationTime: time.Now().Add(5 * time.Minute),
	}
	wsaa := &fakeWSAA{exp: time.Now().Add(12 * time.Hour)}
	m := newTestManager(repo, wsaa)

	ticket, err := m.GetTicket(context.Background(), testCUIT)
	require.NoError(t, err)
	assert.NotEqual(t, "por-vencer", ticket.Token)
	assert.Equal(t, 1, wsaa.loginCount())
}

func TestGetTicket_ConcurrenciaColapsaEnUnSoloLogin(t *testing.T) {
	// N llamadores concurrentes sin ticket: el WSAA penaliza el login
	// repetido, así que debe salir exactamente UNA llamada.
	repo := newFakeTicketRepo()
	wsaa := &fakeWSAA{exp: time.Now().Add(12 * time.Hour), delay: 50 * time.Millisecond}
	m := newTestManager(repo, wsaa)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := m.GetTicket(context.Background(), testCUIT)
			errs[i] = err
			if ticket != nil {
				tokens[i] = ticket.Token
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "token-1", tokens[i], "todos deben recibir el mismo ticket")
	}
	assert.Equal(t, 1, wsaa.loginCount(), "la renovación concurrente debe colapsar en un login")
}

func TestGetTicket_LoginRechazado_PropagaAuthRejected(t *testing.T) {
	repo := newFakeTicketRepo()
	wsaa := &fakeWSAA{err: fmt.Errorf("wsaa: fault: %w", domain.ErrAuthRejected)}
	m := newTestManager(repo, wsaa)

	_, err := m.GetTicket(context.Background(), testCUIT)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
	assert.Equal(t, 0, repo.upserts, "un login fallido no debe persistir nada")
}

func TestInvalidate_DescartaElTicketYElProximoGetRenueva(t *testing.T) {
	// Un ticket puede morir antes de su vencimiento local (login concurrente
	// desde otro host). Invalidate lo descarta; el próximo GetTicket renueva
	// en vez de servir credenciales muertas por horas.
	repo := newFakeTicketRepo()
	repo.tickets[testCUIT] = &entity.AuthTicket{
		CUIT:           testCUIT,
		Token:          "muerto-pero-no-vencido",
		ExpirationTime: time.Now().Add(6 * time.Hour),
	}
	wsaa := &fakeWSAA{exp: time.Now().Add(12 * time.Hour)}
	m := newTestManager(repo, wsaa)

	require.NoError(t, m.Invalidate(context.Background(), testCUIT))
	assert.Equal(t, 1, repo.deletes)

	ticket, err := m.GetTicket(context.Background(), testCUIT)
	require.NoError(t, err)
	assert.Equal(t, "token-1", ticket.Token)
	assert.Equal(t, 1, wsaa.loginCount(), "tras invalidar, el siguiente acceso renueva")
}

func TestGetTicket_RenovadoPorOtroProceso_NoVuelveALoguear(t *testing.T) {
	// Simula otro nodo renovando entre el chequeo y el vuelo: el releído
	// dentro del singleflight encuentra el ticket fresco.
	repo := newFakeTicketRepo()
	repo.tickets[testCUIT] = &entity.AuthTicket{
		CUIT:           testCUIT,
		Token:          "vencido",
		ExpirationTime: time.Now().Add(-time.Hour),
	}
	wsaa := &fakeWSAA{exp: time.Now().Add(12 * time.Hour)}
	m := newTestManager(repo, wsaa)

	fresh := &entity.AuthTicket{
		CUIT:           testCUIT,
		Token:          "renovado-externamente",
		ExpirationTime: time.Now().Add(11 * time.Hour),
	}
	m.now = func() time.Time {
		// En cuanto se evalúa la vigencia, "aparece" el ticket renovado por
		// el otro proceso; el releído dentro del vuelo debe encontrarlo.
		repo.mu.Lock()
		repo.tickets[testCUIT] = fresh
		repo.mu.Unlock()
		return time.Now()
	}

	ticket, err := m.GetTicket(context.Background(), testCUIT)
	require.NoError(t, err)
	assert.Equal(t, "renovado-externamente", ticket.Token)
	assert.Equal(t, 0, wsaa.loginCount())
}
