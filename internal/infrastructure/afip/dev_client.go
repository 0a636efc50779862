package afip

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DevClient simula WSAA y WSFE en memoria para el modo "dev": no llama a los
// WS de AFIP, autoriza todo y mantiene la numeración por punto de venta y
// tipo de comprobante. Solo para desarrollo local.
type DevClient struct {
	mu   sync.Mutex
	last map[string]int64
}

func NewDevClient() *DevClient {
	return &DevClient{last: make(map[string]int64)}
}

var (
	_ WSAAClient = (*DevClient)(nil)
	_ WSFEClient = (*DevClient)(nil)
)

// LoginCMS devuelve credenciales ficticias válidas por 12 horas.
func (d *DevClient) LoginCMS(ctx context.Context, cms []byte) (*LoginResult, error) {
	now := time.Now()
	return &LoginResult{
		Token:          fmt.Sprintf("dev-token-%d", now.Unix()),
		Sign:           "dev-sign",
		ExpirationTime: now.Add(12 * time.Hour),
	}, nil
}

// LastAuthorized devuelve el último número simulado para la serie.
func (d *DevClient) LastAuthorized(ctx context.Context, auth FEAuth, ptoVta, cbteTipo int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last[devSeriesKey(auth.CUIT, ptoVta, cbteTipo)], nil
}

// RequestCAE aprueba siempre, avanza la serie y devuelve un CAE ficticio.
func (d *DevClient) RequestCAE(ctx context.Context, auth FEAuth, req *CAERequest) (*CAEResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := devSeriesKey(auth.CUIT, req.PtoVta, req.CbteTipo)
	if req.CbteNro != d.last[key]+1 {
		return nil, fmt.Errorf("simulador dev: número %d fuera de secuencia (esperado %d)",
			req.CbteNro, d.last[key]+1)
	}
	d.last[key] = req.CbteNro
	return &CAEResult{
		Approved: true,
		CAE:      fmt.Sprintf("700%011d", req.CbteNro),
		CAEDue:   time.Now().AddDate(0, 0, 10),
	}, nil
}

func devSeriesKey(cuit string, ptoVta, cbteTipo int) string {
	return fmt.Sprintf("%s/%d/%d", cuit, ptoVta, cbteTipo)
}
