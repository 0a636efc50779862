// Package afip implementa los clientes de los web services de AFIP:
// WSAA (autenticación por ticket) y WSFEv1 (autorización de comprobantes).
package afip

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// EnvHomo es el identificador del ambiente de homologación AFIP.
	EnvHomo = "homo"
	// EnvProd es el identificador del ambiente de producción AFIP.
	EnvProd = "prod"
	// EnvDev es el identificador local: no llama a los WS AFIP.
	EnvDev = "dev"

	wsaaURLHomo = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	wsaaURLProd = "https://wsaa.afip.gov.ar/ws/services/LoginCms"

	wsfeURLHomo = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	wsfeURLProd = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"

	soapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"
	wsfeNS    = "http://ar.gov.afip.dif.FEV1/"
)

// ── Resultados tipados ─────────────────────────────────────────────────────────

// LoginResult credenciales devueltas por el WSAA. Token y Sign son opacos y
// se almacenan verbatim; ExpirationTime es absoluto.
type LoginResult struct {
	Token          string
	Sign           string
	ExpirationTime time.Time
}

// FEAuth credenciales que viajan en cada llamada WSFE.
type FEAuth struct {
	Token string
	Sign  string
	CUIT  string // CUIT del emisor, solo dígitos
}

// Observation motivo de rechazo informado por AFIP (código + texto).
type Observation struct {
	Code int
	Msg  string
}

// CAEResult resultado de FECAESolicitar como variante etiquetada: o bien
// Approved con CAE y vencimiento, o bien rechazo con observaciones.
type CAEResult struct {
	Approved     bool
	CAE          string    // Vacío si no fue aprobado
	CAEDue       time.Time // Vencimiento del CAE
	Observations []Observation
}

// IVAItem alícuota de IVA del detalle (AlicIva del WSFE).
type IVAItem struct {
	ID      int             // Id de alícuota (3, 4, 5, 6)
	BaseImp decimal.Decimal // Base imponible
	Importe decimal.Decimal // IVA liquidado sobre esa base
}

// CAERequest payload de un comprobante para FECAESolicitar. El número
// (CbteNro) lo fija el llamador con el valor de FECompUltimoAutorizado + 1:
// solo el WS es autoritativo para la secuencia.
type CAERequest struct {
	PtoVta   int
	CbteTipo int
	CbteNro  int64
	CbteFch  time.Time // Fecha del comprobante (viaja como AAAAMMDD)
	DocTipo  int
	DocNro   string // "0" para consumidor final
	ImpNeto  decimal.Decimal
	ImpIVA   decimal.Decimal
	ImpTotal decimal.Decimal
	IVA      []IVAItem
}

// ── Puertos (interfaces) ───────────────────────────────────────────────────────

// WSAAClient puerto de salida hacia el servicio de autenticación.
// cms es el TRA firmado en CMS/PKCS#7 (DER, sin base64).
type WSAAClient interface {
	LoginCMS(ctx context.Context, cms []byte) (*LoginResult, error)
}

// WSFEClient puerto de salida hacia el servicio de facturación electrónica.
type WSFEClient interface {
	// LastAuthorized consulta el último número autorizado para el punto de
	// venta y tipo de comprobante. El siguiente número es el devuelto + 1.
	LastAuthorized(ctx context.Context, auth FEAuth, ptoVta, cbteTipo int) (int64, error)

	// RequestCAE solicita el CAE de un comprobante. Un rechazo de negocio se
	// devuelve como CAEResult{Approved: false} con observaciones, no como error;
	// los errores clasificados (red, ticket) sí se devuelven como error.
	RequestCAE(ctx context.Context, auth FEAuth, req *CAERequest) (*CAEResult, error)
}

// EndpointURLs devuelve las URLs de WSAA y WSFE para el entorno dado.
func EndpointURLs(env string) (wsaaURL, wsfeURL string) {
	if env == EnvProd {
		return wsaaURLProd, wsfeURLProd
	}
	return wsaaURLHomo, wsfeURLHomo
}
