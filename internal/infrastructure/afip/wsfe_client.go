package afip

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
	pkgafip "github.com/tu-usuario/facturacion-pro/pkg/afip"
)

// SOAPWSFEClient implementa WSFEClient contra el WSFEv1 (service.asmx).
// Usa net/http de la stdlib; no requiere librerías SOAP de terceros.
type SOAPWSFEClient struct {
	url        string
	httpClient *http.Client
}

// NewSOAPWSFEClient construye el cliente para el entorno dado ("homo"|"prod")
// con un timeout de red generoso (60 s): el WSFE puede tardar varios segundos
// en responder bajo carga.
func NewSOAPWSFEClient(env string) *SOAPWSFEClient {
	_, wsfeURL := EndpointURLs(env)
	return &SOAPWSFEClient{
		url:        wsfeURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ── Estructuras SOAP de request ───────────────────────────────────────────────

type wsfeEnvelope struct {
	XMLName xml.Name `xml:"s:Envelope"`
	XmlnsS  string   `xml:"xmlns:s,attr"`
	Body    wsfeBody `xml:"s:Body"`
}

type wsfeBody struct {
	Content interface{}
}

func (b wsfeBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "s:Body"
	e.EncodeToken(start)
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type feAuthXML struct {
	Token string `xml:"Token"`
	Sign  string `xml:"Sign"`
	Cuit  string `xml:"Cuit"`
}

// feCompUltimoAutorizadoBody cuerpo para FECompUltimoAutorizado.
type feCompUltimoAutorizadoBody struct {
	XMLName  xml.Name  `xml:"FECompUltimoAutorizado"`
	Xmlns    string    `xml:"xmlns,attr"`
	Auth     feAuthXML `xml:"Auth"`
	PtoVta   int       `xml:"PtoVta"`
	CbteTipo int       `xml:"CbteTipo"`
}

// feCAESolicitarBody cuerpo para FECAESolicitar (un solo comprobante por request).
type feCAESolicitarBody struct {
	XMLName  xml.Name    `xml:"FECAESolicitar"`
	Xmlns    string      `xml:"xmlns,attr"`
	Auth     feAuthXML   `xml:"Auth"`
	FeCAEReq feCAEReqXML `xml:"FeCAEReq"`
}

type feCAEReqXML struct {
	FeCabReq feCabReqXML `xml:"FeCabReq"`
	FeDetReq feDetReqXML `xml:"FeDetReq"`
}

type feCabReqXML struct {
	CantReg  int `xml:"CantReg"`
	PtoVta   int `xml:"PtoVta"`
	CbteTipo int `xml:"CbteTipo"`
}

type feDetReqXML struct {
	Detail feCAEDetRequestXML `xml:"FECAEDetRequest"`
}

// feCAEDetRequestXML detalle del comprobante. Los importes viajan como string
// con exactamente dos decimales (FormatAmount).
type feCAEDetRequestXML struct {
	Concepto   int            `xml:"Concepto"` // 1 = Productos
	DocTipo    int            `xml:"DocTipo"`
	DocNro     string         `xml:"DocNro"`
	CbteDesde  int64          `xml:"CbteDesde"`
	CbteHasta  int64          `xml:"CbteHasta"`
	CbteFch    string         `xml:"CbteFch"` // AAAAMMDD
	ImpTotal   string         `xml:"ImpTotal"`
	ImpTotConc string         `xml:"ImpTotConc"`
	ImpNeto    string         `xml:"ImpNeto"`
	ImpOpEx    string         `xml:"ImpOpEx"`
	ImpTrib    string         `xml:"ImpTrib"`
	ImpIVA     string         `xml:"ImpIVA"`
	MonID      string         `xml:"MonId"`
	MonCotiz   string         `xml:"MonCotiz"`
	IVA        *feIVAArrayXML `xml:"Iva,omitempty"`
}

type feIVAArrayXML struct {
	Items []feAlicIvaXML `xml:"AlicIva"`
}

type feAlicIvaXML struct {
	ID      int    `xml:"Id"`
	BaseImp string `xml:"BaseImp"`
	Importe string `xml:"Importe"`
}

// ── Estructuras SOAP de respuesta ─────────────────────────────────────────────

type wsfeResponseEnvelope struct {
	Body wsfeResponseBody `xml:"Body"`
}

type wsfeResponseBody struct {
	UltimoResponse *feCompUltimoAutorizadoResponse `xml:"FECompUltimoAutorizadoResponse"`
	CAEResponse    *feCAESolicitarResponse         `xml:"FECAESolicitarResponse"`
	Fault          *soapFault                      `xml:"Fault"`
}

type feCompUltimoAutorizadoResponse struct {
	Result feCompUltimoAutorizadoResult `xml:"FECompUltimoAutorizadoResult"`
}

type feCompUltimoAutorizadoResult struct {
	PtoVta   int        `xml:"PtoVta"`
	CbteTipo int        `xml:"CbteTipo"`
	CbteNro  int64      `xml:"CbteNro"`
	Errors   []feErrXML `xml:"Errors>Err"`
}

type feCAESolicitarResponse struct {
	Result feCAESolicitarResult `xml:"FECAESolicitarResult"`
}

type feCAESolicitarResult struct {
	FeCabResp feCabRespXML         `xml:"FeCabResp"`
	Details   []feCAEDetResponseXML `xml:"FeDetResp>FECAEDetResponse"`
	Errors    []feErrXML            `xml:"Errors>Err"`
}

type feCabRespXML struct {
	Resultado string `xml:"Resultado"` // A = aprobado, R = rechazado, P = parcial
}

type feCAEDetResponseXML struct {
	CbteDesde     int64       `xml:"CbteDesde"`
	CbteHasta     int64       `xml:"CbteHasta"`
	Resultado     string      `xml:"Resultado"`
	CAE           string      `xml:"CAE"`
	CAEFchVto     string      `xml:"CAEFchVto"` // AAAAMMDD
	Observaciones []feObsXML  `xml:"Observaciones>Obs"`
}

type feObsXML struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

type feErrXML struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

// ── LastAuthorized ────────────────────────────────────────────────────────────

// LastAuthorized consulta FECompUltimoAutorizado. El valor devuelto + 1 es el
// próximo número a solicitar; nunca se confía en la secuencia local.
func (c *SOAPWSFEClient) LastAuthorized(ctx context.Context, auth FEAuth, ptoVta, cbteTipo int) (int64, error) {
	body := &feCompUltimoAutorizadoBody{
		Xmlns:    wsfeNS,
		Auth:     feAuthXML{Token: auth.Token, Sign: auth.Sign, Cuit: auth.CUIT},
		PtoVta:   ptoVta,
		CbteTipo: cbteTipo,
	}

	raw, err := c.call(ctx, wsfeNS+"FECompUltimoAutorizado", body)
	if err != nil {
		return 0, err
	}

	var envResp wsfeResponseEnvelope
	if err := xml.Unmarshal(raw, &envResp); err != nil {
		return 0, fmt.Errorf("wsfe: respuesta SOAP inválida: %w", domain.ErrServiceUnavailable)
	}
	if envResp.Body.Fault != nil {
		return 0, faultError(envResp.Body.Fault)
	}
	if envResp.Body.UltimoResponse == nil {
		return 0, fmt.Errorf("wsfe: respuesta vacía o inesperada: %w", domain.ErrServiceUnavailable)
	}
	result := envResp.Body.UltimoResponse.Result
	if err := classifyErrors(result.Errors); err != nil {
		return 0, err
	}
	return result.CbteNro, nil
}

// ── RequestCAE ────────────────────────────────────────────────────────────────

// RequestCAE envía FECAESolicitar para un único comprobante. El rechazo de
// negocio (Resultado R) se devuelve como CAEResult con observaciones; las
// fallas de red y de ticket se devuelven como errores clasificados.
func (c *SOAPWSFEClient) RequestCAE(ctx context.Context, auth FEAuth, req *CAERequest) (*CAEResult, error) {
	detail := feCAEDetRequestXML{
		Concepto:   1, // Productos
		DocTipo:    req.DocTipo,
		DocNro:     req.DocNro,
		CbteDesde:  req.CbteNro,
		CbteHasta:  req.CbteNro,
		CbteFch:    req.CbteFch.Format("20060102"),
		ImpTotal:   pkgafip.FormatAmount(req.ImpTotal),
		ImpTotConc: "0.00",
		ImpNeto:    pkgafip.FormatAmount(req.ImpNeto),
		ImpOpEx:    "0.00",
		ImpTrib:    "0.00",
		ImpIVA:     pkgafip.FormatAmount(req.ImpIVA),
		MonID:      "PES",
		MonCotiz:   "1.00",
	}
	if len(req.IVA) > 0 {
		arr := &feIVAArrayXML{}
		for _, item := range req.IVA {
			arr.Items = append(arr.Items, feAlicIvaXML{
				ID:      item.ID,
				BaseImp: pkgafip.FormatAmount(item.BaseImp),
				Importe: pkgafip.FormatAmount(item.Importe),
			})
		}
		detail.IVA = arr
	}

	body := &feCAESolicitarBody{
		Xmlns: wsfeNS,
		Auth:  feAuthXML{Token: auth.Token, Sign: auth.Sign, Cuit: auth.CUIT},
		FeCAEReq: feCAEReqXML{
			FeCabReq: feCabReqXML{CantReg: 1, PtoVta: req.PtoVta, CbteTipo: req.CbteTipo},
			FeDetReq: feDetReqXML{Detail: detail},
		},
	}

	raw, err := c.call(ctx, wsfeNS+"FECAESolicitar", body)
	if err != nil {
		return nil, err
	}
	return parseCAEResponse(raw)
}

// parseCAEResponse desempaqueta FECAESolicitarResult y clasifica el resultado.
func parseCAEResponse(raw []byte) (*CAEResult, error) {
	var envResp wsfeResponseEnvelope
	if err := xml.Unmarshal(raw, &envResp); err != nil {
		return nil, fmt.Errorf("wsfe: respuesta SOAP inválida: %w", domain.ErrServiceUnavailable)
	}
	if envResp.Body.Fault != nil {
		return nil, faultError(envResp.Body.Fault)
	}
	if envResp.Body.CAEResponse == nil {
		return nil, fmt.Errorf("wsfe: respuesta vacía o inesperada: %w", domain.ErrServiceUnavailable)
	}
	result := envResp.Body.CAEResponse.Result
	if err := classifyErrors(result.Errors); err != nil {
		return nil, err
	}
	if len(result.Details) == 0 {
		return nil, fmt.Errorf("wsfe: FECAESolicitarResult sin detalle: %w", domain.ErrServiceUnavailable)
	}
	det := result.Details[0]

	if det.Resultado != "A" {
		out := &CAEResult{Approved: false}
		for _, obs := range det.Observaciones {
			out.Observations = append(out.Observations, Observation{Code: obs.Code, Msg: obs.Msg})
		}
		return out, nil
	}

	due, err := time.Parse("20060102", det.CAEFchVto)
	if err != nil {
		return nil, fmt.Errorf("wsfe: CAEFchVto inválido %q: %w", det.CAEFchVto, domain.ErrServiceUnavailable)
	}
	return &CAEResult{Approved: true, CAE: det.CAE, CAEDue: due}, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// call serializa el envelope, hace el POST y devuelve el body crudo.
func (c *SOAPWSFEClient) call(ctx context.Context, soapAction string, content interface{}) ([]byte, error) {
	envelope := wsfeEnvelope{
		XmlnsS: soapEnvNS,
		Body:   wsfeBody{Content: content},
	}
	xmlPayload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("wsfe: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(xmlPayload))
	if err != nil {
		return nil, fmt.Errorf("wsfe: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wsfe: timeout o cancelación: %w", domain.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("wsfe: llamada HTTP fallida (%v): %w", err, domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("wsfe: leer respuesta: %w", domain.ErrServiceUnavailable)
	}
	return rawBody, nil
}

// classifyErrors mapea el array Errors del WSFE a errores de dominio.
// Códigos 600-699 son fallas de autenticación (token/sign/CUIT): el llamador
// debe renovar el ticket. El resto son rechazos de datos del request.
func classifyErrors(errs []feErrXML) error {
	if len(errs) == 0 {
		return nil
	}
	var msgs []string
	auth := false
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("[%d] %s", e.Code, e.Msg))
		if e.Code >= 600 && e.Code < 700 {
			auth = true
		}
	}
	joined := strings.Join(msgs, "; ")
	if auth {
		return fmt.Errorf("wsfe: %s: %w", joined, domain.ErrAuthRejected)
	}
	return fmt.Errorf("wsfe: %s: %w", joined, domain.ErrBusinessRejected)
}

// faultError un SOAP Fault del WSFE se trata como indisponibilidad del servicio.
func faultError(f *soapFault) error {
	return fmt.Errorf("wsfe: fault [%s] %s: %w", f.FaultCode, f.FaultString, domain.ErrServiceUnavailable)
}

// Asegurar que SOAPWSFEClient implementa WSFEClient.
var _ WSFEClient = (*SOAPWSFEClient)(nil)
