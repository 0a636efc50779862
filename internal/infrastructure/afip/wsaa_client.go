package afip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
)

// SOAPWSAAClient implementa WSAAClient contra el WS SOAP del WSAA.
// Usa net/http de la stdlib; no requiere librerías SOAP de terceros.
type SOAPWSAAClient struct {
	url        string
	httpClient *http.Client
}

// NewSOAPWSAAClient construye el cliente para el entorno dado ("homo"|"prod")
// con un timeout de red acotado (el WSAA suele responder en segundos, pero
// penaliza los reintentos agresivos).
func NewSOAPWSAAClient(env string) *SOAPWSAAClient {
	wsaaURL, _ := EndpointURLs(env)
	return &SOAPWSAAClient{
		url:        wsaaURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type wsaaEnvelope struct {
	XMLName xml.Name     `xml:"soapenv:Envelope"`
	XmlnsS  string       `xml:"xmlns:soapenv,attr"`
	XmlnsW  string       `xml:"xmlns:wsaa,attr"`
	Body    wsaaBody     `xml:"soapenv:Body"`
}

type wsaaBody struct {
	LoginCms loginCmsBody `xml:"wsaa:loginCms"`
}

type loginCmsBody struct {
	In0 string `xml:"wsaa:in0"` // CMS del TRA en Base64
}

type wsaaResponseEnvelope struct {
	Body wsaaResponseBody `xml:"Body"`
}

type wsaaResponseBody struct {
	LoginCmsResponse *loginCmsResponse `xml:"loginCmsResponse"`
	Fault            *soapFault        `xml:"Fault"`
}

type loginCmsResponse struct {
	Return string `xml:"loginCmsReturn"` // loginTicketResponse XML escapado
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── LoginCMS ──────────────────────────────────────────────────────────────────

// LoginCMS envía el CMS firmado al WSAA y devuelve token, sign y vencimiento.
// Clasificación: fallas de red/timeout → domain.ErrServiceUnavailable;
// SOAP Fault (CMS inválido, certificado no confiable, TRA vencido) →
// domain.ErrAuthRejected.
func (c *SOAPWSAAClient) LoginCMS(ctx context.Context, cms []byte) (*LoginResult, error) {
	envelope := wsaaEnvelope{
		XmlnsS: soapEnvNS,
		XmlnsW: "http://wsaa.view.sua.dvadac.desein.afip.gov",
		Body: wsaaBody{
			LoginCms: loginCmsBody{In0: base64.StdEncoding.EncodeToString(cms)},
		},
	}

	xmlPayload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("wsaa: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(xmlPayload))
	if err != nil {
		return nil, fmt.Errorf("wsaa: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wsaa: timeout o cancelación: %w", domain.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("wsaa: llamada HTTP fallida (%v): %w", err, domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("wsaa: leer respuesta: %w", domain.ErrServiceUnavailable)
	}

	return parseLoginResponse(rawBody)
}

// parseLoginResponse desempaqueta el envelope y el loginTicketResponse interno.
func parseLoginResponse(rawBody []byte) (*LoginResult, error) {
	var envResp wsaaResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, fmt.Errorf("wsaa: respuesta SOAP inválida: %w", domain.ErrServiceUnavailable)
	}

	// SOAP Fault: CMS mal firmado, certificado no autorizado, TRA fuera de
	// ventana, o login concurrente penalizado (coe.alreadyAuthenticated).
	if envResp.Body.Fault != nil {
		return nil, fmt.Errorf("wsaa: fault [%s] %s: %w",
			envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString, domain.ErrAuthRejected)
	}
	if envResp.Body.LoginCmsResponse == nil || envResp.Body.LoginCmsResponse.Return == "" {
		return nil, fmt.Errorf("wsaa: respuesta vacía o inesperada: %w", domain.ErrServiceUnavailable)
	}

	// El loginTicketResponse viene como XML escapado dentro de loginCmsReturn;
	// encoding/xml ya lo des-escapó al extraer el string.
	doc := etree.NewDocument()
	if err := doc.ReadFromString(envResp.Body.LoginCmsResponse.Return); err != nil {
		return nil, fmt.Errorf("wsaa: parsear loginTicketResponse: %w", domain.ErrServiceUnavailable)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("wsaa: loginTicketResponse sin raíz: %w", domain.ErrServiceUnavailable)
	}

	token := findText(root, "credentials", "token")
	sign := findText(root, "credentials", "sign")
	expiration := findText(root, "header", "expirationTime")
	if token == "" || sign == "" || expiration == "" {
		return nil, fmt.Errorf("wsaa: loginTicketResponse incompleto: %w", domain.ErrServiceUnavailable)
	}

	expTime, err := time.Parse(time.RFC3339, expiration)
	if err != nil {
		return nil, fmt.Errorf("wsaa: expirationTime inválido %q: %w", expiration, domain.ErrServiceUnavailable)
	}

	return &LoginResult{Token: token, Sign: sign, ExpirationTime: expTime}, nil
}

func findText(root *etree.Element, path ...string) string {
	el := root
	for _, tag := range path {
		el = el.FindElement(tag)
		if el == nil {
			return ""
		}
	}
	return el.Text()
}

// Asegurar que SOAPWSAAClient implementa WSAAClient.
var _ WSAAClient = (*SOAPWSAAClient)(nil)
