package afip

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
)

// Respuesta real (anonimizada) del WSAA de homologación: el
// loginTicketResponse viaja como XML escapado dentro de loginCmsReturn.
const wsaaLoginOK = `<?xml version="1.0" encoding="utf-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov">
      <loginCmsReturn>&lt;?xml version="1.0" encoding="UTF-8" standalone="yes"?&gt;
&lt;loginTicketResponse version="1.0"&gt;
  &lt;header&gt;
    &lt;source&gt;CN=wsaahomo, O=AFIP, C=AR&lt;/source&gt;
    &lt;destination&gt;SERIALNUMBER=CUIT 30500010912&lt;/destination&gt;
    &lt;uniqueId&gt;2914894189&lt;/uniqueId&gt;
    &lt;generationTime&gt;2026-08-28T10:00:00-03:00&lt;/generationTime&gt;
    &lt;expirationTime&gt;2026-08-28T22:00:00-03:00&lt;/expirationTime&gt;
  &lt;/header&gt;
  &lt;credentials&gt;
    &lt;token&gt;PD94bWwgdmVyc2lvbj0iMS4wIg==&lt;/token&gt;
    &lt;sign&gt;q9xC2ipk0a5XG0CLrbLX7g==&lt;/sign&gt;
  &lt;/credentials&gt;
&lt;/loginTicketResponse&gt;</loginCmsReturn>
    </loginCmsResponse>
  </soapenv:Body>
</soapenv:Envelope>`

const wsaaFault = `<?xml version="1.0" encoding="utf-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <soapenv:Fault>
      <faultcode>cms.cert.untrusted</faultcode>
      <faultstring>Certificado no emitido por AC de confianza</faultstring>
    </soapenv:Fault>
  </soapenv:Body>
</soapenv:Envelope>`

func TestParseLoginResponse_Exitoso(t *testing.T) {
	result, err := parseLoginResponse([]byte(wsaaLoginOK))
	require.NoError(t, err)

	assert.Equal(t, "PD94bWwgdmVyc2lvbj0iMS4wIg==", result.Token)
	assert.Equal(t, "q9xC2ipk0a5XG0CLrbLX7g==", result.Sign)

	want, _ := time.Parse(time.RFC3339, "2026-08-28T22:00:00-03:00")
	assert.True(t, result.ExpirationTime.Equal(want),
		"expirationTime debe parsearse como RFC3339 con zona horaria")
}

func TestParseLoginResponse_Fault_EsAuthRejected(t *testing.T) {
	_, err := parseLoginResponse([]byte(wsaaFault))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
	assert.Contains(t, err.Error(), "cms.cert.untrusted")
}

func TestParseLoginResponse_BodyCorrupto_EsServiceUnavailable(t *testing.T) {
	_, err := parseLoginResponse([]byte("<html>502 Bad Gateway</html>"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestParseLoginResponse_RespuestaVacia_EsServiceUnavailable(t *testing.T) {
	empty := `<Envelope xmlns="http://schemas.xmlsoap.org/soap/envelope/"><Body></Body></Envelope>`
	_, err := parseLoginResponse([]byte(empty))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestBuildTRA_EstructuraYVentana(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tra, err := BuildTRA(ServiceWSFE, now, 12*time.Hour)
	require.NoError(t, err)

	s := string(tra)
	assert.Contains(t, s, "<loginTicketRequest")
	assert.Contains(t, s, "<service>wsfe</service>")
	// generationTime arranca 5 minutos en el pasado (tolerancia de clock skew)
	assert.Contains(t, s, "2026-08-28T11:55:00Z")
	assert.Contains(t, s, "2026-08-29T00:00:00Z")
	// uniqueId = unix timestamp de la generación
	assert.Contains(t, s, "<uniqueId>")
}

func TestBuildTRA_ServicioVacio(t *testing.T) {
	_, err := BuildTRA("", time.Now(), time.Hour)
	assert.Error(t, err)
}

func TestBuildTRA_SinDeclaracionXMLTrasC14N(t *testing.T) {
	tra, err := BuildTRA(ServiceWSFE, time.Now(), time.Hour)
	require.NoError(t, err)
	// C14N elimina la declaración <?xml ...?>
	assert.False(t, strings.HasPrefix(string(tra), "<?xml"),
		"el TRA canonicalizado no debe llevar declaración XML")
}
