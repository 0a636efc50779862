package afip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
)

const wsfeCAEAprobado = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/">
      <FECAESolicitarResult>
        <FeCabResp>
          <Cuit>30500010912</Cuit>
          <PtoVta>3</PtoVta>
          <CbteTipo>6</CbteTipo>
          <Resultado>A</Resultado>
        </FeCabResp>
        <FeDetResp>
          <FECAEDetResponse>
            <Concepto>1</Concepto>
            <DocTipo>99</DocTipo>
            <DocNro>0</DocNro>
            <CbteDesde>1042</CbteDesde>
            <CbteHasta>1042</CbteHasta>
            <Resultado>A</Resultado>
            <CAE>76123456789012</CAE>
            <CAEFchVto>20260907</CAEFchVto>
          </FECAEDetResponse>
        </FeDetResp>
      </FECAESolicitarResult>
    </FECAESolicitarResponse>
  </soap:Body>
</soap:Envelope>`

const wsfeCAERechazado = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/">
      <FECAESolicitarResult>
        <FeCabResp>
          <Resultado>R</Resultado>
        </FeCabResp>
        <FeDetResp>
          <FECAEDetResponse>
            <CbteDesde>1042</CbteDesde>
            <CbteHasta>1042</CbteHasta>
            <Resultado>R</Resultado>
            <CAE></CAE>
            <CAEFchVto></CAEFchVto>
            <Observaciones>
              <Obs>
                <Code>10016</Code>
                <Msg>El numero de comprobante no es correlativo</Msg>
              </Obs>
            </Observaciones>
          </FECAEDetResponse>
        </FeDetResp>
      </FECAESolicitarResult>
    </FECAESolicitarResponse>
  </soap:Body>
</soap:Envelope>`

const wsfeErrorTicket = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/">
      <FECAESolicitarResult>
        <Errors>
          <Err>
            <Code>600</Code>
            <Msg>No se corresponden token con firma</Msg>
          </Err>
        </Errors>
      </FECAESolicitarResult>
    </FECAESolicitarResponse>
  </soap:Body>
</soap:Envelope>`

func TestParseCAEResponse_Aprobado(t *testing.T) {
	result, err := parseCAEResponse([]byte(wsfeCAEAprobado))
	require.NoError(t, err)

	assert.True(t, result.Approved)
	assert.Equal(t, "76123456789012", result.CAE)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), result.CAEDue)
	assert.Empty(t, result.Observations)
}

func TestParseCAEResponse_Rechazado_NoEsError(t *testing.T) {
	// El rechazo de negocio es un resultado, no un error: el llamador decide
	// la transición de la factura con las observaciones.
	result, err := parseCAEResponse([]byte(wsfeCAERechazado))
	require.NoError(t, err)

	assert.False(t, result.Approved)
	assert.Empty(t, result.CAE)
	require.Len(t, result.Observations, 1)
	assert.Equal(t, 10016, result.Observations[0].Code)
	assert.Contains(t, result.Observations[0].Msg, "correlativo")
}

func TestParseCAEResponse_ErrorDeTicket_EsAuthRejected(t *testing.T) {
	// Códigos 600-699 = credenciales: el ticket debe renovarse.
	_, err := parseCAEResponse([]byte(wsfeErrorTicket))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
	assert.Contains(t, err.Error(), "600")
}

func TestClassifyErrors(t *testing.T) {
	assert.NoError(t, classifyErrors(nil))

	err := classifyErrors([]feErrXML{{Code: 601, Msg: "CUIT no autorizado"}})
	assert.ErrorIs(t, err, domain.ErrAuthRejected)

	err = classifyErrors([]feErrXML{{Code: 1000, Msg: "Campo DocNro invalido"}})
	assert.ErrorIs(t, err, domain.ErrBusinessRejected)

	// Mezcla: con al menos un código de auth gana la clasificación de auth
	err = classifyErrors([]feErrXML{
		{Code: 1000, Msg: "Campo invalido"},
		{Code: 602, Msg: "Token vencido"},
	})
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
}

func TestParseCAEResponse_BodyCorrupto_EsServiceUnavailable(t *testing.T) {
	_, err := parseCAEResponse([]byte("<html>503</html>"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}
