// Package afip contiene catálogos y validaciones alineados a las tablas del
// WSFEv1 (RG 4291 AFIP, Argentina): tipos de comprobante, tipos de documento
// y alícuotas de IVA.
package afip

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Tipos de comprobante (tabla FECompTipos del WSFEv1).
// La letra determina los datos exigibles del receptor: A exige CUIT de
// responsable inscripto, B admite consumidor final, C la emiten monotributistas.
// =============================================================================

const (
	LetterA = "A"
	LetterB = "B"
	LetterC = "C"

	CbteTipoFacturaA = 1  // Factura A
	CbteTipoFacturaB = 6  // Factura B
	CbteTipoFacturaC = 11 // Factura C
)

// CbteTipoForLetter mapea la letra del comprobante al código WSFE.
func CbteTipoForLetter(letter string) (int, error) {
	switch letter {
	case LetterA:
		return CbteTipoFacturaA, nil
	case LetterB:
		return CbteTipoFacturaB, nil
	case LetterC:
		return CbteTipoFacturaC, nil
	}
	return 0, fmt.Errorf("afip: letra de comprobante desconocida %q", letter)
}

// =============================================================================
// Tipos de documento del receptor (tabla FEParamGetTiposDoc).
// =============================================================================

const (
	DocTipoCUIT           = 80 // CUIT
	DocTipoDNI            = 96 // DNI
	DocTipoConsumidorFinal = 99 // Consumidor final (DocNro 0)
)

// =============================================================================
// Alícuotas de IVA (tabla FEParamGetTiposIva). El id viaja en AlicIva.Id;
// los conceptos exentos no llevan alícuota y se informan en ImpOpEx.
// =============================================================================

const (
	IVAId0    = 3 // 0%
	IVAId10_5 = 4 // 10,5%
	IVAId21   = 5 // 21%
	IVAId27   = 6 // 27%
)

// ivaRates alícuota por id, como fracción decimal exacta.
var ivaRates = map[int]decimal.Decimal{
	IVAId0:    decimal.Zero,
	IVAId10_5: decimal.RequireFromString("0.105"),
	IVAId21:   decimal.RequireFromString("0.21"),
	IVAId27:   decimal.RequireFromString("0.27"),
}

// IVARate devuelve la alícuota (fracción) para un id de IVA del WSFE.
func IVARate(id int) (decimal.Decimal, error) {
	rate, ok := ivaRates[id]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("afip: id de alícuota IVA desconocido %d", id)
	}
	return rate, nil
}

// ValidIVAIds ids de alícuota aceptados por el WSFE para este emisor.
var ValidIVAIds = map[int]bool{
	IVAId0: true, IVAId10_5: true, IVAId21: true, IVAId27: true,
}

// FormatAmount formatea un importe monetario como lo exige el WSFE:
// exactamente dos decimales, punto como separador.
func FormatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// DetermineLetter decide la letra del comprobante.
// Emisor monotributista emite siempre C. Receptor con CUIT → A; sin documento
// o con DNI → B (consumidor final).
func DetermineLetter(issuerMonotributo bool, buyerDocTipo int) string {
	if issuerMonotributo {
		return LetterC
	}
	if buyerDocTipo == DocTipoCUIT {
		return LetterA
	}
	return LetterB
}
