package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	afipws "github.com/tu-usuario/facturacion-pro/internal/infrastructure/afip"
	"github.com/tu-usuario/facturacion-pro/pkg/afip"
)

// invoiceTotals desglose fiscal de una venta: neto, IVA y total, más las
// alícuotas agrupadas como las exige el WSFE (una entrada AlicIva por id).
type invoiceTotals struct {
	Net   decimal.Decimal
	Tax   decimal.Decimal
	Grand decimal.Decimal
	IVA   []afipws.IVAItem
}

// computeTotals liquida el IVA de la venta. Las líneas se agrupan por
// alícuota; el IVA se redondea a dos decimales por grupo, no por línea, para
// que la suma cierre contra ImpIVA.
func computeTotals(items []*entity.SaleItem) (*invoiceTotals, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: la venta no tiene líneas", domain.ErrInvalidInput)
	}

	bases := make(map[int]decimal.Decimal)
	for _, it := range items {
		net := it.NetAmount()
		if net.IsNegative() {
			return nil, fmt.Errorf("%w: línea %s con importe negativo", domain.ErrInvalidInput, it.ID)
		}
		if _, err := afip.IVARate(it.IVAId); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		bases[it.IVAId] = bases[it.IVAId].Add(net)
	}

	ids := make([]int, 0, len(bases))
	for id := range bases {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	t := &invoiceTotals{}
	for _, id := range ids {
		rate, _ := afip.IVARate(id)
		base := bases[id].Round(2)
		tax := base.Mul(rate).Round(2)
		t.Net = t.Net.Add(base)
		t.Tax = t.Tax.Add(tax)
		t.IVA = append(t.IVA, afipws.IVAItem{ID: id, BaseImp: base, Importe: tax})
	}
	t.Grand = t.Net.Add(t.Tax)
	return t, nil
}

// buyerDoc devuelve el tipo y número de documento del receptor tal como
// viajan al WSFE. Venta sin documento → consumidor final con DocNro 0.
func buyerDoc(sale *entity.Sale) (int, string) {
	if sale.BuyerDocNro == "" || sale.BuyerDocNro == "0" {
		return afip.DocTipoConsumidorFinal, "0"
	}
	return sale.BuyerDocTipo, sale.BuyerDocNro
}
