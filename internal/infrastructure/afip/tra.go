package afip

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

// ServiceWSFE nombre del servicio destino que se declara en el TRA.
const ServiceWSFE = "wsfe"

// BuildTRA construye el loginTicketRequest (TRA) que se firma y envía al WSAA.
// La ventana de validez arranca unos minutos en el pasado para tolerar clock
// skew contra el servidor de AFIP.
func BuildTRA(service string, now time.Time, ttl time.Duration) ([]byte, error) {
	if service == "" {
		return nil, fmt.Errorf("afip: servicio del TRA vacío")
	}
	gen := now.Add(-5 * time.Minute)
	exp := now.Add(ttl)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", "1.0")

	header := root.CreateElement("header")
	header.CreateElement("uniqueId").SetText(fmt.Sprintf("%d", now.Unix()))
	header.CreateElement("generationTime").SetText(gen.Format(time.RFC3339))
	header.CreateElement("expirationTime").SetText(exp.Format(time.RFC3339))

	root.CreateElement("service").SetText(service)

	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("afip: serializar TRA: %w", err)
	}
	return canonicalizeTRA(raw)
}

// canonicalizeTRA aplica C14N al TRA antes de firmarlo. Si la
// canonicalización falla se usa el XML tal cual (mismo criterio best-effort
// que la firma de documentos).
func canonicalizeTRA(raw []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	canonical, err := c14n.Canonicalize(dec)
	if err != nil {
		return raw, nil
	}
	return canonical, nil
}
