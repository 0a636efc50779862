package entity

import "time"

// AuthTicket ticket de acceso WSAA para un CUIT. Token y Sign son opacos y se
// almacenan verbatim tal como los devuelve el WS. Un registro por CUIT: el
// más nuevo pisa al anterior. Solo el TicketManager lo crea o renueva.
type AuthTicket struct {
	CUIT           string
	Token          string
	Sign           string
	ExpirationTime time.Time
	ObtainedAt     time.Time
}

// ValidFor indica si el ticket sigue vigente con el margen de seguridad dado.
func (t *AuthTicket) ValidFor(margin time.Duration, now time.Time) bool {
	return t.ExpirationTime.After(now.Add(margin))
}
