package domain

import "errors"

// Errores de dominio (sin dependencias externas).
//
// Taxonomía de fallas del ciclo AFIP:
//   - ErrConfiguration: sucursal sin configuración activa o credencial ausente.
//     Fatal, requiere intervención del operador, nunca se reintenta solo.
//   - ErrServiceUnavailable: red/timeout contra el WS. Reintentable por el barrido.
//   - ErrAuthRejected: credencial o firma rechazada por el WSAA, o ticket
//     inválido a mitad de llamada. Fatal hasta corregir el certificado.
//   - ErrBusinessRejected: AFIP rechazó el contenido del comprobante.
//     Terminal por factura; exige corregir datos, no se reintenta a ciegas.
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrDuplicate          = errors.New("recurso duplicado")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrConflict           = errors.New("conflicto con el estado actual")
	ErrConfiguration      = errors.New("configuración fiscal ausente o inválida")
	ErrServiceUnavailable = errors.New("servicio AFIP no disponible")
	ErrAuthRejected       = errors.New("autenticación rechazada por AFIP")
	ErrBusinessRejected   = errors.New("comprobante rechazado por AFIP")
)
