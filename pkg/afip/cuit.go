package afip

import (
	"fmt"
	"unicode"
)

// pesos para el cálculo del dígito verificador de CUIT/CUIL (módulo 11, AFIP).
// Se aplican a los 10 primeros dígitos, de izquierda a derecha.
var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidateCUIT valida que el CUIT (con o sin guiones) tenga 11 dígitos y un
// dígito verificador correcto según el algoritmo módulo 11 de AFIP.
// taxID puede ser "20-12345678-6" o "20123456786".
func ValidateCUIT(taxID string) error {
	digits := extractDigits(taxID)
	if len(digits) != 11 {
		return fmt.Errorf("afip: CUIT debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	expected, err := computeCheckDigit(digits[:10])
	if err != nil {
		return err
	}
	if digits[10] != expected {
		return fmt.Errorf("afip: dígito verificador de CUIT inválido: esperado %c, recibido %c", expected, digits[10])
	}
	return nil
}

// NormalizeCUIT devuelve el CUIT solo con dígitos, validándolo primero.
func NormalizeCUIT(taxID string) (string, error) {
	if err := ValidateCUIT(taxID); err != nil {
		return "", err
	}
	return string(extractDigits(taxID)), nil
}

// ComputeCUITCheckDigit calcula el dígito verificador para los 10 primeros
// dígitos del CUIT. Útil para completar un CUIT antes de enviarlo a AFIP.
func ComputeCUITCheckDigit(taxID string) (byte, error) {
	digits := extractDigits(taxID)
	if len(digits) < 10 {
		return 0, fmt.Errorf("afip: se requieren al menos 10 dígitos para calcular el dígito verificador, se encontraron %d", len(digits))
	}
	return computeCheckDigit(digits[:10])
}

func computeCheckDigit(base []byte) (byte, error) {
	var sum int
	for i, d := range base {
		sum += int(d-'0') * cuitWeights[i]
	}
	remainder := sum % 11
	switch remainder {
	case 0:
		return '0', nil
	case 1:
		// Convención AFIP: resto 1 produce verificador 9 (el 10 no existe).
		return '9', nil
	default:
		return byte('0' + (11 - remainder)), nil
	}
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
