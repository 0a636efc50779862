// Carga de certificado desde .p12 (PKCS#12) o par PEM, e inspección de la
// identidad (CUIT) embebida en el certificado emitido por AFIP.

package signer

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/crypto/pkcs12"
)

// oidSerialNumber atributo serialNumber del subject (2.5.4.5). AFIP embebe
// ahí la identidad del titular con el formato "CUIT 20123456789".
var oidSerialNumber = []int{2, 5, 4, 5}

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	// pkcs12.Decode devuelve un solo certificado; para el WSAA basta la hoja.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (certificado y
// llave por separado, o combinados en un solo archivo).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if certPath == "" {
		return tls.Certificate{}, nil
	}
	if keyPath == "" {
		// Un solo archivo puede contener cert+key en PEM
		return tls.LoadX509KeyPair(certPath, certPath)
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cargar PEM: %w", err)
	}
	return cert, nil
}

// Load carga el certificado según la extensión de la ruta (.p12/.pfx o PEM).
func Load(certPath, keyPath, password string) (tls.Certificate, error) {
	lower := strings.ToLower(certPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return LoadFromP12(certPath, password)
	}
	return LoadFromPEM(certPath, keyPath)
}

// CertificateCUIT extrae el CUIT del subject del certificado (atributo
// serialNumber, formato "CUIT NNNNNNNNNNN"). Devuelve solo los dígitos.
func CertificateCUIT(cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", fmt.Errorf("certificado nil")
	}
	value := cert.Subject.SerialNumber
	if value == "" {
		value = findAttribute(cert.Subject.Names, oidSerialNumber)
	}
	if value == "" {
		return "", fmt.Errorf("el certificado no incluye serialNumber en el subject")
	}
	digits := onlyDigits(value)
	if len(digits) != 11 {
		return "", fmt.Errorf("serialNumber del certificado sin CUIT reconocible: %q", value)
	}
	return digits, nil
}

func findAttribute(names []pkix.AttributeTypeAndValue, oid []int) string {
	for _, n := range names {
		if len(n.Type) != len(oid) {
			continue
		}
		match := true
		for i := range oid {
			if n.Type[i] != oid[i] {
				match = false
				break
			}
		}
		if match {
			if s, ok := n.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
