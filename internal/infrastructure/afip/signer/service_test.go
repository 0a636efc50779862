package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCertificate genera un certificado autofirmado con el serialNumber del
// subject en el formato que usa AFIP ("CUIT NNNNNNNNNNN").
func testCertificate(t *testing.T, subjectSerial string) tls.Certificate {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(12345),
		Subject: pkix.Name{
			CommonName:   "facturacion-pro-test",
			SerialNumber: subjectSerial,
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}
}

func TestCMSSigner_Sign_EstructuraVerificable(t *testing.T) {
	cert := testCertificate(t, "CUIT 30500010912")
	tra := []byte(`<loginTicketRequest version="1.0"><service>wsfe</service></loginTicketRequest>`)

	der, err := NewCMSSigner().Sign(tra, cert)
	require.NoError(t, err)
	require.NotEmpty(t, der)

	// El exterior debe ser un ContentInfo con OID signedData y el SignedData
	// dentro de [0] EXPLICIT (RFC 5652)
	var outer contentInfo
	rest, err := asn1.Unmarshal(der, &outer)
	require.NoError(t, err)
	assert.Empty(t, rest, "no debe sobrar DER tras el ContentInfo")
	assert.True(t, outer.ContentType.Equal(oidSignedData))
	assert.Equal(t, asn1.ClassContextSpecific, outer.Content.Class)
	assert.Equal(t, 0, outer.Content.Tag)
	assert.True(t, outer.Content.IsCompound, "[0] EXPLICIT debe ser constructed")

	// Dentro del wrapper viene el SEQUENCE SignedData completo
	var sd signedData
	_, err = asn1.Unmarshal(outer.Content.Bytes, &sd)
	require.NoError(t, err)
	assert.Equal(t, 1, sd.Version)
	require.Len(t, sd.SignerInfos, 1)

	// El eContent es un OCTET STRING en [0] EXPLICIT con el TRA original
	assert.Equal(t, asn1.ClassContextSpecific, sd.ContentInfo.Content.Class)
	assert.True(t, sd.ContentInfo.Content.IsCompound)
	var eContent []byte
	_, err = asn1.Unmarshal(sd.ContentInfo.Content.Bytes, &eContent)
	require.NoError(t, err, "el eContent debe ser un OCTET STRING bien formado")
	assert.Equal(t, tra, eContent)

	// La firma RSA-SHA256 debe verificar contra la clave pública del certificado
	digest := sha256.Sum256(tra)
	pub := cert.PrivateKey.(*rsa.PrivateKey).Public().(*rsa.PublicKey)
	err = rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sd.SignerInfos[0].Signature)
	assert.NoError(t, err, "la firma debe verificar sobre el contenido")
}

func TestCMSSigner_Sign_TRAVacio(t *testing.T) {
	cert := testCertificate(t, "CUIT 30500010912")
	_, err := NewCMSSigner().Sign(nil, cert)
	assert.Error(t, err)
}

func TestCMSSigner_Sign_SinLlavePrivada(t *testing.T) {
	cert := testCertificate(t, "CUIT 30500010912")
	cert.PrivateKey = nil
	_, err := NewCMSSigner().Sign([]byte("tra"), cert)
	assert.Error(t, err)
}

func TestCertificateCUIT(t *testing.T) {
	cert := testCertificate(t, "CUIT 30500010912")
	cuit, err := CertificateCUIT(cert.Leaf)
	require.NoError(t, err)
	assert.Equal(t, "30500010912", cuit)
}

func TestCertificateCUIT_SinSerialNumber(t *testing.T) {
	cert := testCertificate(t, "")
	_, err := CertificateCUIT(cert.Leaf)
	assert.Error(t, err)
}

func TestCertificateCUIT_SerialNoReconocible(t *testing.T) {
	cert := testCertificate(t, "CUIT 123")
	_, err := CertificateCUIT(cert.Leaf)
	assert.Error(t, err)
}
