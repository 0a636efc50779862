// Servicio de firma CMS/PKCS#7 del TRA para el login WSAA.
// Construye el SignedData DER a mano con encoding/asn1 y crypto/rsa.

package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// CMSSigner firma el TRA canonicalizado y devuelve el SignedData DER que el
// WSAA espera (en base64) dentro de loginCms/in0.
type CMSSigner struct{}

// NewCMSSigner crea el servicio.
func NewCMSSigner() *CMSSigner {
	return &CMSSigner{}
}

// ── Estructuras ASN.1 (RFC 5652, sin atributos firmados) ──────────────────────

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type issuerAndSerial struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type signerInfo struct {
	Version            int
	SID                issuerAndSerial
	DigestAlgorithm    algorithmIdentifier
	SignatureAlgorithm algorithmIdentifier
	Signature          []byte
}

type encapContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms []algorithmIdentifier `asn1:"set"`
	ContentInfo      encapContentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	SignerInfos      []signerInfo  `asn1:"set"`
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// asn1Null parámetro NULL de los AlgorithmIdentifier.
var asn1Null = asn1.RawValue{Tag: 5}

// explicitTag0 envuelve un elemento DER completo en [0] EXPLICIT.
// encoding/asn1.Marshal ignora los params de tag de los campos RawValue, así
// que el wrapper que exige RFC 5652 para eContent y para el Content del
// ContentInfo exterior se arma a mano.
func explicitTag0(inner []byte) asn1.RawValue {
	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      inner,
	}
}

// Sign firma el TRA y devuelve el ContentInfo(SignedData) en DER.
// Sin atributos firmados: la firma RSA-SHA256 se calcula sobre el contenido.
func (s *CMSSigner) Sign(tra []byte, cert tls.Certificate) ([]byte, error) {
	if len(tra) == 0 {
		return nil, fmt.Errorf("afip: TRA vacío")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("afip: el certificado debe incluir llave privada RSA")
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("afip: certificado vacío")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("afip: parsear certificado: %w", err)
	}

	// 1) Digest del contenido y firma PKCS#1 v1.5
	digest := sha256.Sum256(tra)
	signature, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("afip: firmar TRA: %w", err)
	}

	// 2) SignerInfo con IssuerAndSerialNumber del certificado hoja
	si := signerInfo{
		Version: 1,
		SID: issuerAndSerial{
			Issuer:       asn1.RawValue{FullBytes: x509Cert.RawIssuer},
			SerialNumber: x509Cert.SerialNumber,
		},
		DigestAlgorithm:    algorithmIdentifier{Algorithm: oidSHA256, Parameters: asn1Null},
		SignatureAlgorithm: algorithmIdentifier{Algorithm: oidRSAEncryption, Parameters: asn1Null},
		Signature:          signature,
	}

	// 3) SignedData con el TRA embebido (eContent) y el certificado firmante.
	// El eContent es un OCTET STRING dentro de [0] EXPLICIT.
	eContent, err := asn1.Marshal(tra)
	if err != nil {
		return nil, fmt.Errorf("afip: serializar eContent: %w", err)
	}
	sd := signedData{
		Version:          1,
		DigestAlgorithms: []algorithmIdentifier{{Algorithm: oidSHA256, Parameters: asn1Null}},
		ContentInfo: encapContentInfo{
			ContentType: oidData,
			Content:     explicitTag0(eContent),
		},
		Certificates: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      x509Cert.Raw,
		},
		SignerInfos: []signerInfo{si},
	}

	sdBytes, err := asn1.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("afip: serializar SignedData: %w", err)
	}

	// 4) ContentInfo exterior: el SignedData también viaja en [0] EXPLICIT
	out, err := asn1.Marshal(contentInfo{
		ContentType: oidSignedData,
		Content:     explicitTag0(sdBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("afip: serializar ContentInfo: %w", err)
	}
	return out, nil
}
