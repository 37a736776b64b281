package cms

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hhrutter/pkcs7"
)

// ErrSigning is wrapped by every failure in this package: malformed key or
// certificate material, or a failure inside the CMS builder. The remote
// service is the authority on whether key and certificate actually pair up;
// a mismatch it detects surfaces as a rejected ticket, not here.
var ErrSigning = errors.New("CMS signing failed")

var pemArmor = regexp.MustCompile(`-----(?:BEGIN|END) [^-]+-----`)

// Signer signs payloads with a certificate and its private key, both supplied
// as PEM-encoded blocks. The digest algorithm is SHA-256.
type Signer struct {
	cert *x509.Certificate
	key  crypto.PrivateKey
}

// NewSigner parses the PEM-encoded certificate and unencrypted private key.
// PKCS#1, PKCS#8 and SEC1 EC key encodings are accepted.
func NewSigner(certPEM, keyPEM []byte) (*Signer, error) {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{cert: cert, key: key}, nil
}

// Sign returns a PEM-armored PKCS#7 SignedData envelope over data.
func (s *Signer) Sign(data []byte) (string, error) {
	signed, err := pkcs7.NewSignedData(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := signed.AddSigner(s.cert, s.key, pkcs7.SignerInfoConfig{}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	der, err := signed.Finish()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	armored := pem.EncodeToMemory(&pem.Block{Type: "PKCS7", Bytes: der})
	return string(armored), nil
}

// StripArmor removes the BEGIN/END armor lines from a PEM-style envelope and
// trims surrounding whitespace, leaving only the base64 body. The login
// service expects the bare body inlined as element text.
func StripArmor(armored string) string {
	return strings.TrimSpace(pemArmor.ReplaceAllString(armored, ""))
}

func parseCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in certificate input", ErrSigning)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing certificate: %v", ErrSigning, err)
	}
	return cert, nil
}

func parsePrivateKey(keyPEM []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in key input", ErrSigning)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unsupported or malformed private key", ErrSigning)
}
