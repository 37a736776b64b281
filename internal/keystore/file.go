// Package keystore loads PEM credential files for application wiring. The
// protocol packages accept credentials as byte blocks; where those bytes come
// from is not their concern.
package keystore

import (
	"encoding/pem"
	"fmt"
	"os"
)

// Credentials holds the raw PEM blocks the signing layer consumes.
type Credentials struct {
	CertPEM []byte
	KeyPEM  []byte
}

// LoadFiles reads the certificate and unencrypted private key from PEM files,
// verifying that each contains at least one PEM block before handing it on.
func LoadFiles(certFile, keyFile string) (*Credentials, error) {
	certPEM, err := readPEM(certFile)
	if err != nil {
		return nil, fmt.Errorf("loading certificate: %w", err)
	}
	keyPEM, err := readPEM(keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading private key: %w", err)
	}
	return &Credentials{CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

func readPEM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s contains no PEM block", path)
	}
	return data, nil
}
