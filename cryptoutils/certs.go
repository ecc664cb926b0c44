package cryptoutils

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// LoadCertPool builds a pool from PEM-encoded CA certificates.
func LoadCertPool(pemData []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, errors.New("no certificates found in PEM data")
	}
	return pool, nil
}

// ClientTLSConfig returns a TLS config trusting only the CAs in caFile.
// An empty caFile yields nil, meaning the system roots.
func ClientTLSConfig(caFile string) (*tls.Config, error) {
	if caFile == "" {
		return nil, nil
	}

	pemData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("could not read CA file: %w", err)
	}

	pool, err := LoadCertPool(pemData)
	if err != nil {
		return nil, fmt.Errorf("could not load CA file %s: %w", caFile, err)
	}

	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
