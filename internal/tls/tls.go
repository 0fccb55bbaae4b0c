// Package tls builds the client TLS configuration for the IMAP connection.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ClientConfig returns a TLS 1.2+ client configuration for serverName.
// When caFile is set, the PEM certificates it contains are trusted in
// addition to the system roots. insecureSkipVerify disables certificate
// verification and is only meant for test servers.
func ClientConfig(serverName, caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify,
	}

	if caFile == "" {
		return cfg, nil
	}

	pool, err := loadCertPool(caFile)
	if err != nil {
		return nil, err
	}
	cfg.RootCAs = pool

	return cfg, nil
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	pemData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, errors.New("CA file contains no PEM certificates")
	}
	return pool, nil
}
