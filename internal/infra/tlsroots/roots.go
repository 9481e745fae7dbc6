// Package tlsroots provides TLS certificate management.
//
// It loads the node certificate and the CA that federated nodes trust, and
// builds the server and client TLS configurations of the secure listener
// and the secure federation.
package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

var (
	// ErrNoCertsFound is returned when no certificates are found in a PEM file.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")
)

// Pool manages a pool of trusted root certificates.
type Pool struct {
	certPool *x509.CertPool
}

// NewPool creates a new certificate pool with system roots.
// If system roots cannot be loaded, it creates an empty pool.
func NewPool() *Pool {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	return &Pool{certPool: pool}
}

// NewEmptyPool creates a new empty certificate pool without system roots.
func NewEmptyPool() *Pool {
	return &Pool{certPool: x509.NewCertPool()}
}

// AddCertFile adds certificates from a PEM file.
// Multiple certificates in the same file are supported.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	return p.AddCertPEM(data)
}

// AddCertPEM adds certificates from PEM-encoded data.
func (p *Pool) AddCertPEM(pemData []byte) error {
	var certsAdded int

	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certPool.AddCert(cert)
		certsAdded++
	}

	if certsAdded == 0 {
		return ErrNoCertsFound
	}
	return nil
}

// Pool returns the underlying x509.CertPool.
func (p *Pool) Pool() *x509.CertPool {
	return p.certPool
}

// Bundle holds the TLS configurations of a node.
type Bundle struct {
	// Server is used by the secure listener.
	Server *tls.Config

	// Client is used to dial peers of the secure federation.
	Client *tls.Config

	// Certs reloads the node certificate when its files change.
	Certs *Watcher
}

// Load builds the TLS configurations from the node key pair and an
// optional CA file. With a CA file, peers must present a certificate
// signed by it and peer certificates are verified against it; otherwise
// clients are not asked for certificates and peers are verified against
// the system roots.
func Load(certFile, keyFile, caFile string, logger *slog.Logger) (*Bundle, error) {
	certs, err := NewWatcher(certFile, keyFile, WithLogger(logger))
	if err != nil {
		return nil, err
	}

	roots := NewPool()
	clientAuth := tls.NoClientCert
	var clientCAs *x509.CertPool
	if caFile != "" {
		roots = NewEmptyPool()
		if err := roots.AddCertFile(caFile); err != nil {
			return nil, err
		}
		clientCAs = roots.Pool()
		clientAuth = tls.RequireAndVerifyClientCert
	}

	return &Bundle{
		Server: &tls.Config{
			GetCertificate: certs.GetCertificate,
			ClientCAs:      clientCAs,
			ClientAuth:     clientAuth,
			MinVersion:     tls.VersionTLS12,
		},
		Client: &tls.Config{
			GetClientCertificate: certs.GetClientCertificate,
			RootCAs:              roots.Pool(),
			MinVersion:           tls.VersionTLS12,
		},
		Certs: certs,
	}, nil
}
