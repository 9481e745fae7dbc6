// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(cfg); err != nil {
		return err
	}
	if err := verifyFederation(&cfg.Federation); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	return verifyStorage(&cfg.Storage)
}

func verifyServer(cfg *ServerConfig) error {
	s := &cfg.Server
	if !validPort(s.Port) {
		return fmt.Errorf("server.port %d out of range", s.Port)
	}
	if cfg.TLSEnabled() {
		if !validPort(s.SecurePort) {
			return fmt.Errorf("server.secure_port %d out of range", s.SecurePort)
		}
		if s.SecurePort == s.Port {
			return errors.New("server.port and server.secure_port must differ")
		}
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}
	return nil
}

func verifyFederation(cfg *FederationSection) error {
	if cfg.ExchangeInterval <= 0 {
		return errors.New("federation.exchange_interval must be positive")
	}
	if cfg.ConnectionIntervalLimit < 0 {
		return errors.New("federation.connection_interval_limit must not be negative")
	}
	if cfg.RelayPoolSize < 1 {
		return errors.New("federation.relay_pool_size must be at least 1")
	}
	if cfg.NotifyWorkers < 1 {
		return errors.New("federation.notify_workers must be at least 1")
	}
	if _, err := ParsePeers(cfg.Seeds); err != nil {
		return fmt.Errorf("federation.seeds: %w", err)
	}
	if _, err := ParsePeers(cfg.SecureSeeds); err != nil {
		return fmt.Errorf("federation.secure_seeds: %w", err)
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("security.tls_cert_file and security.tls_key_file must be set together")
	}
	if cfg.TLSCAFile != "" && cfg.TLSCertFile == "" {
		return errors.New("security.tls_ca_file requires security.tls_cert_file")
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tls file: %w", err)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.ShareRoot == "" {
		return nil
	}
	info, err := os.Stat(cfg.ShareRoot)
	if err != nil {
		return fmt.Errorf("storage.share_root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage.share_root %s is not a directory", cfg.ShareRoot)
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// ParsePeers parses host:port entries.
func ParsePeers(entries []string) ([]domain.Peer, error) {
	peers := make([]domain.Peer, 0, len(entries))
	for _, e := range entries {
		p, err := domain.ParsePeer(e)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, nil
}
