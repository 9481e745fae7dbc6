// Package config defines the server configuration structure.
package config

import (
	"crypto/tls"
	"net"
	"os"
	"strconv"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/server/clusterserver"
	"github.com/yndnr/dirmesh-go/internal/server/nodeserver"
)

// AdvertisedHost returns the host announced to peers.
func AdvertisedHost(cfg *ServerConfig) string {
	if cfg.Server.AdvertisedHostname != "" {
		return cfg.Server.AdvertisedHostname
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}

// ToNodeConfig converts ServerConfig to nodeserver.Config. serverTLS is nil
// unless the TLS listener is enabled.
func ToNodeConfig(cfg *ServerConfig, serverTLS *tls.Config) *nodeserver.Config {
	nc := &nodeserver.Config{
		PlainAddress:       net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		ConnectionInterval: cfg.Federation.ConnectionIntervalLimit,
	}
	if serverTLS != nil {
		nc.SecureAddress = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.SecurePort))
		nc.TLSConfig = serverTLS
	}
	return nc
}

// ToFederationConfig converts ServerConfig to the configuration of the named
// federation. The caller fills in the relay pool, notifier, metrics and
// logger. clientTLS is set for the secure federation only.
func ToFederationConfig(cfg *ServerConfig, name string, clientTLS *tls.Config) clusterserver.FederationConfig {
	port := cfg.Server.Port
	if name == clusterserver.FederationSecure {
		port = cfg.Server.SecurePort
	}
	return clusterserver.FederationConfig{
		Name:             name,
		Self:             domain.Peer{Hostname: AdvertisedHost(cfg), Port: port},
		TLSConfig:        clientTLS,
		DialTimeout:      cfg.Federation.RelayTimeout,
		ExchangeInterval: cfg.Federation.ExchangeInterval,
		RelayTimeout:     cfg.Federation.RelayTimeout,
	}
}

// SeedsFor returns the configured seed peers of the named federation.
// Verify has already rejected malformed entries.
func SeedsFor(cfg *ServerConfig, name string) []domain.Peer {
	entries := cfg.Federation.Seeds
	if name == clusterserver.FederationSecure {
		entries = cfg.Federation.SecureSeeds
	}
	peers, err := ParsePeers(entries)
	if err != nil {
		return nil
	}
	return peers
}
