package clusterserver

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/telemetry/metric"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// Federation names.
const (
	FederationPlain  = "plain"
	FederationSecure = "secure"
)

// FederationConfig configures one federation of a node.
type FederationConfig struct {
	// Name labels logs and metrics.
	Name string

	// Self is the address advertised to peers.
	Self domain.Peer

	// TLSConfig makes every outbound connection use TLS.
	TLSConfig *tls.Config

	// DialTimeout bounds connection setup to peers.
	DialTimeout time.Duration

	// ExchangeInterval is the period of the gossip round.
	ExchangeInterval time.Duration

	// RelayPool bounds concurrent relay queries across federations.
	RelayPool *semaphore.Weighted

	// RelayTimeout bounds one relayed query.
	RelayTimeout time.Duration

	// Notifier receives resources pushed by peers.
	Notifier RelayedNotifier

	Metrics *metric.Registry
	Logger  *slog.Logger
}

// Federation groups the peer set of a node with the gossip loop and the
// relays that use it. A node runs a plain and, with TLS configured, a
// secure federation.
type Federation struct {
	Name          string
	Peers         *PeerDirectory
	Exchanger     *Exchanger
	Queries       *QueryRelay
	Subscriptions *SubscriptionRelay

	metrics *metric.Registry
}

// NewFederation creates a federation and its components.
func NewFederation(cfg FederationConfig) *Federation {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("federation", cfg.Name)

	dialer := &wire.Dialer{
		Timeout:      cfg.DialTimeout,
		TLSConfig:    cfg.TLSConfig,
		ReadTimeout:  cfg.RelayTimeout,
		WriteTimeout: cfg.RelayTimeout,
	}
	peers := NewPeerDirectory(cfg.Self, logger)
	f := &Federation{
		Name:      cfg.Name,
		Peers:     peers,
		Exchanger: NewExchanger(cfg.Name, peers, dialer, cfg.ExchangeInterval, cfg.Metrics, logger),
		Queries:   NewQueryRelay(cfg.Name, peers, dialer, cfg.RelayPool, cfg.RelayTimeout, cfg.Metrics, logger),
		metrics:   cfg.Metrics,
	}
	if cfg.Notifier != nil {
		f.Subscriptions = NewSubscriptionRelay(cfg.Name, peers, dialer, cfg.Notifier, cfg.Metrics, logger)
	}
	return f
}

// Origin returns the origin stamped on resources leaving the node through
// this federation.
func (f *Federation) Origin() string {
	return f.Peers.Self().String()
}

// Merge validates the server list of an EXCHANGE and adds its peers.
func (f *Federation) Merge(list []domain.Peer) error {
	if err := ValidateServerList(list); err != nil {
		return err
	}
	f.Peers.AddPeers(list)
	f.metrics.SetPeers(f.Name, f.Peers.Len())
	return nil
}

// Run runs the gossip loop until ctx is cancelled, then closes the
// subscription relay.
func (f *Federation) Run(ctx context.Context) error {
	err := f.Exchanger.Run(ctx)
	if f.Subscriptions != nil {
		f.Subscriptions.Close()
	}
	return err
}
