package clusterserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/telemetry/metric"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// DefaultExchangeInterval is the period of the gossip round.
const DefaultExchangeInterval = 10 * time.Minute

// Exchange results recorded in metrics.
const (
	exchangeOK          = "ok"
	exchangeRejected    = "rejected"
	exchangeUnreachable = "unreachable"
)

// Exchanger periodically sends the peer list of a federation to one
// random peer. A peer that cannot be reached is removed.
type Exchanger struct {
	name     string
	peers    *PeerDirectory
	dialer   *wire.Dialer
	interval time.Duration
	metrics  *metric.Registry
	logger   *slog.Logger
}

// NewExchanger creates an Exchanger for the federation called name.
func NewExchanger(name string, peers *PeerDirectory, dialer *wire.Dialer, interval time.Duration, metrics *metric.Registry, logger *slog.Logger) *Exchanger {
	if interval <= 0 {
		interval = DefaultExchangeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchanger{
		name:     name,
		peers:    peers,
		dialer:   dialer,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run exchanges once per interval until ctx is cancelled.
func (e *Exchanger) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.ExchangeOnce(ctx); err != nil {
				e.logger.Debug("exchange failed", "federation", e.name, "error", err)
			}
		}
	}
}

// ExchangeOnce sends the node and its peers to one random peer and reads
// the response. It does nothing when no peer is known.
func (e *Exchanger) ExchangeOnce(ctx context.Context) error {
	target, ok := e.peers.Random()
	if !ok {
		return nil
	}

	list := append([]domain.Peer{e.peers.Self()}, e.peers.Snapshot()...)
	resp, err := e.exchange(ctx, target, list)
	if err != nil {
		e.peers.Remove(target)
		e.metrics.RecordExchange(e.name, exchangeUnreachable)
		e.metrics.SetPeers(e.name, e.peers.Len())
		e.logger.Info("peer unreachable, removed",
			"federation", e.name,
			"peer", target.String(),
			"error", err)
		return err
	}
	if !resp.IsSuccess() {
		e.metrics.RecordExchange(e.name, exchangeRejected)
		e.logger.Warn("exchange rejected",
			"federation", e.name,
			"peer", target.String(),
			"message", resp.ErrorMessage)
		return nil
	}
	e.metrics.RecordExchange(e.name, exchangeOK)
	e.peers.Refresh()
	return nil
}

func (e *Exchanger) exchange(ctx context.Context, target domain.Peer, list []domain.Peer) (domain.Response, error) {
	var resp domain.Response
	conn, err := e.dialer.Dial(ctx, target)
	if err != nil {
		return resp, err
	}
	defer conn.Close()

	if err := conn.Send(domain.Exchange{Servers: list}); err != nil {
		return resp, fmt.Errorf("send exchange: %w", err)
	}
	if err := conn.DecodeAs(&resp); err != nil {
		return resp, fmt.Errorf("read exchange response: %w", err)
	}
	return resp, nil
}
