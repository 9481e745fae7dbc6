package clusterserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/core/service"
	"github.com/yndnr/dirmesh-go/internal/telemetry/metric"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// Relay pool defaults.
const (
	DefaultRelayPoolSize = 32
	DefaultRelayTimeout  = 30 * time.Second
)

// Relay query results recorded in metrics.
const (
	relayOK    = "ok"
	relayError = "error"
)

// QueryRelay forwards a QUERY to every peer of a federation in parallel and
// streams the results back.
type QueryRelay struct {
	name    string
	peers   *PeerDirectory
	dialer  *wire.Dialer
	pool    *semaphore.Weighted
	timeout time.Duration
	metrics *metric.Registry
	logger  *slog.Logger
}

// NewQueryRelay creates a QueryRelay. pool bounds the relay tasks of the
// whole node; nil allocates a private pool of DefaultRelayPoolSize.
func NewQueryRelay(name string, peers *PeerDirectory, dialer *wire.Dialer, pool *semaphore.Weighted, timeout time.Duration, metrics *metric.Registry, logger *slog.Logger) *QueryRelay {
	if pool == nil {
		pool = semaphore.NewWeighted(DefaultRelayPoolSize)
	}
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryRelay{
		name:    name,
		peers:   peers,
		dialer:  dialer,
		pool:    pool,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// QueryAll sends q to every known peer with relaying disabled and the
// channel and owner cleared, and calls fn for every resource received.
// Calls to fn are serialized. A failing peer is logged and skipped; the
// other peers are not affected. An error from fn stops the relay and is
// returned.
func (r *QueryRelay) QueryAll(ctx context.Context, q domain.Query, fn func(*domain.Resource) error) error {
	targets := r.peers.Snapshot()
	if len(targets) == 0 || q.Template == nil {
		return nil
	}
	relayed := domain.Query{Template: service.RelayTemplate(q.Template), Relay: false}

	var fnMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range targets {
		g.Go(func() error {
			if err := r.pool.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer r.pool.Release(1)

			n, err := r.queryPeer(gctx, peer, relayed, func(res *domain.Resource) error {
				fnMu.Lock()
				defer fnMu.Unlock()
				return fn(res)
			})
			if errors.Is(err, errConsumer) {
				return err
			}
			if err != nil {
				r.metrics.RecordRelayQuery(r.name, relayError)
				r.logger.Debug("relay query failed",
					"federation", r.name,
					"peer", peer.String(),
					"error", err)
				return nil
			}
			r.metrics.RecordRelayQuery(r.name, relayOK)
			r.metrics.AddRelayed(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Unwrap(err)
	}
	return nil
}

// errConsumer wraps errors returned by the QueryAll callback.
var errConsumer = errors.New("relay consumer failed")

type consumerError struct{ err error }

func (e consumerError) Error() string        { return e.err.Error() }
func (e consumerError) Unwrap() error        { return e.err }
func (e consumerError) Is(target error) bool { return target == errConsumer }

func (r *QueryRelay) queryPeer(ctx context.Context, peer domain.Peer, q domain.Query, fn func(*domain.Resource) error) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := r.dialer.Dial(ctx, peer)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// Unblock reads when the query is cancelled or times out.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.Send(q); err != nil {
		return 0, fmt.Errorf("send query: %w", err)
	}
	var resp domain.Response
	if err := conn.DecodeAs(&resp); err != nil {
		return 0, fmt.Errorf("read query response: %w", err)
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("peer rejected query: %s", resp.ErrorMessage)
	}

	received, declared, err := conn.ReadResources(func(res *domain.Resource) error {
		if err := fn(res); err != nil {
			return consumerError{err}
		}
		return nil
	})
	if err != nil {
		return received, err
	}
	if received != declared {
		r.logger.Debug("relay result size mismatch",
			"federation", r.name,
			"peer", peer.String(),
			"received", received,
			"declared", declared)
	}
	return received, nil
}
