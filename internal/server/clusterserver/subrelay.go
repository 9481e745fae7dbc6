package clusterserver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/telemetry/metric"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// RelayedNotifier receives resources pushed by peers.
type RelayedNotifier interface {
	NotifyRelayed(r *domain.Resource)
}

// relayLink is the persistent subscription connection to one peer.
type relayLink struct {
	peer  domain.Peer
	conn  *wire.Conn
	acked map[string]struct{} // guarded by SubscriptionRelay.mu
}

// SubscriptionRelay forwards subscriptions to the peers of a federation
// over one persistent connection per peer, and hands the resources the
// peers push back to the local subscription engine.
type SubscriptionRelay struct {
	name     string
	peers    *PeerDirectory
	dialer   *wire.Dialer
	notifier RelayedNotifier
	metrics  *metric.Registry
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// dialMu serializes link creation so a peer never gets two links.
	dialMu sync.Mutex

	mu     sync.Mutex
	active map[string]*domain.Resource
	links  map[domain.Peer]*relayLink
	closed bool

	wg sync.WaitGroup
}

// NewSubscriptionRelay creates a SubscriptionRelay. It subscribes to peer
// updates of peers so that new peers receive the active subscriptions.
func NewSubscriptionRelay(name string, peers *PeerDirectory, dialer *wire.Dialer, notifier RelayedNotifier, metrics *metric.Registry, logger *slog.Logger) *SubscriptionRelay {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &SubscriptionRelay{
		name:     name,
		peers:    peers,
		dialer:   dialer,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]*domain.Resource),
		links:    make(map[domain.Peer]*relayLink),
	}
	peers.OnUpdate(r.PeersUpdated)
	return r
}

// Subscribe relays template under a new correlation id and returns it.
func (r *SubscriptionRelay) Subscribe(template *domain.Resource) string {
	id := ulid.Make().String()
	r.SubscribeWithID(id, template)
	return id
}

// SubscribeWithID relays template under id to every known peer.
func (r *SubscriptionRelay) SubscribeWithID(id string, template *domain.Resource) {
	t := template.Clone()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.active[id] = t
	r.mu.Unlock()

	cmd := domain.Subscribe{Template: t, Relay: false, ID: id}
	for _, peer := range r.peers.Snapshot() {
		link, fresh := r.link(peer)
		if link == nil || fresh {
			// A fresh link was sent every active subscription.
			continue
		}
		if err := link.conn.Send(cmd); err != nil {
			r.drop(link, err)
		}
	}
}

// Unsubscribe cancels id on every peer that acknowledged it.
func (r *SubscriptionRelay) Unsubscribe(id string) {
	r.mu.Lock()
	delete(r.active, id)
	var targets []*relayLink
	for _, link := range r.links {
		if _, ok := link.acked[id]; ok {
			delete(link.acked, id)
			targets = append(targets, link)
		}
	}
	r.mu.Unlock()

	for _, link := range targets {
		if err := link.conn.Send(domain.Unsubscribe{ID: id}); err != nil {
			r.drop(link, err)
		}
	}
}

// PeersUpdated connects to every peer in snapshot without a live link and
// sends it the active subscriptions. Nothing is dialed while no
// subscription is active. Dialing happens in the background.
func (r *SubscriptionRelay) PeersUpdated(snapshot []domain.Peer) {
	r.mu.Lock()
	if len(r.active) == 0 || r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		for _, peer := range snapshot {
			if r.ctx.Err() != nil {
				return
			}
			r.link(peer)
		}
	}()
}

// Active returns the number of active relayed subscriptions.
func (r *SubscriptionRelay) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Links returns the number of live peer connections.
func (r *SubscriptionRelay) Links() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// Close closes every peer connection and waits for the read loops.
func (r *SubscriptionRelay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	links := make([]*relayLink, 0, len(r.links))
	for _, link := range r.links {
		links = append(links, link)
	}
	r.links = make(map[domain.Peer]*relayLink)
	r.mu.Unlock()

	r.cancel()
	for _, link := range links {
		link.conn.Close()
	}
	r.wg.Wait()
	r.metrics.SetRelayConnections(r.name, 0)
	return nil
}

// link returns the live link to peer, dialing one if needed. fresh reports
// a new link, which has already been sent every active subscription.
func (r *SubscriptionRelay) link(peer domain.Peer) (*relayLink, bool) {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	r.mu.Lock()
	if link, ok := r.links[peer]; ok {
		r.mu.Unlock()
		return link, false
	}
	r.mu.Unlock()

	conn, err := r.dialer.Dial(r.ctx, peer)
	if err != nil {
		r.logger.Debug("relay subscription dial failed",
			"federation", r.name,
			"peer", peer.String(),
			"error", err)
		return nil, false
	}
	conn.SetReadTimeout(0)
	link := &relayLink{peer: peer, conn: conn, acked: make(map[string]struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return nil, false
	}
	r.links[peer] = link
	pending := make([]domain.Subscribe, 0, len(r.active))
	for id, t := range r.active {
		pending = append(pending, domain.Subscribe{Template: t, Relay: false, ID: id})
	}
	r.metrics.SetRelayConnections(r.name, len(r.links))
	r.wg.Add(1)
	r.mu.Unlock()

	go r.readLoop(link)

	for _, cmd := range pending {
		if err := conn.Send(cmd); err != nil {
			r.drop(link, err)
			return nil, false
		}
	}
	return link, true
}

// drop forgets link and closes it. The peer itself stays known.
func (r *SubscriptionRelay) drop(link *relayLink, err error) {
	r.mu.Lock()
	if cur, ok := r.links[link.peer]; ok && cur == link {
		delete(r.links, link.peer)
		r.metrics.SetRelayConnections(r.name, len(r.links))
	}
	closed := r.closed
	r.mu.Unlock()

	link.conn.Close()
	if !closed {
		r.logger.Debug("relay subscription link dropped",
			"federation", r.name,
			"peer", link.peer.String(),
			"error", err)
	}
}

func (r *SubscriptionRelay) readLoop(link *relayLink) {
	defer r.wg.Done()
	for {
		err := r.readOne(link)
		if err == nil {
			continue
		}
		if errors.Is(err, wire.ErrMalformedFrame) {
			r.logger.Debug("malformed frame from peer", "peer", link.peer.String(), "error", err)
			continue
		}
		r.drop(link, err)
		return
	}
}

// readOne handles one frame from the peer: a pushed Resource, the
// Response acknowledging a subscription, or the ResultSize answering an
// unsubscribe. Any other frame is discarded.
func (r *SubscriptionRelay) readOne(link *relayLink) error {
	var res domain.Resource
	err := link.conn.DecodeAs(&res)
	if err == nil {
		r.metrics.AddRelayed(1)
		r.notifier.NotifyRelayed(&res)
		return nil
	}
	if !errors.Is(err, wire.ErrDecodeMismatch) {
		return err
	}

	var resp domain.Response
	err = link.conn.DecodeAs(&resp)
	if err == nil {
		r.acknowledge(link, resp)
		return nil
	}
	if !errors.Is(err, wire.ErrDecodeMismatch) {
		return err
	}

	var size domain.ResultSize
	err = link.conn.DecodeAs(&size)
	if errors.Is(err, wire.ErrDecodeMismatch) {
		link.conn.Consume()
		r.logger.Debug("unexpected frame from peer", "peer", link.peer.String())
		return nil
	}
	return err
}

func (r *SubscriptionRelay) acknowledge(link *relayLink, resp domain.Response) {
	if !resp.IsSuccess() {
		r.logger.Warn("peer rejected relayed subscription",
			"federation", r.name,
			"peer", link.peer.String(),
			"message", resp.ErrorMessage)
		return
	}
	if resp.ID == "" {
		return
	}

	r.mu.Lock()
	_, active := r.active[resp.ID]
	if active {
		link.acked[resp.ID] = struct{}{}
	}
	r.mu.Unlock()

	// Cancelled while the acknowledgement was in flight.
	if !active {
		if err := link.conn.Send(domain.Unsubscribe{ID: resp.ID}); err != nil {
			r.drop(link, err)
		}
	}
}
