package clusterserver

import (
	"cmp"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// PeerDirectory is the set of known peers of one federation.
//
// The node itself is never a member. Callers receive snapshots; no lock is
// held while they talk to peers.
type PeerDirectory struct {
	self domain.Peer

	mu       sync.RWMutex
	peers    map[domain.Peer]struct{}
	onUpdate []func([]domain.Peer)

	logger *slog.Logger
}

// NewPeerDirectory creates a directory for a node advertised as self.
func NewPeerDirectory(self domain.Peer, logger *slog.Logger) *PeerDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerDirectory{
		self:   self,
		peers:  make(map[domain.Peer]struct{}),
		logger: logger,
	}
}

// Self returns the advertised address of the node.
func (d *PeerDirectory) Self() domain.Peer {
	return d.self
}

// ValidateServerList checks the server list of an EXCHANGE.
func ValidateServerList(list []domain.Peer) error {
	if len(list) == 0 {
		return domain.ErrMissingServerList
	}
	for _, p := range list {
		if !p.Valid() {
			return domain.ErrInvalidServerRecord.WithDetails(p.String())
		}
	}
	return nil
}

// AddPeers merges the valid entries of list other than the node itself.
// It reports whether the set changed. Update hooks run after every merge,
// changed or not, outside the lock, so that peers whose links dropped are
// reconnected.
func (d *PeerDirectory) AddPeers(list []domain.Peer) bool {
	d.mu.Lock()
	changed := false
	for _, p := range list {
		if !p.Valid() || p == d.self {
			continue
		}
		if _, ok := d.peers[p]; ok {
			continue
		}
		d.peers[p] = struct{}{}
		changed = true
		d.logger.Debug("peer added", "peer", p.String())
	}
	d.mu.Unlock()

	d.Refresh()
	return changed
}

// Refresh runs the update hooks with the current snapshot.
func (d *PeerDirectory) Refresh() {
	d.mu.RLock()
	hooks := slices.Clone(d.onUpdate)
	snap := d.snapshotLocked()
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn(snap)
	}
}

// Remove deletes p and reports whether it was known.
func (d *PeerDirectory) Remove(p domain.Peer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[p]; !ok {
		return false
	}
	delete(d.peers, p)
	d.logger.Debug("peer removed", "peer", p.String())
	return true
}

// Snapshot returns the peers sorted by host and port.
func (d *PeerDirectory) Snapshot() []domain.Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *PeerDirectory) snapshotLocked() []domain.Peer {
	out := make([]domain.Peer, 0, len(d.peers))
	for p := range d.peers {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Peer) int {
		if c := cmp.Compare(a.Hostname, b.Hostname); c != 0 {
			return c
		}
		return cmp.Compare(a.Port, b.Port)
	})
	return out
}

// Random returns a peer chosen uniformly, or false when the set is empty.
func (d *PeerDirectory) Random() (domain.Peer, bool) {
	snap := d.Snapshot()
	if len(snap) == 0 {
		return domain.Peer{}, false
	}
	return snap[rand.IntN(len(snap))], true
}

// Len returns the number of known peers.
func (d *PeerDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// OnUpdate registers fn to receive a snapshot after every merge and every
// Refresh.
func (d *PeerDirectory) OnUpdate(fn func([]domain.Peer)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = append(d.onUpdate, fn)
}
