package memory

import (
	"iter"
	"sync"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// Directory is the in-memory resource table of one node.
//
// Entries are partitioned by channel, since every template names exactly
// one channel. A single RWMutex guards the table; resources are cloned on
// the way in and on the way out, so callers never hold a live reference.
type Directory struct {
	mu       sync.RWMutex
	channels map[string]map[string]*domain.Resource
	count    int
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		channels: make(map[string]map[string]*domain.Resource),
	}
}

// Get returns a copy of the resource at (channel, uri).
func (d *Directory) Get(channel, uri string) (*domain.Resource, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.channels[channel][uri]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Put stores a copy of r, replacing any entry at its key.
func (d *Directory) Put(r *domain.Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.putLocked(r)
}

func (d *Directory) putLocked(r *domain.Resource) {
	entries, ok := d.channels[r.Channel]
	if !ok {
		entries = make(map[string]*domain.Resource)
		d.channels[r.Channel] = entries
	}
	if _, exists := entries[r.URI]; !exists {
		d.count++
	}
	stored := r.Clone()
	stored.Origin = nil
	stored.Size = 0
	entries[r.URI] = stored
}

// Remove deletes the entry at (channel, uri) and reports whether it existed.
func (d *Directory) Remove(channel, uri string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(channel, uri)
}

func (d *Directory) removeLocked(channel, uri string) bool {
	entries, ok := d.channels[channel]
	if !ok {
		return false
	}
	if _, ok := entries[uri]; !ok {
		return false
	}
	delete(entries, uri)
	d.count--
	if len(entries) == 0 {
		delete(d.channels, channel)
	}
	return true
}

// UpdateResource upserts r unless an entry with a different owner exists at
// its key, in which case it returns domain.ErrOwnershipViolation and leaves
// the entry unchanged.
func (d *Directory) UpdateResource(r *domain.Resource) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.channels[r.Channel][r.URI]; ok && existing.Owner != r.Owner {
		return domain.ErrOwnershipViolation.WithDetails(r.Key().String())
	}
	d.putLocked(r)
	return nil
}

// RemoveOwned deletes the entry at (channel, uri) if owner owns it.
func (d *Directory) RemoveOwned(channel, uri, owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.channels[channel][uri]
	if !ok {
		return domain.ErrResourceNotFound
	}
	if existing.Owner != owner {
		return domain.ErrOwnershipViolation
	}
	d.removeLocked(channel, uri)
	return nil
}

// TemplateQuery returns the resources matching template as a lazy sequence
// of copies. The read lock is held while the sequence runs: the loop body
// must not block on I/O or call back into the directory. Use Snapshot when
// the results are streamed to a peer.
func (d *Directory) TemplateQuery(template *domain.Resource) iter.Seq[*domain.Resource] {
	return func(yield func(*domain.Resource) bool) {
		d.mu.RLock()
		defer d.mu.RUnlock()

		for _, r := range d.channels[template.Channel] {
			if !r.Matches(template) {
				continue
			}
			if !yield(r.Clone()) {
				return
			}
		}
	}
}

// Snapshot collects the matches of template.
func (d *Directory) Snapshot(template *domain.Resource) []*domain.Resource {
	var out []*domain.Resource
	for r := range d.TemplateQuery(template) {
		out = append(out, r)
	}
	return out
}

// Len returns the number of stored resources.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// Channels returns the number of non-empty channels.
func (d *Directory) Channels() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels)
}
