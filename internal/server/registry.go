//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=mocks/mock_mailbox.go -package=mocks

package server

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"chatrelay/internal/protocol"
)

// PeerID identifies one live connection.  It is the remote address, which is
// unique among registered peers.
type PeerID string

// Mailbox is the sending half of a peer's outbound channel.
type Mailbox interface {
	// Enqueue blocks while the queue is full.  It fails with ErrPeerGone once
	// the mailbox was closed or its writer stopped, or with ctx's error.
	Enqueue(ctx context.Context, msg protocol.Message) error
	// Close stops the writer.  Safe to call more than once.
	Close()
}

// Registry maps every handshaken connection to its mailbox.
//
// The lock only guards the map.  Iteration works on a snapshot so callbacks,
// which enqueue and may block, never run while the lock is held.
type Registry struct {
	mu    sync.RWMutex
	peers map[PeerID]Mailbox
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[PeerID]Mailbox)}
}

// Register adds a peer.  A duplicate id replaces the previous entry.
func (r *Registry) Register(id PeerID, mb Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = mb
}

// Deregister removes id and returns its mailbox.  Removing an unknown id is a
// no-op.
func (r *Registry) Deregister(id PeerID) (Mailbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	return mb, ok
}

// evict removes id only while it still maps to mb, so reaping a dead peer
// cannot remove a newer connection that reused its address.
func (r *Registry) evict(id PeerID, mb Mailbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.peers[id]; ok && current == mb {
		delete(r.peers, id)
		return true
	}
	return false
}

// ForEachExcept calls fn for every peer but except.  Peers registered or
// removed while it runs may or may not be visited.
func (r *Registry) ForEachExcept(except PeerID, fn func(PeerID, Mailbox)) {
	for _, entry := range r.snapshot(except) {
		fn(entry.Key, entry.Value)
	}
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Registry) snapshot(except PeerID) []lo.Entry[PeerID, Mailbox] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Entries(lo.OmitByKeys(r.peers, []PeerID{except}))
}
