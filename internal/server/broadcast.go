package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"chatrelay/internal/protocol"
)

// Broadcaster fans a message out to every registered peer but its origin.
//
// Each peer is enqueued from its own goroutine, so a peer with a full queue
// only holds up its own delivery.  Broadcast still waits for all of them,
// which is how a slow peer pushes back on the connection that is talking.
type Broadcaster struct {
	registry       *Registry
	log            *slog.Logger
	enqueueTimeout time.Duration // 0: wait as long as it takes
	concurrency    int           // 0: one goroutine per peer
}

func NewBroadcaster(registry *Registry, log *slog.Logger, enqueueTimeout time.Duration, concurrency int) *Broadcaster {
	return &Broadcaster{
		registry:       registry,
		log:            log,
		enqueueTimeout: enqueueTimeout,
		concurrency:    concurrency,
	}
}

// Broadcast delivers msg to every peer except origin.  Peers that cannot take
// it are evicted; nothing is reported to the caller.
func (b *Broadcaster) Broadcast(ctx context.Context, origin PeerID, msg protocol.Message) {
	var g errgroup.Group
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}

	b.registry.ForEachExcept(origin, func(id PeerID, mb Mailbox) {
		g.Go(func() error {
			b.deliver(ctx, id, mb, msg)
			return nil
		})
	})
	_ = g.Wait()
}

func (b *Broadcaster) deliver(ctx context.Context, id PeerID, mb Mailbox, msg protocol.Message) {
	enqueueCtx := ctx
	if b.enqueueTimeout > 0 {
		var cancel context.CancelFunc
		enqueueCtx, cancel = context.WithTimeout(ctx, b.enqueueTimeout)
		defer cancel()
	}

	err := mb.Enqueue(enqueueCtx, msg)
	switch {
	case err == nil:
		return
	case ctx.Err() != nil:
		// Shutting down: the peer is not at fault.
		return
	case errors.Is(err, ErrPeerGone):
		b.log.Debug("Peer gone, removing it", "peer", id)
	case errors.Is(err, context.DeadlineExceeded):
		b.log.Warn("Peer queue stayed full, removing it", "peer", id, "timeout", b.enqueueTimeout)
	default:
		b.log.Warn("Failed to enqueue message, removing peer", "peer", id, "error", err)
	}
	if b.registry.evict(id, mb) {
		mb.Close()
	}
}
