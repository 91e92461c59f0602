package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"chatrelay/internal/protocol"
)

// ErrPeerGone is returned by Enqueue once the peer's writer can no longer
// deliver.  It is how the broadcaster detects dead peers.
var ErrPeerGone = errors.New("peer gone")

// Outbox is a peer's bounded outbound queue together with its writer.
//
// Messages are written in enqueue order.  A full queue blocks Enqueue rather
// than dropping.  The queue channel itself is never closed, so concurrent
// senders cannot panic; closing and writer exit are signalled separately.
type Outbox struct {
	queue   chan protocol.Message
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewOutbox(capacity int) *Outbox {
	return &Outbox{
		queue:   make(chan protocol.Message, capacity),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (o *Outbox) Enqueue(ctx context.Context, msg protocol.Message) error {
	// Checked first so a dead outbox with free slots still refuses.
	select {
	case <-o.closing:
		return ErrPeerGone
	case <-o.done:
		return ErrPeerGone
	default:
	}

	select {
	case o.queue <- msg:
		return nil
	case <-o.closing:
		return ErrPeerGone
	case <-o.done:
		return ErrPeerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) Close() {
	o.once.Do(func() { close(o.closing) })
}

// Done is closed when the writer has returned.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Len and Cap expose the queue fill level for stats.
func (o *Outbox) Len() int { return len(o.queue) }
func (o *Outbox) Cap() int { return cap(o.queue) }

// Run is the peer's writer.  It must be started exactly once, in its own
// goroutine.  It returns when the outbox is closed or a write fails; it never
// retries and never touches the registry.
func (o *Outbox) Run(conn protocol.LineConn, log *slog.Logger) {
	defer close(o.done)

	for {
		select {
		case <-o.closing:
			return
		case msg := <-o.queue:
			if err := conn.WriteLine(protocol.Render(msg)); err != nil {
				if errors.Is(err, net.ErrClosed) {
					log.Debug("Writer stopped, connection closed", "peer", conn.RemoteAddr())
				} else {
					log.Warn("Failed to write to peer", "peer", conn.RemoteAddr(), "error", err)
				}
				return
			}
		}
	}
}
