// Package server implements the line chat relay.
//
// Concurrency overview
// --------------------
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Accept loop (Serve)                                      │
//	│  One goroutine per accepted connection: handshake, then   │
//	│  the read loop, which turns every line into a broadcast.  │
//	└───────────────────┬──────────────────────────────────────┘
//	                    │  Register / ForEachExcept / Deregister
//	                    ▼
//	┌──────────────────────────────────────────────────────────┐
//	│  Registry  (sync.RWMutex, snapshot iteration)             │
//	│  PeerID → Mailbox.  Never locked across I/O.              │
//	└───────────────────┬──────────────────────────────────────┘
//	                    │  Enqueue (blocks while full)
//	                    ▼
//	┌──────────────────────────────────────────────────────────┐
//	│  Outbox writer  (one goroutine per peer)                  │
//	│  Drains the bounded queue in order onto the connection.   │
//	└──────────────────────────────────────────────────────────┘
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"chatrelay/internal/moderation"
	"chatrelay/internal/protocol"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Options are the relay's tunables; see internal/config for defaults.
type Options struct {
	OutboundCapacity  int
	Line              protocol.LineOptions
	EnqueueTimeout    time.Duration
	FanoutConcurrency int
}

// Server accepts connections and relays lines between them.
type Server struct {
	opts        Options
	log         *slog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	censor      moderation.Censor // nil: relay content verbatim

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[protocol.LineConn]struct{}
	wg        sync.WaitGroup
}

// New creates a Server.  censor may be nil.
func New(log *slog.Logger, opts Options, censor moderation.Censor) *Server {
	if opts.OutboundCapacity <= 0 {
		opts.OutboundCapacity = 128
	}
	registry := NewRegistry()
	return &Server{
		opts:        opts,
		log:         log,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, log, opts.EnqueueTimeout, opts.FanoutConcurrency),
		censor:      censor,
		listeners:   make(map[net.Listener]struct{}),
		conns:       make(map[protocol.LineConn]struct{}),
	}
}

// Peers returns the number of handshaken connections.
func (s *Server) Peers() int { return s.registry.Len() }

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Shutdown is called,
// both of which return nil.  Any other accept error is returned: the relay
// does not try to recover from a broken listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info("Listening", "address", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.log.Info("Accepted connection", "peer", conn.RemoteAddr().String())

		lc := protocol.NewTCPLineConn(conn, s.opts.Line)
		if !s.trackConn(lc) {
			_ = lc.Close()
			continue
		}
		go func() {
			defer s.untrackConn(lc)
			s.serve(ctx, lc)
		}()
	}
}

// ServeConn runs the full lifecycle of an already established connection
// and returns when it is closed.  It is how non-TCP transports join.
func (s *Server) ServeConn(ctx context.Context, conn protocol.LineConn) {
	if !s.trackConn(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrackConn(conn)
	s.serve(ctx, conn)
}

// Shutdown closes every listener and connection, then waits for the
// connection goroutines.  Closed connections take the normal leave path.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	conns := make([]protocol.LineConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	s.log.Info("Server stopped", "connections_closed", len(conns))
}

// serve drives one connection: Connecting → Handshaking → Active → Closed.
func (s *Server) serve(ctx context.Context, conn protocol.LineConn) {
	id := PeerID(conn.RemoteAddr())
	log := s.log.With("peer", id)

	state := StateConnecting
	moveTo := func(next State) {
		log.Debug("Connection state changed", "from", state, "to", next)
		state = next
	}

	moveTo(StateHandshaking)
	username, err := handshake(conn)
	if err != nil {
		if isClosedErr(err) {
			log.Debug("Connection closed before handshake")
		} else {
			log.Warn("Handshake failed", "error", err)
		}
		moveTo(StateClosed)
		_ = conn.Close()
		return
	}

	sess := s.join(ctx, id, username, conn, log)
	moveTo(StateActive)
	s.readLoop(ctx, sess, log)
	moveTo(StateClosed)
	s.leave(ctx, sess, log)
}

func (s *Server) join(ctx context.Context, id PeerID, username string, conn protocol.LineConn, log *slog.Logger) *Session {
	outbox := NewOutbox(s.opts.OutboundCapacity)
	go outbox.Run(conn, log)
	s.registry.Register(id, outbox)

	log.Info("Peer joined", "username", username, "peers", s.registry.Len())
	s.broadcaster.Broadcast(ctx, id, protocol.NewUserJoined(username))
	return &Session{id: id, username: username, conn: conn, outbox: outbox}
}

func (s *Server) readLoop(ctx context.Context, sess *Session, log *slog.Logger) {
	for {
		line, err := sess.conn.ReadLine()
		if err != nil {
			if isClosedErr(err) {
				log.Debug("Stream ended", "username", sess.username)
			} else {
				log.Warn("Failed to read from peer", "username", sess.username, "error", err)
			}
			return
		}

		content := line
		if s.censor != nil {
			content = s.censor.Censor(line)
		}
		log.Debug("Relaying line", "username", sess.username, "bytes", len(line))
		s.broadcaster.Broadcast(ctx, sess.id, protocol.NewChat(sess.username, content))
	}
}

func (s *Server) leave(ctx context.Context, sess *Session, log *slog.Logger) {
	// The broadcaster may already have reaped this entry.
	s.registry.evict(sess.id, sess.outbox)
	sess.outbox.Close()

	s.broadcaster.Broadcast(ctx, sess.id, protocol.NewUserLeft(sess.username))
	log.Info("Peer left", "username", sess.username, "peers", s.registry.Len())

	_ = sess.conn.Close()
	<-sess.outbox.Done()
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

func (s *Server) trackConn(c protocol.LineConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(c protocol.LineConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// isClosedErr reports a normal end of stream, as opposed to a transport fault.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
