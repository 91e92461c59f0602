package server

import (
	"fmt"

	"chatrelay/internal/protocol"
)

// State is where a connection is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is a connection that completed the handshake.  The read loop owns
// conn's inbound half; the outbox writer owns the outbound half.
type Session struct {
	id       PeerID
	username string
	conn     protocol.LineConn
	outbox   *Outbox
}

// handshake prompts for a username and reads it.  Any error, io.EOF
// included, means the peer never joined.
func handshake(conn protocol.LineConn) (string, error) {
	if err := conn.WriteLine(protocol.Prompt); err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}
	username, err := conn.ReadLine()
	if err != nil {
		return "", fmt.Errorf("read username: %w", err)
	}
	return username, nil
}
