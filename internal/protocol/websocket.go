package protocol

import (
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// wsLineConn carries one line per WebSocket text frame.
type wsLineConn struct {
	conn *websocket.Conn
	addr string
	opts LineOptions
}

// NewWebSocketLineConn wraps an upgraded connection.  addr identifies the
// peer; the HTTP request's RemoteAddr is the natural choice.
func NewWebSocketLineConn(conn *websocket.Conn, addr string, opts LineOptions) LineConn {
	if opts.MaxLineLength > 0 {
		conn.SetReadLimit(int64(opts.MaxLineLength) + 1)
	}
	return &wsLineConn{conn: conn, addr: addr, opts: opts}
}

func (c *wsLineConn) ReadLine() (string, error) {
	for {
		if c.opts.IdleTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout)); err != nil {
				return "", err
			}
		}
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", ErrLineTooLong
			}
			return "", err
		}
		if mt != websocket.TextMessage {
			continue
		}
		line := strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r")
		if !utf8.ValidString(line) {
			return "", ErrInvalidUTF8
		}
		return line, nil
	}
}

func (c *wsLineConn) WriteLine(line string) error {
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsLineConn) RemoteAddr() string { return c.addr }

func (c *wsLineConn) Close() error { return c.conn.Close() }
