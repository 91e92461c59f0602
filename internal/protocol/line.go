package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"
)

var (
	ErrLineTooLong = errors.New("protocol: line too long")
	ErrInvalidUTF8 = errors.New("protocol: line is not valid UTF-8")
)

// LineConn is a bidirectional stream of text lines.
//
// ReadLine and WriteLine may be called concurrently with each other, but each
// of them must only be used by one goroutine at a time.  ReadLine returns
// io.EOF when the peer closed the stream cleanly.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	RemoteAddr() string
	Close() error
}

// LineOptions bounds a connection's reads and writes.  Zero values disable
// the corresponding limit.
type LineOptions struct {
	MaxLineLength int
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// tcpLineConn frames a net.Conn as newline-delimited lines.
type tcpLineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	opts    LineOptions
}

// NewTCPLineConn wraps conn.  A trailing "\r" is stripped from every line.
func NewTCPLineConn(conn net.Conn, opts LineOptions) LineConn {
	scanner := bufio.NewScanner(conn)
	if opts.MaxLineLength > 0 {
		// The scanner needs room for the delimiter on top of the payload.
		initial := min(4096, opts.MaxLineLength+1)
		scanner.Buffer(make([]byte, 0, initial), opts.MaxLineLength+1)
	}
	return &tcpLineConn{conn: conn, scanner: scanner, opts: opts}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	if c.opts.IdleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout)); err != nil {
			return "", err
		}
	}
	if !c.scanner.Scan() {
		err := c.scanner.Err()
		switch {
		case err == nil:
			return "", io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			return "", fmt.Errorf("%w (max %d bytes)", ErrLineTooLong, c.opts.MaxLineLength)
		default:
			return "", err
		}
	}
	line := c.scanner.Text()
	if !utf8.ValidString(line) {
		return "", ErrInvalidUTF8
	}
	return line, nil
}

func (c *tcpLineConn) WriteLine(line string) error {
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *tcpLineConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *tcpLineConn) Close() error { return c.conn.Close() }
