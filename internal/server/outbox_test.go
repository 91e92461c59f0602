package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/protocol"
)

// recordingConn is a LineConn that keeps written lines and can be told to
// fail writes.
type recordingConn struct {
	mu      sync.Mutex
	written chan string
	fail    error
}

func newRecordingConn() *recordingConn {
	return &recordingConn{written: make(chan string, 1024)}
}

func (c *recordingConn) ReadLine() (string, error) { return "", errors.New("not readable") }

func (c *recordingConn) WriteLine(line string) error {
	c.mu.Lock()
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return fail
	}
	c.written <- line
	return nil
}

func (c *recordingConn) RemoteAddr() string { return "recording" }
func (c *recordingConn) Close() error       { return nil }

func (c *recordingConn) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *recordingConn) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-c.written:
		return line
	case <-time.After(time.Second):
		t.Fatal("no line written")
		return ""
	}
}

func testLogger() *slog.Logger { return logs.GetLoggerFromLevel(slog.LevelDebug) }

func TestOutbox_DeliversInOrder(t *testing.T) {
	req := require.New(t)
	conn := newRecordingConn()
	outbox := NewOutbox(128)
	go outbox.Run(conn, testLogger())
	defer outbox.Close()

	// When several messages are enqueued
	for _, content := range []string{"one", "two", "three"} {
		req.NoError(outbox.Enqueue(context.Background(), protocol.NewChat("A", content)))
	}

	// Then they are written rendered, in enqueue order
	req.Equal("A: one", conn.next(t))
	req.Equal("A: two", conn.next(t))
	req.Equal("A: three", conn.next(t))
}

func TestOutbox_FullQueueBlocks(t *testing.T) {
	req := require.New(t)

	// Given an outbox whose writer is not running and whose queue is full
	outbox := NewOutbox(2)
	req.NoError(outbox.Enqueue(context.Background(), protocol.NewChat("A", "1")))
	req.NoError(outbox.Enqueue(context.Background(), protocol.NewChat("A", "2")))
	req.Equal(2, outbox.Len())

	// When enqueueing one more, it waits instead of dropping
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := outbox.Enqueue(ctx, protocol.NewChat("A", "3"))

	// Then only the caller's deadline ends the wait and nothing was lost
	req.ErrorIs(err, context.DeadlineExceeded)
	req.Equal(2, outbox.Len())
}

func TestOutbox_EnqueueAfterClose(t *testing.T) {
	req := require.New(t)
	outbox := NewOutbox(4)
	go outbox.Run(newRecordingConn(), testLogger())

	outbox.Close()
	outbox.Close()

	req.ErrorIs(outbox.Enqueue(context.Background(), protocol.NewUserJoined("x")), ErrPeerGone)
	select {
	case <-outbox.Done():
	case <-time.After(time.Second):
		req.Fail("writer did not stop after Close")
	}
}

func TestOutbox_WriteFailureStopsWriter(t *testing.T) {
	req := require.New(t)
	conn := newRecordingConn()
	conn.failWith(errors.New("broken pipe"))
	outbox := NewOutbox(4)
	go outbox.Run(conn, testLogger())

	// When a write fails
	req.NoError(outbox.Enqueue(context.Background(), protocol.NewChat("A", "lost")))

	// Then the writer exits without retrying
	select {
	case <-outbox.Done():
	case <-time.After(time.Second):
		req.Fail("writer did not stop after a write error")
	}

	// And the dead peer is reported to later senders
	req.ErrorIs(outbox.Enqueue(context.Background(), protocol.NewChat("A", "again")), ErrPeerGone)
}
