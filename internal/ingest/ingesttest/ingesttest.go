// Package ingesttest provides fake venue endpoints for connector tests.
package ingesttest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gws "github.com/gorilla/websocket"

	"aggregator/pkg/exception"
	"aggregator/pkg/websocket"
)

// NewServer starts a WebSocket endpoint that runs script for every accepted
// connection. The connection is closed when script returns.
func NewServer(t testing.TB, script func(conn *gws.Conn)) (url string) {
	t.Helper()
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// Frame is one scripted inbound message. A non-nil Err is returned by Read
// instead of a message.
type Frame struct {
	Type    websocket.MessageType
	Payload []byte
	Err     error
}

// Text is a text frame.
func Text(payload string) Frame {
	return Frame{Type: websocket.MessageText, Payload: []byte(payload)}
}

// Conn is an in-memory websocket.Conn fed from a channel.
type Conn struct {
	Inbound chan Frame

	mu      sync.Mutex
	written [][]byte
	closed  chan struct{}
	once    sync.Once
}

// NewConn creates a connection with a buffered inbound queue.
func NewConn(frames ...Frame) *Conn {
	c := &Conn{
		Inbound: make(chan Frame, len(frames)+16),
		closed:  make(chan struct{}),
	}
	for _, f := range frames {
		c.Inbound <- f
	}
	return c
}

func (c *Conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case f := <-c.Inbound:
		if f.Err != nil {
			return 0, nil, f.Err
		}
		return f.Type, f.Payload, nil
	case <-c.closed:
		return 0, nil, exception.ErrWebSocketConnectionClose
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *Conn) Write(_ context.Context, _ websocket.MessageType, payload []byte) error {
	select {
	case <-c.closed:
		return exception.ErrWebSocketConnectionClose
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, append([]byte(nil), payload...))
	c.mu.Unlock()
	return nil
}

func (c *Conn) Close(websocket.CloseCode, string) error {
	c.once.Do(func() {
		close(c.closed)
	})
	return nil
}

// Written returns a copy of every payload written so far.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
