package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"aggregator/pkg/exception"
)

type dialer struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// NewDialer returns a Dialer for a ws:// or wss:// endpoint.
func NewDialer(url string) Dialer {
	return &dialer{
		URL:              url,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
	}
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	dialer := gws.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", d.URL)
	}

	return &wsConn{
		conn:         conn,
		writeTimeout: d.WriteTimeout,
	}, nil
}

type wsConn struct {
	conn         *gws.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Read blocks until a data message arrives. Only one goroutine may read at a time.
func (c *wsConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if c == nil || c.conn == nil {
		return 0, nil, exception.ErrWebSocketNilConn
	}
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetReadDeadline(deadline)

	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		if gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
			return 0, nil, errors.Wrap(exception.ErrWebSocketConnectionClose, err.Error())
		}
		return 0, nil, err
	}

	return MessageType(msgType), payload, nil
}

func (c *wsConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	if c == nil || c.conn == nil {
		return exception.ErrWebSocketNilConn
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(int(msgType), payload)
}

// Close sends a close frame and tears down the socket. Safe to call more than once.
func (c *wsConn) Close(code CloseCode, reason string) error {
	if c == nil || c.conn == nil {
		return exception.ErrWebSocketNilConn
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(int(code), reason), time.Now().Add(c.writeTimeout))
		c.mu.Unlock()
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}
