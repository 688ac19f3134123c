package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn wraps a single WebSocket connection so it can live in the pool.
type wsConn struct {
	url     string
	headers http.Header
	dialer  *websocket.Dialer
	mu      sync.Mutex
	conn    *websocket.Conn
}

func (c *wsConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn
	return nil
}

// roundTrip writes one message and waits for the next message back.
func (c *wsConn) roundTrip(deadline time.Time, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	if !deadline.IsZero() {
		c.conn.SetWriteDeadline(deadline)
		c.conn.SetReadDeadline(deadline)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return data, nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)

	closeErr := c.conn.Close()
	c.conn = nil

	if err != nil {
		return err
	}
	return closeErr
}

// WSRequester issues request/response exchanges over WebSocket. Each step
// body is sent as one text frame and the next inbound frame is treated as
// the response. Connections are pooled per target+headers.
type WSRequester struct {
	pool    *connPool
	dialer  *websocket.Dialer
	timeout time.Duration
}

// WSOptions tune the WebSocket requester.
type WSOptions struct {
	Timeout          time.Duration
	HandshakeTimeout time.Duration
	PoolSize         int
}

func NewWSRequester(opts WSOptions) *WSRequester {
	handshake := opts.HandshakeTimeout
	if handshake == 0 {
		handshake = 30 * time.Second
	}
	return &WSRequester{
		pool: newConnPool(opts.PoolSize),
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshake,
			Proxy:            http.ProxyFromEnvironment,
		},
		timeout: opts.Timeout,
	}
}

func (w *WSRequester) Do(ctx context.Context, req Request) (Response, error) {
	headers := make(http.Header, len(req.Headers))
	for key, value := range req.Headers {
		headers.Set(key, value)
	}
	key := poolKey(req.URL, req.Headers)

	factory := func() poolable {
		return &wsConn{url: req.URL, headers: headers, dialer: w.dialer}
	}

	client, reused := w.pool.get(key, factory)
	conn := client.(*wsConn)

	start := time.Now()

	if !reused {
		if err := conn.Connect(ctx); err != nil {
			return Response{Latency: time.Since(start)}, err
		}
	}

	deadline := time.Time{}
	if w.timeout > 0 {
		deadline = time.Now().Add(w.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	data, err := conn.roundTrip(deadline, req.Body)
	latency := time.Since(start)
	if err != nil {
		// A pooled connection may have gone stale; redial once before
		// reporting failure.
		if reused {
			if fresh, ok := w.pool.redial(ctx, conn, factory); ok {
				conn = fresh.(*wsConn)
				data, err = conn.roundTrip(deadline, req.Body)
				latency = time.Since(start)
			}
		}
		if err != nil {
			conn.Close()
			return Response{Latency: latency}, err
		}
	}

	w.pool.put(key, conn)

	return Response{
		StatusCode: http.StatusOK,
		Body:       data,
		Bytes:      int64(len(data)),
		Latency:    latency,
	}, nil
}

func (w *WSRequester) Close() error {
	return w.pool.closeAll()
}
