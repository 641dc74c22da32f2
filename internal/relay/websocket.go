package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/julienstroheker/wsockify/internal/logging"
)

// closeGracePeriod bounds how long sending the close frame may block
const closeGracePeriod = time.Second

// wsConnection adapts a *websocket.Conn to Connection.
// One goroutine may read while another writes.
type wsConnection struct {
	conn   *websocket.Conn
	reader io.Reader
	rmu    sync.Mutex
	wmu    sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewWebSocketConnection wraps conn. Reads stream message payloads, any close
// frame reads as io.EOF, and every Write is sent as one binary message.
func NewWebSocketConnection(conn *websocket.Conn) Connection {
	return &wsConnection{conn: conn}
}

// Read reads from the current message, advancing to the next one when it is drained
func (c *wsConnection) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.conn.NextReader()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			// Empty message, move on to the next one
			continue
		}
		return n, err
	}
}

// Write sends p as a single binary message
func (c *wsConnection) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal-closure close frame with an empty reason, then closes
// the socket. Failure to send the frame is ignored: the peer may already be gone.
func (c *wsConnection) Close() error {
	return c.CloseWithStatus(websocket.CloseNormalClosure, "")
}

// CloseWithStatus closes with the given close code and reason text
func (c *wsConnection) CloseWithStatus(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}

// WebSocketDialerOptions contains configuration for a WebSocketDialer
type WebSocketDialerOptions struct {
	// URL is the ws:// or wss:// endpoint to connect to (required)
	URL string

	// Subprotocols requested during the handshake (optional)
	Subprotocols []string

	// Header is sent with the handshake request (optional)
	Header http.Header

	// HandshakeTimeout bounds the opening handshake (optional, defaults to 30s, negative disables)
	HandshakeTimeout time.Duration
}

// WebSocketDialer opens outbound WebSocket connections to a fixed URL
type WebSocketDialer struct {
	url    string
	header http.Header
	dialer websocket.Dialer
}

// NewWebSocketDialer creates a new WebSocket dialer
func NewWebSocketDialer(opts *WebSocketDialerOptions) (*WebSocketDialer, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("websocket url is required")
	}

	// Zero means the default, negative means unbounded
	timeout := opts.HandshakeTimeout
	switch {
	case timeout == 0:
		timeout = DefaultDialTimeout
	case timeout < 0:
		timeout = 0
	}

	return &WebSocketDialer{
		url:    opts.URL,
		header: opts.Header,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
			Subprotocols:     opts.Subprotocols,
		},
	}, nil
}

// Dial performs the WebSocket handshake
func (d *WebSocketDialer) Dial(ctx context.Context) (Connection, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("websocket handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket handshake failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return NewWebSocketConnection(conn), nil
}

// Target returns the WebSocket URL
func (d *WebSocketDialer) Target() string {
	return d.url
}

// WebSocketListener is an http.Handler that upgrades requests and queues the
// resulting connections for Accept.
type WebSocketListener struct {
	upgrader    websocket.Upgrader
	acceptQueue chan Connection
	done        chan struct{}
	addr        string
	logger      *logging.Logger

	mu     sync.Mutex
	closed bool
}

// WebSocketListenerOptions contains configuration for a WebSocketListener
type WebSocketListenerOptions struct {
	// Addr describes where the handler is mounted, for logs
	Addr string

	// Subprotocols the server is willing to select (optional)
	Subprotocols []string

	// CheckOrigin decides whether to accept a cross-origin request (optional, defaults to allow all)
	CheckOrigin func(r *http.Request) bool

	// Logger is used for upgrade failures (optional)
	Logger *logging.Logger
}

// NewWebSocketListener creates a new WebSocket listener
func NewWebSocketListener(opts *WebSocketListenerOptions) *WebSocketListener {
	if opts == nil {
		opts = &WebSocketListenerOptions{}
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &WebSocketListener{
		upgrader: websocket.Upgrader{
			Subprotocols: opts.Subprotocols,
			CheckOrigin:  checkOrigin,
		},
		acceptQueue: make(chan Connection),
		done:        make(chan struct{}),
		addr:        opts.Addr,
		logger:      opts.Logger,
	}
}

// ServeHTTP rejects non-upgrade requests with 400 and hands upgraded
// connections to Accept. It returns once the connection has been accepted,
// the request is cancelled, or the listener is closed.
func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "WebSocket upgrade required", http.StatusBadRequest)
		return
	}

	select {
	case <-l.done:
		http.Error(w, "Listener closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		if l.logger != nil {
			l.logger.Warn("WebSocket upgrade failed",
				logging.String("remote_addr", r.RemoteAddr),
				logging.Error(err))
		}
		return
	}

	wsConn := NewWebSocketConnection(conn)
	select {
	case l.acceptQueue <- wsConn:
	case <-l.done:
		_ = wsConn.Close()
	case <-r.Context().Done():
		_ = wsConn.Close()
	}
}

// Accept waits for and returns the next upgraded connection
func (l *WebSocketListener) Accept(ctx context.Context) (Connection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrListenerClosed
	case conn := <-l.acceptQueue:
		return conn, nil
	}
}

// Close stops accepting; pending upgrades are closed by their handlers
func (l *WebSocketListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	close(l.done)
	return nil
}

// Addr returns the mount description
func (l *WebSocketListener) Addr() string {
	return l.addr
}

var _ Connection = (*wsConnection)(nil)
var _ Listener = (*WebSocketListener)(nil)
var _ Dialer = (*WebSocketDialer)(nil)
var _ http.Handler = (*WebSocketListener)(nil)
