package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/julienstroheker/wsockify/gateway/tunnel"
	"github.com/julienstroheker/wsockify/internal/logging"
	"github.com/julienstroheker/wsockify/internal/metrics"
)

// lockedBuffer serializes writes from the server goroutines
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_MiddlewareIntegration(t *testing.T) {
	server := NewServer(&Options{Logger: logging.New(logging.ErrorLevel)})

	// Test that telemetry headers are added
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Client-Request-Id", "test-123")
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	resp := w.Result()
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Error closing response body: %v", err)
		}
	}()

	// Verify response has telemetry headers
	clientReqID := resp.Header.Get("X-Client-Request-Id")
	if clientReqID != "test-123" {
		t.Errorf("Expected X-Client-Request-Id header 'test-123', got '%s'", clientReqID)
	}

	requestID := resp.Header.Get("X-Request-Id")
	if requestID == "" {
		t.Error("Expected X-Request-Id header to be present")
	}
}

func TestServer_MiddlewareWithoutClientRequestID(t *testing.T) {
	server := NewServer(&Options{Logger: logging.New(logging.ErrorLevel)})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	resp := w.Result()
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Error closing response body: %v", err)
		}
	}()

	// Verify X-Client-Request-Id is not in response when not provided
	if clientReqID := resp.Header.Get("X-Client-Request-Id"); clientReqID != "" {
		t.Errorf("Expected no X-Client-Request-Id header, got '%s'", clientReqID)
	}

	// Verify X-Request-Id is still present
	if requestID := resp.Header.Get("X-Request-Id"); requestID == "" {
		t.Error("Expected X-Request-Id header to be present")
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	m := metrics.New("test", "websockify")
	server := NewServer(&Options{Logger: logging.New(logging.ErrorLevel), Metrics: m})

	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test_http_requests_total") {
		t.Errorf("Expected request counter in metrics output")
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "GET /healthz", "OK")); got != 1 {
		t.Errorf("Expected 1 healthz request recorded, got %v", got)
	}
}

// TestServer_WebsockifyThroughMiddleware relays a WebSocket client to a TCP
// echo server through the full middleware chain
func TestServer_WebsockifyThroughMiddleware(t *testing.T) {
	echo, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer func() { _ = echo.Close() }()
	go func() {
		for {
			conn, err := echo.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				buf := make([]byte, 1024)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					if _, err := conn.Write(buf[:n]); err != nil {
						return
					}
				}
			}()
		}
	}()

	logs := &lockedBuffer{}
	logger := logging.NewWithOutput(logging.InfoLevel, logs)
	m := metrics.New("test", "websockify")

	ws, err := tunnel.New(&tunnel.Options{
		TargetHost: "127.0.0.1",
		TargetPort: echo.Addr().(*net.TCPAddr).Port,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		t.Fatalf("Failed to create websockify: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ws.Start(ctx) }()
	<-ws.Ready()
	defer ws.Stop()

	server := NewServer(&Options{Websockify: ws.Handler(), Health: ws.Healthy, Logger: logger, Metrics: m})
	url, _ := startServer(t, server)

	dialer := websocket.Dialer{Subprotocols: []string{tunnel.BinarySubprotocol}, HandshakeTimeout: 3 * time.Second}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(url, "http")+DefaultPath, nil)
	if err != nil {
		t.Fatalf("Failed to dial through middleware: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("ping")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(data) != "ping" {
		t.Errorf("Expected 'ping', got %q", data)
	}

	// The handler returns, and is logged, once the relay has taken the connection
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "status=101") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(logs.String(), "status=101") {
		t.Errorf("Expected upgrade to be logged with status 101, got:\n%s", logs.String())
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
}
