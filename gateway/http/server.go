package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/julienstroheker/wsockify/gateway/http/handlers"
	"github.com/julienstroheker/wsockify/gateway/http/middleware"
	"github.com/julienstroheker/wsockify/internal/logging"
	"github.com/julienstroheker/wsockify/internal/metrics"
)

// DefaultPath is the route WebSocket clients connect to
const DefaultPath = "/websockify"

// Server represents the HTTP server fronting the websockify relay
type Server struct {
	server *http.Server
	logger *logging.Logger
	path   string
}

// Options configures the HTTP server
type Options struct {
	// Addr is the listen address (defaults to ":8080")
	Addr string

	// Websockify upgrades and relays WebSocket clients (optional)
	Websockify http.Handler

	// Path is where Websockify is mounted (defaults to DefaultPath)
	Path string

	// Health backs /healthz (optional)
	Health handlers.HealthCheck

	// Logger is used by the request logging middleware
	Logger *logging.Logger

	// Metrics is served on /metrics and records request counts (optional)
	Metrics *metrics.Metrics
}

// NewServer creates a new HTTP server instance
func NewServer(opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}

	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.InfoLevel)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handlers.NewHealthHandler(opts.Health))

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	if opts.Websockify != nil {
		mux.Handle(path, opts.Websockify)
	}

	// Apply middleware chain (order matters: Telemetry -> Logger -> Metrics -> Handler)
	var handler http.Handler = mux
	handler = middleware.Metrics(opts.Metrics)(handler)
	handler = middleware.Logger(logger)(handler)
	handler = middleware.Telemetry(handler)

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
		path:   path,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening",
		logging.String("addr", s.server.Addr),
		logging.String("path", s.path))
	return s.server.ListenAndServe()
}

// Serve accepts connections on ln
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening",
		logging.String("addr", ln.Addr().String()),
		logging.String("path", s.path))
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the server. Upgraded WebSocket
// connections are not tracked by the server and must be stopped by the relay.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.server.Close()
}

// Addr returns the address the server is configured to listen on
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the full handler chain
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
