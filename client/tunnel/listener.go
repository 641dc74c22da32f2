package tunnel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/julienstroheker/wsockify/internal/logging"
	"github.com/julienstroheker/wsockify/internal/metrics"
	"github.com/julienstroheker/wsockify/internal/relay"
)

const (
	// MinReceiveBufferSize is the smallest buffer used to read from TCP clients
	MinReceiveBufferSize = 1024 * 1024

	// MinSendBufferSize is the smallest buffer used to read from the remote WebSocket
	MinSendBufferSize = 64 * 1024
)

// Unwebsockify listens for local TCP clients and relays each one to a
// fresh WebSocket connection to a fixed remote URL
type Unwebsockify struct {
	service *relay.Service
	dialer  *relay.WebSocketDialer
	logger  *logging.Logger
}

// Options contains configuration for Unwebsockify
type Options struct {
	// RemoteURL is the ws:// or wss:// endpoint every client is relayed to (required)
	RemoteURL string

	// ListenAddr is the local TCP address (e.g., "127.0.0.1:5901")
	ListenAddr string

	// ListenBacklog is the accept backlog, raised to relay.MinListenBacklog
	ListenBacklog int

	// ReceiveBufferSize sizes reads from TCP clients, raised to MinReceiveBufferSize
	ReceiveBufferSize int

	// SendBufferSize sizes reads from the WebSocket, raised to MinSendBufferSize
	SendBufferSize int

	// MaxSessions caps concurrent sessions (0 = unbounded)
	MaxSessions int64

	// DialTimeout bounds each WebSocket handshake (0 = default)
	DialTimeout time.Duration

	// Subprotocols requested from the remote endpoint (optional)
	Subprotocols []string

	// Header is sent with every handshake (optional)
	Header http.Header

	// AcceptErrorHook and SessionErrorHook observe failures (optional, default to logging)
	AcceptErrorHook  relay.ErrorHook
	SessionErrorHook relay.ErrorHook

	// Logger is used for lifecycle and session logging (optional)
	Logger *logging.Logger

	// Metrics records session counters (optional)
	Metrics *metrics.Metrics
}

// New creates an Unwebsockify from opts. The listener is bound by Start.
func New(opts *Options) (*Unwebsockify, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}

	u, err := url.Parse(opts.RemoteURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q: must be ws:// or wss://", opts.RemoteURL)
	}

	dialer, err := relay.NewWebSocketDialer(&relay.WebSocketDialerOptions{
		URL:              opts.RemoteURL,
		Subprotocols:     opts.Subprotocols,
		Header:           opts.Header,
		HandshakeTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket dialer: %w", err)
	}

	r := relay.New(&relay.Options{
		Dialer:            dialer,
		ReceiveBufferSize: max(opts.ReceiveBufferSize, MinReceiveBufferSize),
		SendBufferSize:    max(opts.SendBufferSize, MinSendBufferSize),
		MaxSessions:       opts.MaxSessions,
		DialTimeout:       opts.DialTimeout,
		AcceptErrorHook:   opts.AcceptErrorHook,
		SessionErrorHook:  opts.SessionErrorHook,
		Logger:            opts.Logger,
		Metrics:           opts.Metrics,
	})

	listenAddr := opts.ListenAddr
	backlog := max(opts.ListenBacklog, relay.MinListenBacklog)
	open := func(context.Context) (relay.Listener, error) {
		return relay.ListenTCP(listenAddr, backlog)
	}

	return &Unwebsockify{
		service: relay.NewService(r, open, opts.Logger),
		dialer:  dialer,
		logger:  opts.Logger,
	}, nil
}

// Start binds the TCP listener and relays clients until ctx is done or Stop
// is called. It blocks for the lifetime of the service.
func (u *Unwebsockify) Start(ctx context.Context) error {
	if u.logger != nil {
		u.logger.Info("Starting unwebsockify", logging.String("remote_url", u.dialer.Target()))
	}
	return u.service.Start(ctx)
}

// Ready is closed once the TCP listener is bound
func (u *Unwebsockify) Ready() <-chan struct{} {
	return u.service.Ready()
}

// Addr returns the bound TCP address, or "" before Start
func (u *Unwebsockify) Addr() string {
	return u.service.Addr()
}

// Stop closes the listener and every live session and waits for them
func (u *Unwebsockify) Stop() {
	u.service.Stop()
}

// StopAsync is Stop without waiting; the channel closes when teardown is done
func (u *Unwebsockify) StopAsync() <-chan struct{} {
	return u.service.StopAsync()
}

// Shutdown stops the service, giving up waiting when ctx is done
func (u *Unwebsockify) Shutdown(ctx context.Context) error {
	return u.service.Shutdown(ctx)
}

// Healthy returns nil while the accept loop is running
func (u *Unwebsockify) Healthy() error {
	if state := u.service.State(); state != relay.StateStarted {
		return fmt.Errorf("relay is %s", state)
	}
	return nil
}
