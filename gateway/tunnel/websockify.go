package tunnel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/julienstroheker/wsockify/internal/logging"
	"github.com/julienstroheker/wsockify/internal/metrics"
	"github.com/julienstroheker/wsockify/internal/relay"
)

const (
	// MinBufferSize is the smallest accepted buffer size; smaller values use DefaultBufferSize
	MinBufferSize = 1024

	// DefaultBufferSize is used for both copy directions when BufferSize is unset or too small
	DefaultBufferSize = 64 * 1024

	// BinarySubprotocol is selected when a client offers it, as noVNC does
	BinarySubprotocol = "binary"
)

// Websockify accepts WebSocket connections on an HTTP route and relays each
// one to a fresh TCP connection to a fixed target
type Websockify struct {
	listener *relay.WebSocketListener
	service  *relay.Service
	target   string
	logger   *logging.Logger
}

// Options configures Websockify
type Options struct {
	// TargetHost is the TCP host every client is relayed to (required)
	TargetHost string

	// TargetPort is the TCP port, 1 to 65535 (required)
	TargetPort int

	// BufferSize is used for both copy directions
	BufferSize int

	// MaxSessions caps concurrent sessions (0 = unbounded)
	MaxSessions int64

	// DialTimeout bounds each TCP dial (0 = default)
	DialTimeout time.Duration

	// Subprotocols the upgrader may select (defaults to BinarySubprotocol)
	Subprotocols []string

	// CheckOrigin decides whether to accept a cross-origin upgrade (defaults to allow all)
	CheckOrigin func(r *http.Request) bool

	// Path is where the handler is mounted, used in logs
	Path string

	AcceptErrorHook  relay.ErrorHook
	SessionErrorHook relay.ErrorHook

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// New creates a Websockify from opts
func New(opts *Options) (*Websockify, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if opts.TargetHost == "" {
		return nil, fmt.Errorf("target host is required")
	}
	if opts.TargetPort < 1 || opts.TargetPort > 65535 {
		return nil, fmt.Errorf("invalid target port %d: must be between 1 and 65535", opts.TargetPort)
	}

	bufferSize := opts.BufferSize
	if bufferSize < MinBufferSize {
		bufferSize = DefaultBufferSize
	}

	subprotocols := opts.Subprotocols
	if len(subprotocols) == 0 {
		subprotocols = []string{BinarySubprotocol}
	}

	listener := relay.NewWebSocketListener(&relay.WebSocketListenerOptions{
		Addr:         opts.Path,
		Subprotocols: subprotocols,
		CheckOrigin:  opts.CheckOrigin,
		Logger:       opts.Logger,
	})

	dialer := relay.NewTCPDialer(opts.TargetHost, opts.TargetPort)
	r := relay.New(&relay.Options{
		Dialer:            dialer,
		ReceiveBufferSize: bufferSize,
		SendBufferSize:    bufferSize,
		MaxSessions:       opts.MaxSessions,
		DialTimeout:       opts.DialTimeout,
		AcceptErrorHook:   opts.AcceptErrorHook,
		SessionErrorHook:  opts.SessionErrorHook,
		Logger:            opts.Logger,
		Metrics:           opts.Metrics,
	})

	open := func(context.Context) (relay.Listener, error) {
		return listener, nil
	}

	return &Websockify{
		listener: listener,
		service:  relay.NewService(r, open, opts.Logger),
		target:   dialer.Target(),
		logger:   opts.Logger,
	}, nil
}

// Handler returns the http.Handler that upgrades clients. Mount it on the
// route clients connect to; upgrades wait until Start is running.
func (w *Websockify) Handler() http.Handler {
	return w.listener
}

// Target returns the TCP host:port sessions are relayed to
func (w *Websockify) Target() string {
	return w.target
}

// Start relays upgraded connections until ctx is done or Stop is called.
// It blocks for the lifetime of the service.
func (w *Websockify) Start(ctx context.Context) error {
	if w.logger != nil {
		w.logger.Info("Starting websockify", logging.String("target", w.target))
	}
	return w.service.Start(ctx)
}

// Ready is closed once the accept loop is running
func (w *Websockify) Ready() <-chan struct{} {
	return w.service.Ready()
}

// Stop rejects new upgrades, closes every live session and waits for them
func (w *Websockify) Stop() {
	<-w.StopAsync()
}

// StopAsync is Stop without waiting. The listener is also closed when the
// service was never started, so pending upgrades are released.
func (w *Websockify) StopAsync() <-chan struct{} {
	stopped := w.service.StopAsync()
	done := make(chan struct{})
	go func() {
		<-stopped
		_ = w.listener.Close()
		close(done)
	}()
	return done
}

// Shutdown stops the service, giving up waiting when ctx is done
func (w *Websockify) Shutdown(ctx context.Context) error {
	select {
	case <-w.StopAsync():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Healthy returns nil while the accept loop is running
func (w *Websockify) Healthy() error {
	if state := w.service.State(); state != relay.StateStarted {
		return fmt.Errorf("relay is %s", state)
	}
	return nil
}
