package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/julienstroheker/wsockify/internal/logging"
	"github.com/julienstroheker/wsockify/internal/metrics"
)

const (
	// DefaultBufferSize is used when a buffer size is not set
	DefaultBufferSize = 64 * 1024

	// DefaultDialTimeout bounds how long the outbound dial may take
	DefaultDialTimeout = 30 * time.Second
)

// Options contains configuration for a Relay
type Options struct {
	// Dialer opens the outbound side of every session (required)
	Dialer Dialer

	// ReceiveBufferSize sizes the buffer for the inbound-reading direction
	ReceiveBufferSize int

	// SendBufferSize sizes the buffer for the outbound-reading direction
	SendBufferSize int

	// MaxSessions caps concurrently live sessions. Zero means unbounded.
	MaxSessions int64

	// DialTimeout bounds the outbound dial. Zero uses DefaultDialTimeout,
	// a negative value disables the bound.
	DialTimeout time.Duration

	// AcceptErrorHook observes accept failures (defaults to LogHook(Logger))
	AcceptErrorHook ErrorHook

	// SessionErrorHook observes dial and transfer failures (defaults to LogHook(Logger))
	SessionErrorHook ErrorHook

	// Logger is used for session logging (optional)
	Logger *logging.Logger

	// Metrics records session counters (optional)
	Metrics *metrics.Metrics
}

// Relay pairs accepted connections with dialed ones and copies bytes both ways
type Relay struct {
	dialer      Dialer
	recvSize    int
	sendSize    int
	dialTimeout time.Duration
	sem         *semaphore.Weighted
	acceptHook  ErrorHook
	sessionHook ErrorHook
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// New creates a Relay from opts
func New(opts *Options) *Relay {
	if opts == nil {
		opts = &Options{}
	}

	recv := opts.ReceiveBufferSize
	if recv <= 0 {
		recv = DefaultBufferSize
	}
	send := opts.SendBufferSize
	if send <= 0 {
		send = DefaultBufferSize
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = DefaultDialTimeout
	}

	acceptHook := opts.AcceptErrorHook
	if acceptHook == nil {
		acceptHook = LogHook(opts.Logger)
	}
	sessionHook := opts.SessionErrorHook
	if sessionHook == nil {
		sessionHook = LogHook(opts.Logger)
	}

	r := &Relay{
		dialer:      opts.Dialer,
		recvSize:    recv,
		sendSize:    send,
		dialTimeout: dialTimeout,
		acceptHook:  acceptHook,
		sessionHook: sessionHook,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if opts.MaxSessions > 0 {
		r.sem = semaphore.NewWeighted(opts.MaxSessions)
	}
	return r
}

// Listen accepts connections from l and serves each one in its own goroutine
// until ctx is done or Accept fails. Cancellation is a normal return (nil).
// An accept failure cancels the sessions still running. Listen does not
// return before every session it spawned has finished.
func (r *Relay) Listen(ctx context.Context, l Listener) error {
	var sessions sync.WaitGroup
	defer sessions.Wait()

	// Deferred after sessions.Wait so it runs first: an accept failure
	// cancels live sessions instead of waiting on them.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.logger != nil {
		r.logger.Info("Accepting connections", logging.String("addr", l.Addr()))
	}

	for {
		if r.sem != nil {
			if err := r.sem.Acquire(ctx, 1); err != nil {
				r.stopped(l)
				return nil
			}
		}

		conn, err := l.Accept(ctx)
		if err != nil {
			r.release()
			if ctx.Err() != nil {
				r.stopped(l)
				return nil
			}
			report(ctx, r.acceptHook, KindAccept, &SessionError{Kind: KindAccept, Err: err})
			r.metrics.AcceptError()
			return fmt.Errorf("accept on %s: %w", l.Addr(), err)
		}

		sessions.Add(1)
		go func() {
			defer sessions.Done()
			defer r.release()
			r.Serve(ctx, conn)
		}()
	}
}

func (r *Relay) stopped(l Listener) {
	if r.logger != nil {
		r.logger.Info("Accept loop stopped", logging.String("addr", l.Addr()))
	}
}

func (r *Relay) release() {
	if r.sem != nil {
		r.sem.Release(1)
	}
}

// Serve relays one inbound connection until either side finishes, ctx is
// done, or a copy fails. Both endpoints are closed when Serve returns.
// Errors go to the session hook and are never returned.
func (r *Relay) Serve(ctx context.Context, inbound Connection) {
	sessionID := uuid.New().String()
	start := time.Now()

	var log *logging.Logger
	if r.logger != nil {
		log = r.logger.With(logging.String("session_id", sessionID))
		log.Debug("Session opened", logging.String("target", r.target()))
	}

	r.metrics.SessionStarted()
	outcome := NormalEOF.String()
	defer func() {
		r.metrics.SessionFinished(outcome, time.Since(start))
		if log != nil {
			log.Debug("Session closed",
				logging.String("outcome", outcome),
				logging.Duration("duration", time.Since(start)))
		}
	}()

	outbound, err := r.dial(ctx)
	if err != nil {
		_ = inbound.Close()
		if ctx.Err() != nil {
			outcome = Cancelled.String()
			return
		}
		outcome = "dial_error"
		r.fail(ctx, KindDial, sessionID, fmt.Errorf("dial %s: %w", r.target(), err))
		return
	}

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = outbound.Close()
			_ = inbound.Close()
		})
	}
	// Cancellation unblocks pending reads and writes by closing both sides.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	results := make(chan directed, 2)
	go func() {
		res := Copy(ctx, outbound, inbound, make([]byte, r.recvSize))
		results <- directed{dir: metrics.Upstream, res: res}
	}()
	go func() {
		res := Copy(ctx, inbound, outbound, make([]byte, r.sendSize))
		results <- directed{dir: metrics.Downstream, res: res}
	}()

	first := <-results
	closeBoth()
	second := <-results

	r.metrics.BytesRelayed(first.dir, first.res.Bytes)
	r.metrics.BytesRelayed(second.dir, second.res.Bytes)

	outcome = first.res.Outcome.String()
	if first.res.Outcome == Failed {
		r.fail(ctx, KindTransfer, sessionID, fmt.Errorf("%s copy: %w", first.dir, first.res.Err))
	}
}

type directed struct {
	dir string
	res CopyResult
}

func (r *Relay) target() string {
	if r.dialer == nil {
		return "<none>"
	}
	return r.dialer.Target()
}

func (r *Relay) dial(ctx context.Context) (Connection, error) {
	if r.dialer == nil {
		return nil, errors.New("no dialer configured")
	}
	if r.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.dialTimeout)
		defer cancel()
	}
	return r.dialer.Dial(ctx)
}

func (r *Relay) fail(ctx context.Context, kind ErrorKind, sessionID string, err error) {
	r.metrics.SessionError(kind.String())
	report(ctx, r.sessionHook, kind, &SessionError{Kind: kind, SessionID: sessionID, Err: err})
}
