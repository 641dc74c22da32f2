package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/julienstroheker/wsockify/internal/logging"
)

// State is a Service lifecycle state
type State int

const (
	// StateCreated is a service that has not been started
	StateCreated State = iota
	// StateStarted is a service whose accept loop is running
	StateStarted
	// StateStopping is a service tearing down
	StateStopping
	// StateStopped is a service that released its listener; it cannot be restarted
	StateStopped
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ListenFunc binds or prepares the listener when a Service starts
type ListenFunc func(ctx context.Context) (Listener, error)

// Service owns one listener and the relay accept loop running on it.
// A Service is single-use: once stopped it cannot be started again.
type Service struct {
	relay  *Relay
	open   ListenFunc
	logger *logging.Logger

	mu       sync.Mutex
	state    State
	listener Listener
	cancel   context.CancelFunc
	ready    chan struct{}
	loopDone chan struct{}
	stopped  chan struct{}
}

// NewService creates a Service that serves relay on the listener returned by open
func NewService(relay *Relay, open ListenFunc, logger *logging.Logger) *Service {
	return &Service{
		relay:    relay,
		open:     open,
		logger:   logger,
		ready:    make(chan struct{}),
		loopDone: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start binds the listener and runs the accept loop until ctx is done, Stop
// is called, or accept fails. It blocks for the lifetime of the loop; run it
// on its own goroutine for fire-and-forget use. When Start returns the
// service is stopped and the listener released, including when the listener
// could not be opened.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStarted:
		s.mu.Unlock()
		return ErrServiceStarted
	case StateStopping, StateStopped:
		s.mu.Unlock()
		return ErrServiceClosed
	}

	ln, err := s.open(ctx)
	if err != nil {
		s.closeUnstarted()
		s.mu.Unlock()
		return fmt.Errorf("failed to open listener: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel
	s.state = StateStarted
	close(s.ready)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("Service started", logging.String("addr", ln.Addr()))
	}

	errc := make(chan error, 1)
	go func() {
		defer close(s.loopDone)
		errc <- s.relay.Listen(runCtx, ln)
	}()

	err = <-errc
	<-s.StopAsync()
	return err
}

// Ready is closed once the service leaves the created state: either the
// listener is bound, or the service stopped without ever binding one. Check
// State to tell the two apart.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or "" before Start
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// State returns the current lifecycle state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop cancels the accept loop and every live session, waits for them to
// return and releases the listener. Calling Stop more than once is a no-op.
func (s *Service) Stop() {
	<-s.StopAsync()
}

// StopAsync performs Stop without blocking. The returned channel is closed
// once teardown has completed.
func (s *Service) StopAsync() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopping, StateStopped:
		return s.stopped
	case StateCreated:
		s.closeUnstarted()
		return s.stopped
	}

	s.state = StateStopping
	cancel, ln := s.cancel, s.listener
	go func() {
		cancel()
		<-s.loopDone
		if err := ln.Close(); err != nil && s.logger != nil {
			s.logger.Warn("Failed to close listener", logging.Error(err))
		}

		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()

		if s.logger != nil {
			s.logger.Info("Service stopped", logging.String("addr", ln.Addr()))
		}
		close(s.stopped)
	}()
	return s.stopped
}

// closeUnstarted moves a service that never bound a listener straight to
// stopped. Callers hold s.mu.
func (s *Service) closeUnstarted() {
	s.state = StateStopped
	close(s.ready)
	close(s.stopped)
}

// Shutdown stops the service, giving up waiting when ctx is done
func (s *Service) Shutdown(ctx context.Context) error {
	select {
	case <-s.StopAsync():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
