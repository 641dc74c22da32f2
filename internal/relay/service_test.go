package relay

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func memoryService(front *MemoryListener, dialer Dialer) *Service {
	r := New(&Options{Dialer: dialer})
	return NewService(r, func(context.Context) (Listener, error) {
		return front, nil
	}, nil)
}

func startService(t *testing.T, ctx context.Context, svc *Service) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		errc <- svc.Start(ctx)
	}()

	select {
	case <-svc.Ready():
	case err := <-errc:
		t.Fatalf("Start returned early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Service never became ready")
	}
	return errc
}

func waitStopped(t *testing.T, svc *Service) {
	t.Helper()
	select {
	case <-svc.StopAsync():
	case <-time.After(2 * time.Second):
		t.Fatal("Service did not stop")
	}
}

func TestService_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	front := NewMemoryListener()
	target := NewMemoryListener()
	startEcho(ctx, target)

	svc := memoryService(front, target)
	if svc.State() != StateCreated {
		t.Errorf("Expected created, got %v", svc.State())
	}
	if svc.Addr() != "" {
		t.Errorf("Expected empty address before start, got %q", svc.Addr())
	}

	errc := startService(t, ctx, svc)
	if svc.State() != StateStarted {
		t.Errorf("Expected started, got %v", svc.State())
	}
	if svc.Addr() != "memory" {
		t.Errorf("Expected address 'memory', got %q", svc.Addr())
	}

	client, err := front.Dial(ctx)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if got, err := readWithTimeout(t, client, 4); err != nil || string(got) != "ping" {
		t.Fatalf("Expected 'ping', got %q (%v)", got, err)
	}

	svc.Stop()

	if svc.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", svc.State())
	}
	if err := waitListen(t, errc); err != nil {
		t.Errorf("Expected Start to return nil after Stop, got %v", err)
	}
	if _, err := readWithTimeout(t, client, 1); err == nil {
		t.Error("Expected live session to be closed by Stop")
	}

	// Idempotent
	svc.Stop()
	waitStopped(t, svc)
}

func TestService_StopBeforeStart(t *testing.T) {
	svc := memoryService(NewMemoryListener(), failingDialer{})

	svc.Stop()
	if svc.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", svc.State())
	}
	select {
	case <-svc.Ready():
	default:
		t.Error("Expected Ready to be closed once stopped")
	}

	if err := svc.Start(context.Background()); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Expected ErrServiceClosed, got %v", err)
	}
}

func TestService_StartTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := memoryService(NewMemoryListener(), failingDialer{})
	errc := startService(t, ctx, svc)

	if err := svc.Start(ctx); !errors.Is(err, ErrServiceStarted) {
		t.Errorf("Expected ErrServiceStarted, got %v", err)
	}

	svc.Stop()
	_ = waitListen(t, errc)

	if err := svc.Start(ctx); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Expected ErrServiceClosed after stop, got %v", err)
	}
}

func TestService_OpenFailure(t *testing.T) {
	svc := NewService(New(&Options{Dialer: failingDialer{}}), func(context.Context) (Listener, error) {
		return nil, errBoom
	}, nil)

	if err := svc.Start(context.Background()); !errors.Is(err, errBoom) {
		t.Errorf("Expected open error, got %v", err)
	}
	if svc.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", svc.State())
	}
	select {
	case <-svc.Ready():
	default:
		t.Error("Expected Ready to be closed after the open failure")
	}
	waitStopped(t, svc)

	if err := svc.Start(context.Background()); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Expected ErrServiceClosed, got %v", err)
	}
}

func TestService_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	svc := memoryService(NewMemoryListener(), failingDialer{})
	errc := startService(t, ctx, svc)

	cancel()
	if err := waitListen(t, errc); err != nil {
		t.Errorf("Expected nil after cancellation, got %v", err)
	}
	if svc.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", svc.State())
	}
}

func TestService_AcceptFailureStops(t *testing.T) {
	hook := newHookRecorder()
	r := New(&Options{Dialer: failingDialer{}, AcceptErrorHook: hook})
	svc := NewService(r, func(context.Context) (Listener, error) {
		return brokenListener{}, nil
	}, nil)

	err := svc.Start(context.Background())
	if !errors.Is(err, errBoom) {
		t.Errorf("Expected accept failure from Start, got %v", err)
	}
	if svc.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", svc.State())
	}
	if kinds, _ := hook.snapshot(); len(kinds) != 1 || kinds[0] != KindAccept {
		t.Errorf("Expected one KindAccept report, got %v", kinds)
	}
}

func TestService_AcceptFailureClosesLiveSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := NewMemoryListener()
	startEcho(ctx, target)

	front := newQueueListener()
	r := New(&Options{Dialer: target, AcceptErrorHook: newHookRecorder()})
	svc := NewService(r, func(context.Context) (Listener, error) {
		return front, nil
	}, nil)
	errc := startService(t, ctx, svc)

	client, server := NewPipe()
	front.conns <- server
	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if got, err := readWithTimeout(t, client, 4); err != nil || string(got) != "ping" {
		t.Fatalf("Expected 'ping', got %q (%v)", got, err)
	}

	close(front.conns)

	if err := waitListen(t, errc); !errors.Is(err, errBoom) {
		t.Errorf("Expected accept failure from Start, got %v", err)
	}
	if svc.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", svc.State())
	}
	if _, err := readWithTimeout(t, client, 1); err == nil {
		t.Error("Expected the live session to be closed")
	}
}

func TestService_StopWhileAcceptBlockedOnTCP(t *testing.T) {
	r := New(&Options{Dialer: failingDialer{}})
	svc := NewService(r, func(context.Context) (Listener, error) {
		return ListenTCP("127.0.0.1:0", 0)
	}, nil)

	errc := startService(t, context.Background(), svc)
	addr := svc.Addr()

	waitStopped(t, svc)
	if err := waitListen(t, errc); err != nil {
		t.Errorf("Expected nil after stop, got %v", err)
	}

	// The port is released
	if _, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		t.Error("Expected connection to the stopped listener to fail")
	}
}

func TestService_Shutdown(t *testing.T) {
	svc := memoryService(NewMemoryListener(), failingDialer{})
	errc := startService(t, context.Background(), svc)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
	_ = waitListen(t, errc)
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateCreated:  "created",
		StateStarted:  "started",
		StateStopping: "stopping",
		StateStopped:  "stopped",
		State(42):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
