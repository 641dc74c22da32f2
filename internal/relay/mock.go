package relay

import (
	"context"
	"io"
	"sync"
)

// memoryConnection represents an in-memory bidirectional pipe
type memoryConnection struct {
	reader *io.PipeReader
	writer *io.PipeWriter
	mu     sync.Mutex
	closed bool
}

// NewPipe returns two connected in-memory connections. Bytes written to one
// are read from the other; closing either side ends reads on the peer with io.EOF.
func NewPipe() (Connection, Connection) {
	// Pipe 1: a writes -> b reads
	bReader, aWriter := io.Pipe()
	// Pipe 2: b writes -> a reads
	aReader, bWriter := io.Pipe()

	a := &memoryConnection{reader: aReader, writer: aWriter}
	b := &memoryConnection{reader: bReader, writer: bWriter}
	return a, b
}

// Read reads data from the connection
func (c *memoryConnection) Read(p []byte) (n int, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	c.mu.Unlock()
	return c.reader.Read(p)
}

// Write writes data to the connection
func (c *memoryConnection) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	c.mu.Unlock()
	return c.writer.Write(p)
}

// Close closes the connection
func (c *memoryConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.reader.Close()
	_ = c.writer.Close()
	return nil
}

// MemoryListener is an in-memory implementation of Listener for testing
type MemoryListener struct {
	connections chan Connection
	done        chan struct{}
	mu          sync.Mutex
	closed      bool
}

// NewMemoryListener creates a new in-memory listener
func NewMemoryListener() *MemoryListener {
	return &MemoryListener{
		connections: make(chan Connection),
		done:        make(chan struct{}),
	}
}

// Accept waits for and returns the next connection
func (l *MemoryListener) Accept(ctx context.Context) (Connection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrListenerClosed
	case conn := <-l.connections:
		return conn, nil
	}
}

// Dial creates a pipe, hands one side to Accept and returns the other
func (l *MemoryListener) Dial(ctx context.Context) (Connection, error) {
	local, remote := NewPipe()
	select {
	case l.connections <- remote:
		return local, nil
	case <-l.done:
		_ = local.Close()
		_ = remote.Close()
		return nil, ErrListenerClosed
	case <-ctx.Done():
		_ = local.Close()
		_ = remote.Close()
		return nil, ctx.Err()
	}
}

// Target satisfies Dialer so a MemoryListener can be a relay's outbound side
func (l *MemoryListener) Target() string {
	return "memory"
}

// Close closes the listener
func (l *MemoryListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return nil
}

// Addr returns a fixed name
func (l *MemoryListener) Addr() string {
	return "memory"
}

var _ Listener = (*MemoryListener)(nil)
var _ Dialer = (*MemoryListener)(nil)
