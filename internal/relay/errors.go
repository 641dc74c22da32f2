package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrListenerClosed is returned when trying to accept on a closed listener
	ErrListenerClosed = errors.New("listener is closed")
	// ErrConnectionClosed is returned when trying to read/write on a closed connection
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrServiceClosed is returned when starting a service that was already stopped
	ErrServiceClosed = errors.New("service is closed")
	// ErrServiceStarted is returned when starting a service twice
	ErrServiceStarted = errors.New("service already started")
)

// ErrorKind classifies failures reported through an ErrorHook
type ErrorKind int

const (
	// KindAccept is a failure of the accept primitive itself
	KindAccept ErrorKind = iota
	// KindDial is a failure to open the outbound side of one session
	KindDial
	// KindTransfer is an I/O failure while copying in either direction
	KindTransfer
)

// String returns the string representation of an ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindAccept:
		return "accept"
	case KindDial:
		return "dial"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// SessionError is the error value handed to hooks
type SessionError struct {
	Kind      ErrorKind
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
