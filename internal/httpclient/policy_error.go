package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// RequestError is returned when a request never produced a response, after
// any retries. URL has its credentials redacted.
type RequestError struct {
	Method  string
	URL     string
	Elapsed time.Duration
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed after %s: %v",
		e.Method, e.URL, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request gave up because a deadline expired,
// either the caller's context or the per-attempt client timeout
func (e *RequestError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ErrorPolicy turns transport errors into a *RequestError
type ErrorPolicy struct {
	now func() time.Time
}

// NewErrorPolicy creates a new ErrorPolicy
func NewErrorPolicy() *ErrorPolicy {
	return &ErrorPolicy{now: time.Now}
}

// Do implements Policy interface
func (p *ErrorPolicy) Do(req *http.Request, next Next) (*http.Response, error) {
	start := p.now()
	resp, err := next(req)
	if err != nil {
		return resp, &RequestError{
			Method:  req.Method,
			URL:     req.URL.Redacted(),
			Elapsed: p.now().Sub(start),
			Err:     err,
		}
	}
	return resp, nil
}
