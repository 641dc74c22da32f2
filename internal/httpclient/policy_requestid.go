package httpclient

import (
	"net/http"

	"github.com/google/uuid"
)

// DefaultRequestIDHeader is echoed back by the relay's telemetry middleware
const DefaultRequestIDHeader = "X-Client-Request-Id"

// RequestIDPolicy tags each request with a unique ID. Retries of one logical
// request keep the same ID so they can be correlated in server logs.
type RequestIDPolicy struct {
	headerName string
}

// NewRequestIDPolicy creates a new RequestIDPolicy
func NewRequestIDPolicy(headerName string) *RequestIDPolicy {
	if headerName == "" {
		headerName = DefaultRequestIDHeader
	}
	return &RequestIDPolicy{headerName: headerName}
}

// Do implements Policy interface
func (p *RequestIDPolicy) Do(req *http.Request, next Next) (*http.Response, error) {
	if req.Header.Get(p.headerName) == "" {
		req.Header.Set(p.headerName, uuid.New().String())
	}
	return next(req)
}
