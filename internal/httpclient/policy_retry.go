package httpclient

import (
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/julienstroheker/wsockify/internal/logging"
)

// RetryPolicy retries transport failures and retryable status codes with
// exponential backoff. Waiting stops early when the request context is done.
type RetryPolicy struct {
	maxRetries       int
	retryDelay       time.Duration
	retryStatusCodes []int
	logger           *logging.Logger
}

// RetryOptions contains configuration for RetryPolicy
type RetryOptions struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int

	// RetryDelay is the initial delay between retries (default: 500ms)
	RetryDelay time.Duration

	// RetryStatusCodes defines which HTTP status codes should trigger a retry.
	// Default: 429, 500, 502, 503 and 504. A starting relay answers /healthz
	// with 503, so health checks retry it.
	RetryStatusCodes []int

	// Logger for debug logging (optional)
	Logger *logging.Logger
}

// NewRetryPolicy creates a new RetryPolicy
func NewRetryPolicy(opts *RetryOptions) *RetryPolicy {
	if opts == nil {
		opts = &RetryOptions{}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	retryStatusCodes := opts.RetryStatusCodes
	if len(retryStatusCodes) == 0 {
		retryStatusCodes = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}

	return &RetryPolicy{
		maxRetries:       maxRetries,
		retryDelay:       retryDelay,
		retryStatusCodes: retryStatusCodes,
		logger:           opts.Logger,
	}
}

// Do implements Policy interface
func (p *RetryPolicy) Do(req *http.Request, next Next) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; ; attempt++ {
		// Restore the body consumed by the previous attempt
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = next(req)
		if err == nil && !p.shouldRetry(resp) {
			return resp, nil
		}
		if attempt == p.maxRetries {
			return resp, err
		}

		// The response is discarded; release its connection
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		delay := p.retryDelay * time.Duration(1<<attempt)
		if p.logger != nil {
			fields := []logging.Field{
				logging.Int("attempt", attempt+1),
				logging.Int("max_retries", p.maxRetries),
				logging.String("url", req.URL.Redacted()),
				logging.Duration("delay", delay),
			}
			if err != nil {
				fields = append(fields, logging.Error(err))
			} else {
				fields = append(fields, logging.Int("status", resp.StatusCode))
			}
			p.logger.Debug("Retrying request", fields...)
		}

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

// shouldRetry determines if a response should be retried
func (p *RetryPolicy) shouldRetry(resp *http.Response) bool {
	if resp == nil {
		return true
	}
	return slices.Contains(p.retryStatusCodes, resp.StatusCode)
}
