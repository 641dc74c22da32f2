// Package httpclient is a small policy-chained HTTP client used to query the
// relay's HTTP endpoints. Each request passes through error wrapping, retry,
// request ID, user agent and logging policies before reaching the transport.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/julienstroheker/wsockify/internal/logging"
)

// Client is an HTTP client with retry, logging, and policy support
type Client struct {
	httpClient *http.Client
	policies   []Policy
}

// Options contains configuration options for the HTTP client
type Options struct {
	// Timeout is the maximum time for a single attempt
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts (0 disables retries)
	MaxRetries int

	// RetryDelay is the initial delay between retries (exponential backoff is applied)
	RetryDelay time.Duration

	// Logger is used for debug logging (optional)
	Logger *logging.Logger

	// UserAgent is the User-Agent header value, see UserAgent()
	UserAgent string

	// Transport allows customizing the underlying HTTP transport
	Transport http.RoundTripper

	// AdditionalPolicies run after the built-in ones, closest to the transport
	AdditionalPolicies []Policy
}

// DefaultOptions returns default options for the HTTP client
func DefaultOptions() *Options {
	return &Options{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		UserAgent:  UserAgent(DefaultComponent),
	}
}

// NewClient creates a new HTTP client with the given options
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}

	httpClient := &http.Client{
		Timeout: opts.Timeout,
	}
	if opts.Transport != nil {
		httpClient.Transport = opts.Transport
	}

	// Outermost first: error wrapping sees the final result of all retries
	policies := []Policy{NewErrorPolicy()}

	if opts.MaxRetries > 0 {
		policies = append(policies, NewRetryPolicy(&RetryOptions{
			MaxRetries: opts.MaxRetries,
			RetryDelay: opts.RetryDelay,
			Logger:     opts.Logger,
		}))
	}

	policies = append(policies, NewRequestIDPolicy(""))

	if opts.UserAgent != "" {
		policies = append(policies, NewUserAgentPolicy(opts.UserAgent))
	}

	// Logging goes last so it sees the request as sent
	if opts.Logger != nil {
		policies = append(policies, NewLoggingPolicy(opts.Logger, &LoggingOptions{
			LogHeaders:    true,
			HeaderFilters: []string{"Authorization", "Cookie"},
		}))
	}

	policies = append(policies, opts.AdditionalPolicies...)

	return &Client{
		httpClient: httpClient,
		policies:   policies,
	}
}

// Do executes an HTTP request through the policy chain
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return Chain(c.httpClient.Do, c.policies...)(req)
}

// Get is a convenience method for GET requests
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
