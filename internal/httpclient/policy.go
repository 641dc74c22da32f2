package httpclient

import (
	"net/http"
)

// Next sends the request to the rest of the chain
type Next func(*http.Request) (*http.Response, error)

// Policy represents a middleware that can modify requests and responses
type Policy interface {
	// Do executes the policy and calls the next policy in the chain
	Do(req *http.Request, next Next) (*http.Response, error)
}

// PolicyFunc is a function adapter for Policy interface
type PolicyFunc func(req *http.Request, next Next) (*http.Response, error)

// Do implements Policy interface
func (f PolicyFunc) Do(req *http.Request, next Next) (*http.Response, error) {
	return f(req, next)
}

// Chain builds a single Next that runs policies in order, outermost first,
// before handing the request to transport. Nil policies are skipped.
func Chain(transport Next, policies ...Policy) Next {
	next := transport
	for i := len(policies) - 1; i >= 0; i-- {
		policy := policies[i]
		if policy == nil {
			continue
		}
		inner := next
		next = func(r *http.Request) (*http.Response, error) {
			return policy.Do(r, inner)
		}
	}
	return next
}
