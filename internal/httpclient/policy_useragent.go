package httpclient

import (
	"fmt"
	"net/http"
	"runtime"
)

// Version is reported in the User-Agent. Release builds set it with
// -ldflags "-X github.com/julienstroheker/wsockify/internal/httpclient.Version=..."
var Version = "dev"

// DefaultComponent names the command probing the relay when none is given
const DefaultComponent = "healthcheck"

// UserAgent returns the User-Agent sent by a wsockify component, for example
// "wsockify-healthcheck/dev (go1.25.0; linux/amd64)". Server logs use it to
// tell container health checks apart from browser clients.
func UserAgent(component string) string {
	if component == "" {
		component = DefaultComponent
	}
	return fmt.Sprintf("wsockify-%s/%s (%s; %s/%s)",
		component, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgentPolicy adds a User-Agent header to requests that do not already
// carry one
type UserAgentPolicy struct {
	userAgent string
}

// NewUserAgentPolicy creates a new UserAgentPolicy. An empty userAgent uses
// UserAgent(DefaultComponent).
func NewUserAgentPolicy(userAgent string) *UserAgentPolicy {
	if userAgent == "" {
		userAgent = UserAgent(DefaultComponent)
	}
	return &UserAgentPolicy{userAgent: userAgent}
}

// Do implements Policy interface
func (p *UserAgentPolicy) Do(req *http.Request, next Next) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	return next(req)
}
