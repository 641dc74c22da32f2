package middleware

import (
	"net/http"

	"github.com/julienstroheker/wsockify/internal/metrics"
)

// Metrics is a middleware that counts requests by method, route and status.
// Routes are taken from the matched ServeMux pattern so the label set stays
// bounded; unmatched requests are counted under "unmatched".
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequest(r.Method, route, rw.statusCode)
		})
	}
}
