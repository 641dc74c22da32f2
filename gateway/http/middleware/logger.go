package middleware

import (
	"net/http"
	"time"

	"github.com/julienstroheker/wsockify/internal/logging"
)

// Logger is a middleware that logs HTTP requests and responses.
// It logs when a request is received and when the handler returns; for a
// WebSocket upgrade that is once the connection has been handed to the relay.
// A child logger carrying the telemetry IDs is stored in the request context
// for downstream handlers.
func Logger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.New(logging.InfoLevel)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var ids []logging.Field
			if requestID := GetRequestID(r.Context()); requestID != "" {
				ids = append(ids, logging.String("request_id", requestID))
			}
			if clientRequestID := GetClientRequestID(r.Context()); clientRequestID != "" {
				ids = append(ids, logging.String("client_request_id", clientRequestID))
			}
			if IsWebSocketUpgrade(r.Context()) {
				ids = append(ids, logging.Bool("websocket", true))
			}

			requestLogger := logger.With(ids...)
			r = r.WithContext(logging.WithContext(r.Context(), requestLogger))

			requestLogger.Info("Request received",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("remote_addr", r.RemoteAddr))

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			requestLogger.Info("Response sent",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", rw.statusCode),
				logging.Duration("duration", time.Since(start)))
		})
	}
}
