package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// ClientRequestIDHeader carries an opaque caller-chosen correlation ID
	ClientRequestIDHeader = "X-Client-Request-Id"
	// RequestIDHeader carries the ID the server assigns to each request
	RequestIDHeader = "X-Request-Id"

	maxClientRequestIDLen = 128
)

type telemetryKey struct{}

// telemetry is what Telemetry records about a request
type telemetry struct {
	requestID       string
	clientRequestID string
	upgrade         bool
}

// Telemetry assigns every request an X-Request-Id and echoes both IDs on the
// response. A reverse proxy in front of the relay may already have assigned
// one; it is kept when it parses as a UUID, otherwise a new one is generated.
// X-Client-Request-Id is echoed only when it is short printable ASCII, since
// it ends up in the logs of every relay session. WebSocket upgrade requests
// are flagged so downstream middleware can tell sessions from plain requests.
func Telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := telemetry{
			requestID:       upstreamRequestID(r),
			clientRequestID: sanitizeClientRequestID(r.Header.Get(ClientRequestIDHeader)),
			upgrade:         isWebSocketUpgrade(r),
		}
		if t.requestID == "" {
			t.requestID = uuid.New().String()
		}

		if t.clientRequestID != "" {
			w.Header().Set(ClientRequestIDHeader, t.clientRequestID)
		}
		w.Header().Set(RequestIDHeader, t.requestID)

		ctx := context.WithValue(r.Context(), telemetryKey{}, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func upstreamRequestID(r *http.Request) string {
	id, err := uuid.Parse(r.Header.Get(RequestIDHeader))
	if err != nil {
		return ""
	}
	return id.String()
}

func sanitizeClientRequestID(id string) string {
	if len(id) > maxClientRequestIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return ""
		}
	}
	return id
}

func isWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}

func fromContext(ctx context.Context) telemetry {
	t, _ := ctx.Value(telemetryKey{}).(telemetry)
	return t
}

// GetClientRequestID returns the caller's correlation ID, or ""
func GetClientRequestID(ctx context.Context) string {
	return fromContext(ctx).clientRequestID
}

// GetRequestID returns the request ID assigned by Telemetry, or ""
func GetRequestID(ctx context.Context) string {
	return fromContext(ctx).requestID
}

// IsWebSocketUpgrade reports whether Telemetry saw a WebSocket upgrade request
func IsWebSocketUpgrade(ctx context.Context) bool {
	return fromContext(ctx).upgrade
}
