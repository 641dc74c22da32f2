package httpclient

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/julienstroheker/wsockify/internal/logging"
)

func TestLoggingPolicy_Do(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOutput(logging.DebugLevel, &buf)
	policy := NewLoggingPolicy(logger, &LoggingOptions{
		LogHeaders:    true,
		HeaderFilters: []string{"Authorization"},
	})

	req, _ := http.NewRequest(http.MethodGet, "http://relay.invalid/healthz", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(DefaultRequestIDHeader, "check-1")

	resp, err := policy.Do(req, func(*http.Request) (*http.Response, error) {
		return stubResponse(http.StatusOK, "OK"), nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_ = resp.Body.Close()

	out := buf.String()
	for _, want := range []string{"HTTP Request", "HTTP Response", "request_id=check-1", "status=200", "[REDACTED]"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log to contain %q, got %q", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Errorf("Expected Authorization to be redacted, got %q", out)
	}
}

func TestLoggingPolicy_Failure(t *testing.T) {
	var buf bytes.Buffer
	policy := NewLoggingPolicy(logging.NewWithOutput(logging.DebugLevel, &buf), nil)
	req, _ := http.NewRequest(http.MethodGet, "http://relay.invalid/", nil)

	_, err := policy.Do(req, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("Expected error to be returned")
	}
	if !strings.Contains(buf.String(), "HTTP Request failed") {
		t.Errorf("Expected failure log, got %q", buf.String())
	}
}

func TestLoggingPolicy_NilLogger(t *testing.T) {
	policy := NewLoggingPolicy(nil, nil)
	req, _ := http.NewRequest(http.MethodGet, "http://relay.invalid/", nil)

	resp, err := policy.Do(req, func(*http.Request) (*http.Response, error) {
		return stubResponse(http.StatusOK, ""), nil
	})
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("Expected pass-through, got %v %v", resp, err)
	}
}
