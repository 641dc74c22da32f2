package httpclient

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestNewRequestIDPolicy(t *testing.T) {
	if p := NewRequestIDPolicy(""); p.headerName != DefaultRequestIDHeader {
		t.Errorf("Expected default header %q, got %q", DefaultRequestIDHeader, p.headerName)
	}
	if p := NewRequestIDPolicy("X-Check-Id"); p.headerName != "X-Check-Id" {
		t.Errorf("Expected custom header, got %q", p.headerName)
	}
}

func TestRequestIDPolicy_Do(t *testing.T) {
	policy := NewRequestIDPolicy("")
	req, _ := http.NewRequest(http.MethodGet, "http://relay.invalid/", nil)

	var ids []string
	next := func(r *http.Request) (*http.Response, error) {
		ids = append(ids, r.Header.Get(DefaultRequestIDHeader))
		return stubResponse(http.StatusOK, ""), nil
	}

	_, _ = policy.Do(req, next)
	_, _ = policy.Do(req, next)

	if _, err := uuid.Parse(ids[0]); err != nil {
		t.Errorf("Expected a UUID, got %q", ids[0])
	}
	// A retried request keeps its ID
	if ids[0] != ids[1] {
		t.Errorf("Expected the same ID across attempts, got %q and %q", ids[0], ids[1])
	}
}

func TestRequestIDPolicy_KeepsCallerID(t *testing.T) {
	policy := NewRequestIDPolicy("")
	req, _ := http.NewRequest(http.MethodGet, "http://relay.invalid/", nil)
	req.Header.Set(DefaultRequestIDHeader, "check-1")

	_, _ = policy.Do(req, func(r *http.Request) (*http.Response, error) {
		if got := r.Header.Get(DefaultRequestIDHeader); got != "check-1" {
			t.Errorf("Expected caller ID to be kept, got %q", got)
		}
		return stubResponse(http.StatusOK, ""), nil
	})
}
