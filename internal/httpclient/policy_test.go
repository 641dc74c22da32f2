package httpclient

import (
	"net/http"
	"strings"
	"testing"
)

func TestChain(t *testing.T) {
	var order []string
	record := func(name string) Policy {
		return PolicyFunc(func(req *http.Request, next Next) (*http.Response, error) {
			order = append(order, name+">")
			resp, err := next(req)
			order = append(order, "<"+name)
			return resp, err
		})
	}
	transport := func(*http.Request) (*http.Response, error) {
		order = append(order, "transport")
		return stubResponse(http.StatusOK, ""), nil
	}

	next := Chain(transport, record("outer"), nil, record("inner"))
	req, _ := http.NewRequest(http.MethodGet, "http://relay.invalid/", nil)
	if _, err := next(req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := "outer> inner> transport <inner <outer"
	if got := strings.Join(order, " "); got != want {
		t.Errorf("Expected order %q, got %q", want, got)
	}
}

func TestChain_NoPolicies(t *testing.T) {
	called := false
	next := Chain(func(*http.Request) (*http.Response, error) {
		called = true
		return stubResponse(http.StatusOK, ""), nil
	})

	req, _ := http.NewRequest(http.MethodGet, "http://relay.invalid/", nil)
	if _, err := next(req); err != nil || !called {
		t.Errorf("Expected the transport to be called directly, called=%v err=%v", called, err)
	}
}
