package main

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestWithServiceToken(t *testing.T) {
	var seen string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	h := withServiceToken(backend, "svc-token")

	req := httptest.NewRequest(http.MethodPost, "http://example.com/orders", nil)
	req.Header.Set("Authorization", "Bearer client-credential")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if seen != "Bearer svc-token" {
		t.Fatalf("backend saw Authorization %q, want the service token", seen)
	}
}

func TestRegisterProxyMatchesPrefixAndSubpaths(t *testing.T) {
	mux := http.NewServeMux()
	registerProxy(mux, "/orders", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/orders", "/orders/abc-123"} {
		req := httptest.NewRequest(http.MethodGet, "http://example.com"+path, nil)
		rw := httptest.NewRecorder()
		mux.ServeHTTP(rw, req)
		if rw.Code != http.StatusNoContent {
			t.Fatalf("path %s: expected 204, got %d", path, rw.Code)
		}
	}
}

func TestParseList(t *testing.T) {
	got := parseList(" a, ,b ,")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseList = %v, want %v", got, want)
	}
}
