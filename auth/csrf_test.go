package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestCSRFFetcher_ReadsTokenField(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != core.DefaultCSRFTokenAPIPath || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(`{"csrfToken":"abc123"}`))
	}))
	defer server.Close()

	fetcher := NewCSRFFetcher(server.Client(), "", "")
	token, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if token != "abc123" {
		t.Fatalf("expected abc123, got %q", token)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request, got %d", hits.Load())
	}
}

func TestCSRFFetcher_CustomPathAndNestedField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/csrf" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"token":"nested"}}`))
	}))
	defer server.Close()

	token, err := NewCSRFFetcher(server.Client(), "/api/csrf", "data.token").Fetch(context.Background(), server.URL)
	if err != nil || token != "nested" {
		t.Fatalf("expected nested token, got %q %v", token, err)
	}
}

func TestCSRFFetcher_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing-field" {
			_, _ = w.Write([]byte(`{"other":"x"}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewCSRFFetcher(server.Client(), "/denied", "").Fetch(context.Background(), server.URL)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %v", err)
	}
	if rich.Code != http.StatusForbidden || rich.TextCode != core.ShellErrorTokenAcquisition {
		t.Fatalf("expected 403 token acquisition error, got %d %q", rich.Code, rich.TextCode)
	}

	if _, err := NewCSRFFetcher(server.Client(), "/missing-field", "").Fetch(context.Background(), server.URL); err == nil {
		t.Fatalf("expected missing field error")
	}
}

func TestNewCSRFTokenCache_UsesConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/custom/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"token":"from-config"}`))
	}))
	defer server.Close()

	cfg := core.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.CSRFTokenAPIPath = "/custom/token"
	cfg.CSRFTokenField = "token"
	cache := NewCSRFTokenCache(server.Client(), func() core.Config { return cfg }, nil)

	token, err := cache.GetTokenForURL(context.Background(), "/relative/path")
	if err != nil || token != "from-config" {
		t.Fatalf("expected page-origin token, got %q %v", token, err)
	}
}
