package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-appshell/analytics"
	"github.com/goliatone/go-appshell/core"
	sqlstore "github.com/goliatone/go-appshell/store/sql"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shell.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCommand_PrintsResolvedYAML(t *testing.T) {
	path := writeConfig(t, "app_id: learning\nbase_url: https://apps.example\n")

	out, err := runCLI(t, "config", "-c", path, "--lms-base-url", "https://lms.example")
	if err != nil {
		t.Fatalf("config command: %v", err)
	}
	var cfg core.Config
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if cfg.AppID != "learning" || cfg.BaseURL != "https://apps.example" {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.LMSBaseURL != "https://lms.example" {
		t.Fatalf("expected flag override, got %q", cfg.LMSBaseURL)
	}
}

func TestConfigCommand_RequireReportsMissingKeys(t *testing.T) {
	path := writeConfig(t, "base_url: https://apps.example\n")

	_, err := runCLI(t, "config", "-c", path, "--require", "app_id,base_url")
	if err == nil || !strings.Contains(err.Error(), "app_id") {
		t.Fatalf("expected missing app_id error, got %v", err)
	}
}

func TestConfigCommand_MissingRequiredFileFails(t *testing.T) {
	if _, err := runCLI(t, "config", "-c", filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected missing config file error")
	}
}

func TestTokenCommand_PrintsCSRFToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != core.DefaultCSRFTokenAPIPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"csrfToken":"cli-token"}`))
	}))
	defer server.Close()
	path := writeConfig(t, "base_url: "+server.URL+"\n")

	out, err := runCLI(t, "token", "-c", path, server.URL+"/api/courses")
	if err != nil {
		t.Fatalf("token command: %v", err)
	}
	if strings.TrimSpace(out) != "cli-token" {
		t.Fatalf("expected token output, got %q", out)
	}
}

func TestRequestCommand_PublicRequestSkipsTokens(t *testing.T) {
	var csrfHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		csrfHeader = r.Header.Get("X-CSRFToken")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()
	path := writeConfig(t, "base_url: "+server.URL+"\n")

	out, err := runCLI(t, "request", "-c", path, "--public", "-H", "X-Trace: abc", "post", "/api/ping", "-d", `{}`)
	if err != nil {
		t.Fatalf("request command: %v", err)
	}
	if strings.TrimSpace(out) != `{"ok":true}` {
		t.Fatalf("expected response body, got %q", out)
	}
	if csrfHeader != "" {
		t.Fatalf("expected public request without csrf header, got %q", csrfHeader)
	}
}

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest(" get ", " https://lms.example/x ", "", []string{"Accept: application/json"}, false)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if req.Method != http.MethodGet || req.URL != "https://lms.example/x" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Headers["Accept"] != "application/json" {
		t.Fatalf("expected header, got %v", req.Headers)
	}
	if _, err := buildRequest("GET", "/x", "", []string{"broken"}, false); err == nil {
		t.Fatalf("expected invalid header error")
	}
	if _, err := buildRequest(" ", "/x", "", nil, false); err == nil {
		t.Fatalf("expected missing method error")
	}
}

func TestFlushCommand_EmptySQLiteOutbox(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "outbox.db")
	path := writeConfig(t, "base_url: https://apps.example\n")

	out, err := runCLI(t, "flush", "-c", path, "--driver", "sqlite3", "--dsn", dsn)
	if err != nil {
		t.Fatalf("flush command: %v", err)
	}
	if !strings.Contains(out, "delivered 0 events") {
		t.Fatalf("expected empty flush report, got %q", out)
	}
}

func TestFlushCommand_WorkerDrainsScheduledFlush(t *testing.T) {
	var posts atomic.Int64
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer collector.Close()

	dsn := "file:" + filepath.Join(t.TempDir(), "outbox.db")
	ctx := context.Background()
	client, err := openOutboxDB(ctx, outboxDBConfig{driver: driverSQLite, dsn: dsn}, true)
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	store, err := sqlstore.NewOutboxStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("outbox store: %v", err)
	}
	if err := store.Enqueue(ctx, analytics.Event{ID: "evt-1", Kind: analytics.KindTrack, Name: "course.enrolled", Timestamp: time.Now()}); err != nil {
		t.Fatalf("seed outbox: %v", err)
	}
	_ = client.Close()

	path := writeConfig(t, "base_url: https://apps.example\nanalytics_api_url: "+collector.URL+"/collect\n")
	out, err := runCLI(t, "flush", "-c", path, "--driver", "sqlite3", "--dsn", dsn, "--worker")
	if err != nil {
		t.Fatalf("flush worker: %v", err)
	}
	if !strings.Contains(out, "ran 1 flush jobs") {
		t.Fatalf("expected one flush job, got %q", out)
	}
	if posts.Load() != 1 {
		t.Fatalf("expected the outboxed event to reach the collector, got %d posts", posts.Load())
	}

	out, err = runCLI(t, "flush", "-c", path, "--driver", "sqlite3", "--dsn", dsn, "--worker")
	if err != nil {
		t.Fatalf("second flush worker: %v", err)
	}
	if !strings.Contains(out, "ran 1 flush jobs") || posts.Load() != 1 {
		t.Fatalf("expected an empty second flush, got %q with %d posts", out, posts.Load())
	}
}

func TestFlushCommand_RejectsUnknownDriver(t *testing.T) {
	if _, err := runCLI(t, "flush", "--driver", "oracle"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
