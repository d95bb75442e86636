package prommetrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-appshell/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_CountersUseSanitizedNamesAndLabels(t *testing.T) {
	recorder := New(nil)
	ctx := context.Background()

	recorder.IncCounter(ctx, "appshell.analytics.event.total", 1, map[string]string{"kind": "track", "status": "sent"})
	recorder.IncCounter(ctx, "appshell.analytics.event.total", 2, map[string]string{"kind": "track", "status": "sent"})
	recorder.IncCounter(ctx, "appshell.analytics.event.total", 1, map[string]string{"kind": "page", "status": "deferred", "extra": "x"})

	metric := recorder.counters["appshell_analytics_event_total"]
	if metric == nil {
		t.Fatalf("expected sanitized counter, have %v", recorder.counters)
	}
	if got := testutil.ToFloat64(metric.collector.WithLabelValues("track", "sent")); got != 3 {
		t.Fatalf("expected 3 sent track events, got %v", got)
	}
	if got := testutil.ToFloat64(metric.collector.WithLabelValues("page", "deferred")); got != 1 {
		t.Fatalf("expected extra tags to be dropped, got %v", got)
	}
}

func TestRecorder_HistogramAndNamespace(t *testing.T) {
	recorder := New(nil, WithNamespace("edx"), WithBuckets([]float64{1, 10}))
	recorder.ObserveHistogram(context.Background(), "shell.operation.duration_ms", 4, map[string]string{"operation": "configure"})

	count, err := testutil.GatherAndCount(recorder.Registry(), "edx_shell_operation_duration_ms")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one histogram series, got %d", count)
	}
}

func TestRecorder_HandlerExposesMetrics(t *testing.T) {
	recorder := New(nil)
	shell := core.NewShell(core.WithMetricsRecorder(recorder))
	if _, err := shell.ConfigureConfig(func(core.ServiceOptions) (core.ConfigService, error) {
		return nil, io.EOF
	}, core.ServiceOptions{}); err == nil {
		t.Fatalf("expected failing constructor to fail")
	}

	server := httptest.NewServer(recorder.Handler())
	defer server.Close()
	res, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "appshell_") {
		t.Fatalf("expected shell operation metrics in exposition, got %s", body)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"a.b-c":  "a_b_c",
		"9lives": "_9lives",
		" ok_1 ": "ok_1",
		"x/y z":  "x_y_z",
	}
	for input, want := range cases {
		if got := sanitize(input); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", input, got, want)
		}
	}
}
