package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-appshell/core"
)

var collectorKey = Key{Origin: "https://Collector.Example/", Bucket: "Events"}

func fixedPolicy(now time.Time) *AdaptivePolicy {
	policy := NewAdaptivePolicy(NewMemoryStateStore())
	policy.Now = func() time.Time { return now }
	return policy
}

func TestAdaptivePolicy_BeforeCallAllowsWhenNoState(t *testing.T) {
	policy := NewAdaptivePolicy(nil)
	if err := policy.BeforeCall(context.Background(), collectorKey); err != nil {
		t.Fatalf("expected no error when no state exists, got %v", err)
	}
}

func TestAdaptivePolicy_AfterCallParsesHeadersAndPersistsState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(now)

	err := policy.AfterCall(context.Background(), collectorKey, &core.Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "100",
			"x-ratelimit-remaining": "99",
			"X-RateLimit-Reset":     "1700000045",
		},
	})
	if err != nil {
		t.Fatalf("after call: %v", err)
	}

	state, err := policy.Store.Get(context.Background(), Key{Origin: "https://collector.example", Bucket: "events"})
	if err != nil {
		t.Fatalf("expected normalized key lookup, got %v", err)
	}
	if state.Limit != 100 || state.Remaining != 99 || state.LastStatus != http.StatusOK {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(now.Add(45*time.Second)) {
		t.Fatalf("expected reset at +45s, got %v", state.ResetAt)
	}
	if err := policy.BeforeCall(context.Background(), collectorKey); err != nil {
		t.Fatalf("expected call allowed with remaining quota, got %v", err)
	}
}

func TestAdaptivePolicy_RetryAfterBlocksUntilElapsed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(now)

	if err := policy.AfterCall(context.Background(), collectorKey, &core.Response{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": "30"},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}

	err := policy.BeforeCall(context.Background(), collectorKey)
	throttled, ok := IsThrottled(err)
	if !ok {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if throttled.RetryAfter != 30*time.Second {
		t.Fatalf("expected 30s retry, got %s", throttled.RetryAfter)
	}
	if throttled.Origin != "https://collector.example" {
		t.Fatalf("expected normalized origin, got %q", throttled.Origin)
	}

	policy.Now = func() time.Time { return now.Add(31 * time.Second) }
	if err := policy.BeforeCall(context.Background(), collectorKey); err != nil {
		t.Fatalf("expected call allowed after retry window, got %v", err)
	}
}

func TestAdaptivePolicy_ExhaustedQuotaBlocksUntilReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(now)

	if err := policy.AfterCall(context.Background(), collectorKey, &core.Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "1700000010",
		},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	if _, ok := IsThrottled(policy.BeforeCall(context.Background(), collectorKey)); !ok {
		t.Fatalf("expected exhausted quota to throttle")
	}
}

func TestAdaptivePolicy_BackoffGrowsWithoutHint(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(now)
	policy.InitialBackoff = time.Second
	policy.MaxBackoff = 3 * time.Second

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	for index, expected := range want {
		if err := policy.AfterCall(context.Background(), collectorKey, &core.Response{StatusCode: http.StatusTooManyRequests}); err != nil {
			t.Fatalf("after call %d: %v", index, err)
		}
		throttled, ok := IsThrottled(policy.BeforeCall(context.Background(), collectorKey))
		if !ok || throttled.RetryAfter != expected {
			t.Fatalf("attempt %d: expected %s backoff, got %+v", index+1, expected, throttled)
		}
	}

	if err := policy.AfterCall(context.Background(), collectorKey, &core.Response{StatusCode: http.StatusOK}); err != nil {
		t.Fatalf("after success: %v", err)
	}
	state, _ := policy.Store.Get(context.Background(), collectorKey)
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected success to clear throttle, got %+v", state)
	}
}

func TestAdaptivePolicy_ServerErrorsDoNotThrottle(t *testing.T) {
	policy := fixedPolicy(time.Unix(1_700_000_000, 0).UTC())
	if err := policy.AfterCall(context.Background(), collectorKey, &core.Response{StatusCode: http.StatusBadGateway}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	if err := policy.BeforeCall(context.Background(), collectorKey); err != nil {
		t.Fatalf("expected 5xx not to throttle, got %v", err)
	}
}

func TestAdaptivePolicy_NilResponseIsIgnored(t *testing.T) {
	policy := NewAdaptivePolicy(nil)
	if err := policy.AfterCall(context.Background(), collectorKey, nil); err != nil {
		t.Fatalf("expected nil response to be ignored, got %v", err)
	}
	if _, err := policy.Store.Get(context.Background(), collectorKey); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected no state recorded, got %v", err)
	}
}

func TestThrottledError_ToShellError(t *testing.T) {
	mapped := ThrottledError{Origin: "https://collector.example", Bucket: "events", RetryAfter: 3 * time.Second}.ToShellError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.ShellErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.ShellErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
}
