package appshell_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	appshell "github.com/goliatone/go-appshell"
	"github.com/goliatone/go-appshell/adapters/gocommand"
	"github.com/goliatone/go-appshell/auth"
	appcommand "github.com/goliatone/go-appshell/command"
	"github.com/goliatone/go-appshell/core"
)

type fakeLMS struct {
	*httptest.Server
	mu          sync.Mutex
	refreshes   int
	csrfFetches int
	events      []string
	apiCalls    []http.Header
}

func newFakeLMS(t *testing.T) *fakeLMS {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":            7,
		"preferred_username": "learner",
		"email":              "learner@example.test",
		"exp":                time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("lms-key"))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	parts := strings.Split(signed, ".")
	headerPayload := parts[0] + "." + parts[1]

	lms := &fakeLMS{}
	lms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lms.mu.Lock()
		defer lms.mu.Unlock()
		switch r.URL.Path {
		case core.DefaultRefreshTokenEndpoint:
			lms.refreshes++
			http.SetCookie(w, &http.Cookie{Name: core.DefaultAccessTokenCookieName, Value: headerPayload, Path: "/"})
			w.WriteHeader(http.StatusOK)
		case core.DefaultCSRFTokenAPIPath:
			lms.csrfFetches++
			_, _ = w.Write([]byte(`{"csrfToken":"csrf-abc"}`))
		case "/event":
			if err := r.ParseForm(); err == nil {
				lms.events = append(lms.events, r.PostForm.Get("event_type"))
			}
			w.WriteHeader(http.StatusOK)
		case "/api/enrollment":
			lms.apiCalls = append(lms.apiCalls, r.Header.Clone())
			if _, err := r.Cookie(core.DefaultAccessTokenCookieName); err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"enrolled":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(lms.Close)
	return lms
}

func TestDownstreamComposition_InitializeThenUseShellDelegates(t *testing.T) {
	lms := newFakeLMS(t)

	shell, err := appshell.NewShell()
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	app, err := appshell.Initialize(context.Background(), shell, appshell.InitOptions{
		ConfigLoader: core.StaticRawConfigLoader(map[string]any{
			"app_id":       "learning",
			"base_url":     lms.URL,
			"lms_base_url": lms.URL,
		}),
		HydrateUser: true,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	user, err := shell.GetAuthenticatedUser()
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user == nil || user.UserID != "7" || user.Username != "learner" {
		t.Fatalf("expected hydrated user, got %#v", user)
	}
	if app.Analytics.UserID() != "7" {
		t.Fatalf("expected analytics identify with user id, got %q", app.Analytics.UserID())
	}

	client, err := shell.AuthenticatedHTTPClient()
	if err != nil {
		t.Fatalf("authenticated client: %v", err)
	}
	for range 2 {
		res, err := client.Do(context.Background(), &core.Request{
			Method: http.MethodPost,
			URL:    "/api/enrollment",
			Body:   []byte(`{"course_id":"course-v1:demo"}`),
		})
		if err != nil {
			t.Fatalf("enroll: %v", err)
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.StatusCode)
		}
	}

	lms.mu.Lock()
	calls := append([]http.Header(nil), lms.apiCalls...)
	csrfFetches := lms.csrfFetches
	refreshes := lms.refreshes
	lms.mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("expected two api calls, got %d", len(calls))
	}
	for _, header := range calls {
		if header.Get(auth.HeaderCSRFToken) != "csrf-abc" {
			t.Fatalf("expected csrf header, got %v", header)
		}
		if header.Get(auth.HeaderUseJWTCookie) != "true" {
			t.Fatalf("expected jwt cookie header, got %v", header)
		}
	}
	if csrfFetches != 1 {
		t.Fatalf("expected csrf token to be cached per origin, got %d fetches", csrfFetches)
	}
	if refreshes != 1 {
		t.Fatalf("expected one jwt refresh, got %d", refreshes)
	}
}

func TestDownstreamComposition_CommandBusReachesAnalytics(t *testing.T) {
	lms := newFakeLMS(t)

	shell, err := appshell.NewShell()
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	app, err := appshell.Initialize(context.Background(), shell, appshell.InitOptions{
		ConfigLoader: core.StaticRawConfigLoader(map[string]any{
			"base_url":     lms.URL,
			"lms_base_url": lms.URL,
		}),
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	bus := gocommand.NewBus(nil)
	defer bus.Close()
	if err := gocommand.RegisterShell(bus, shell, app.Auth); err != nil {
		t.Fatalf("register shell handlers: %v", err)
	}

	if err := gocommand.Dispatch(context.Background(), appcommand.TrackEventMessage{
		Kind: appcommand.EventKindTrackingLog,
		Name: "edx.ui.lms.link_clicked",
	}); err != nil {
		t.Fatalf("dispatch tracking event: %v", err)
	}

	lms.mu.Lock()
	events := append([]string(nil), lms.events...)
	lms.mu.Unlock()
	if len(events) != 1 || events[0] != "edx.ui.lms.link_clicked" {
		t.Fatalf("expected tracking log event at the lms, got %v", events)
	}
}
