package appshell

import (
	"context"
	"testing"

	appcommand "github.com/goliatone/go-appshell/command"
	"github.com/goliatone/go-appshell/config"
	"github.com/goliatone/go-appshell/core"
	appquery "github.com/goliatone/go-appshell/query"
	goerrors "github.com/goliatone/go-errors"
)

type stubTokenReader struct {
	lastURL string
}

func (r *stubTokenReader) GetCSRFToken(_ context.Context, rawURL string) (string, error) {
	r.lastURL = rawURL
	return "csrf-token", nil
}

type stubUserFetcher struct {
	calls int
}

func (f *stubUserFetcher) FetchAuthenticatedUser(context.Context) (*core.AuthenticatedUser, error) {
	f.calls++
	return &core.AuthenticatedUser{UserID: "42", Username: "staff"}, nil
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	shell, _ := newObservedShell(t)
	facade, err := NewFacade(shell, WithTokenReader(&stubTokenReader{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	commands := facade.Commands()
	if commands.Publish == nil || commands.MergeConfig == nil || commands.TrackEvent == nil || commands.LogError == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetConfig == nil || queries.GetToken == nil || queries.AuthenticatedUser == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Shell() != shell {
		t.Fatalf("expected facade to expose its shell")
	}
}

func TestNewFacade_RequiresShell(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil shell error")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	shell, recorder := newObservedShell(t, "courses.enrolled")
	if _, err := shell.ConfigureConfig(config.New, core.ServiceOptions{}); err != nil {
		t.Fatalf("configure config: %v", err)
	}
	tokens := &stubTokenReader{}
	facade, err := NewFacade(shell, WithTokenReader(tokens))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	ctx := context.Background()

	if err := facade.Commands().Publish.Execute(ctx, appcommand.PublishMessage{Topic: "courses.enrolled", Data: "course-v1"}); err != nil {
		t.Fatalf("execute publish: %v", err)
	}
	if got := recorder.snapshot(); len(got) != 1 || got[0] != "courses.enrolled" {
		t.Fatalf("expected published topic, got %v", got)
	}

	if err := facade.Commands().MergeConfig.Execute(ctx, appcommand.MergeConfigMessage{
		Values: map[string]any{"app_id": "gradebook"},
	}); err != nil {
		t.Fatalf("execute merge config: %v", err)
	}
	cfg, err := facade.Queries().GetConfig.Query(ctx, appquery.GetConfigMessage{})
	if err != nil {
		t.Fatalf("query config: %v", err)
	}
	if cfg.AppID != "gradebook" {
		t.Fatalf("expected merged app id, got %q", cfg.AppID)
	}

	token, err := facade.Queries().GetToken.Query(ctx, appquery.GetTokenMessage{URL: "https://lms.example/api"})
	if err != nil || token != "csrf-token" {
		t.Fatalf("expected csrf token, got %q %v", token, err)
	}
	if tokens.lastURL != "https://lms.example/api" {
		t.Fatalf("expected token url delegation, got %q", tokens.lastURL)
	}
}

func TestFacade_AuthenticatedUserRefreshUsesFetcher(t *testing.T) {
	shell, _ := newObservedShell(t)
	if _, err := shell.ConfigureAuth(func(core.ServiceOptions) (core.AuthService, error) {
		return &memoryAuth{}, nil
	}, core.ServiceOptions{}); err != nil {
		t.Fatalf("configure auth: %v", err)
	}
	fetcher := &stubUserFetcher{}
	facade, err := NewFacade(shell, WithUserFetcher(fetcher))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	user, err := facade.Queries().AuthenticatedUser.Query(context.Background(), appquery.AuthenticatedUserMessage{})
	if err != nil || user != nil {
		t.Fatalf("expected no cached user, got %#v %v", user, err)
	}
	user, err = facade.Queries().AuthenticatedUser.Query(context.Background(), appquery.AuthenticatedUserMessage{Refresh: true})
	if err != nil || user == nil || user.UserID != "42" {
		t.Fatalf("expected refreshed user, got %#v %v", user, err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.calls)
	}
}

func TestFacade_GetTokenWithoutReaderFails(t *testing.T) {
	shell, _ := newObservedShell(t)
	facade, err := NewFacade(shell)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	_, err = facade.Queries().GetToken.Query(context.Background(), appquery.GetTokenMessage{URL: "https://lms.example"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ShellErrorInternal {
		t.Fatalf("expected missing token reader error, got %v", err)
	}
}

type memoryAuth struct {
	user *core.AuthenticatedUser
}

func (a *memoryAuth) AuthenticatedHTTPClient() core.RequestDoer { return nil }

func (a *memoryAuth) GetAuthenticatedUser() *core.AuthenticatedUser { return a.user }

func (a *memoryAuth) SetAuthenticatedUser(user *core.AuthenticatedUser) { a.user = user }
