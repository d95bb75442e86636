package query

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
)

type stubConfigReader struct {
	cfg core.Config
}

func (s stubConfigReader) GetConfig() core.Config { return s.cfg }

type stubTokenReader struct {
	urls  []string
	token string
	err   error
}

func (s *stubTokenReader) GetCSRFToken(_ context.Context, rawURL string) (string, error) {
	s.urls = append(s.urls, rawURL)
	return s.token, s.err
}

type stubUsers struct {
	stored  *core.AuthenticatedUser
	fetched *core.AuthenticatedUser
	fetches int
}

func (s *stubUsers) GetAuthenticatedUser() (*core.AuthenticatedUser, error) {
	return s.stored, nil
}

func (s *stubUsers) FetchAuthenticatedUser(context.Context) (*core.AuthenticatedUser, error) {
	s.fetches++
	return s.fetched, nil
}

func TestGetConfigQuery_ReturnsConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.AppID = "learning"
	got, err := NewGetConfigQuery(stubConfigReader{cfg: cfg}).Query(context.Background(), GetConfigMessage{})
	if err != nil {
		t.Fatalf("query config: %v", err)
	}
	if got.AppID != "learning" {
		t.Fatalf("expected app id learning, got %q", got.AppID)
	}
}

func TestGetConfigQuery_UnconfiguredShellReturnsZeroConfig(t *testing.T) {
	got, err := NewGetConfigQuery(core.NewShell()).Query(context.Background(), GetConfigMessage{})
	if err != nil {
		t.Fatalf("query config: %v", err)
	}
	if got.AppID != "" || got.BaseURL != "" {
		t.Fatalf("expected zero config from an unconfigured shell, got %+v", got)
	}
}

func TestGetTokenQuery_Delegates(t *testing.T) {
	reader := &stubTokenReader{token: "csrf-1"}
	token, err := NewGetTokenQuery(reader).Query(context.Background(), GetTokenMessage{URL: "https://lms.example/api"})
	if err != nil || token != "csrf-1" {
		t.Fatalf("expected csrf-1, got %q %v", token, err)
	}
	if len(reader.urls) != 1 || reader.urls[0] != "https://lms.example/api" {
		t.Fatalf("expected url to be forwarded, got %v", reader.urls)
	}

	reader.err = errors.New("denied")
	if _, err := NewGetTokenQuery(reader).Query(context.Background(), GetTokenMessage{URL: "/x"}); err == nil {
		t.Fatalf("expected token failure to bubble")
	}
}

func TestAuthenticatedUserQuery_RefreshUsesFetcher(t *testing.T) {
	users := &stubUsers{
		stored:  &core.AuthenticatedUser{UserID: "1", Username: "stored"},
		fetched: &core.AuthenticatedUser{UserID: "1", Username: "fresh"},
	}
	qry := NewAuthenticatedUserQuery(users, users)

	user, err := qry.Query(context.Background(), AuthenticatedUserMessage{})
	if err != nil || user.Username != "stored" {
		t.Fatalf("expected stored user, got %+v %v", user, err)
	}
	user, err = qry.Query(context.Background(), AuthenticatedUserMessage{Refresh: true})
	if err != nil || user.Username != "fresh" || users.fetches != 1 {
		t.Fatalf("expected refreshed user, got %+v %v", user, err)
	}

	user, err = NewAuthenticatedUserQuery(users, nil).Query(context.Background(), AuthenticatedUserMessage{Refresh: true})
	if err != nil || user.Username != "stored" {
		t.Fatalf("expected refresh without fetcher to read stored user")
	}
}

func TestAuthenticatedUserQuery_UnconfiguredAuthFails(t *testing.T) {
	_, err := NewAuthenticatedUserQuery(core.NewShell(), nil).Query(context.Background(), AuthenticatedUserMessage{})
	if !errors.Is(err, core.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestQueries_ErrorEnvelopes(t *testing.T) {
	var rich *goerrors.Error
	err := GetTokenMessage{}.Validate()
	if !goerrors.As(err, &rich) || rich.TextCode != core.ShellErrorBadInput {
		t.Fatalf("expected bad input validation error, got %v", err)
	}

	var qry *GetConfigQuery
	_, err = qry.Query(context.Background(), GetConfigMessage{})
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
	if _, err := NewGetTokenQuery(nil).Query(context.Background(), GetTokenMessage{URL: "/"}); err == nil {
		t.Fatalf("expected missing token reader to fail")
	}
}
