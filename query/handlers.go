package query

import (
	"context"

	"github.com/goliatone/go-appshell/core"
)

type ConfigReader interface {
	GetConfig() core.Config
}

// TokenReader is satisfied by *auth.Service.
type TokenReader interface {
	GetCSRFToken(ctx context.Context, rawURL string) (string, error)
}

type UserReader interface {
	GetAuthenticatedUser() (*core.AuthenticatedUser, error)
}

// UserFetcher is the optional capability used when AuthenticatedUserMessage.Refresh is set.
type UserFetcher interface {
	FetchAuthenticatedUser(ctx context.Context) (*core.AuthenticatedUser, error)
}

type GetConfigQuery struct {
	reader ConfigReader
}

func NewGetConfigQuery(reader ConfigReader) *GetConfigQuery {
	return &GetConfigQuery{reader: reader}
}

func (q *GetConfigQuery) Query(_ context.Context, _ GetConfigMessage) (core.Config, error) {
	if q == nil || q.reader == nil {
		return core.Config{}, queryDependencyError("query: config reader is required")
	}
	return q.reader.GetConfig(), nil
}

type GetTokenQuery struct {
	reader TokenReader
}

func NewGetTokenQuery(reader TokenReader) *GetTokenQuery {
	return &GetTokenQuery{reader: reader}
}

func (q *GetTokenQuery) Query(ctx context.Context, msg GetTokenMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: token reader is required")
	}
	return q.reader.GetCSRFToken(ctx, msg.URL)
}

type AuthenticatedUserQuery struct {
	reader  UserReader
	fetcher UserFetcher
}

// NewAuthenticatedUserQuery reads through reader; fetcher may be nil.
func NewAuthenticatedUserQuery(reader UserReader, fetcher UserFetcher) *AuthenticatedUserQuery {
	return &AuthenticatedUserQuery{reader: reader, fetcher: fetcher}
}

func (q *AuthenticatedUserQuery) Query(ctx context.Context, msg AuthenticatedUserMessage) (*core.AuthenticatedUser, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: authenticated user reader is required")
	}
	if msg.Refresh && q.fetcher != nil {
		return q.fetcher.FetchAuthenticatedUser(ctx)
	}
	return q.reader.GetAuthenticatedUser()
}
