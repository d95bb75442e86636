package appshell

import (
	"fmt"

	appcommand "github.com/goliatone/go-appshell/command"
	"github.com/goliatone/go-appshell/core"
	appquery "github.com/goliatone/go-appshell/query"
)

type Commands struct {
	Publish     *appcommand.PublishCommand
	MergeConfig *appcommand.MergeConfigCommand
	TrackEvent  *appcommand.TrackEventCommand
	LogError    *appcommand.LogErrorCommand
}

type Queries struct {
	GetConfig         *appquery.GetConfigQuery
	GetToken          *appquery.GetTokenQuery
	AuthenticatedUser *appquery.AuthenticatedUserQuery
}

type Facade struct {
	shell    *core.Shell
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	tokens  appquery.TokenReader
	fetcher appquery.UserFetcher
}

// WithTokenReader sets the CSRF token source behind GetToken. Without it the
// auth service installed in the shell is used when it can read tokens.
func WithTokenReader(reader appquery.TokenReader) FacadeOption {
	return func(options *facadeOptions) {
		options.tokens = reader
	}
}

func WithUserFetcher(fetcher appquery.UserFetcher) FacadeOption {
	return func(options *facadeOptions) {
		options.fetcher = fetcher
	}
}

func NewFacade(shell *core.Shell, opts ...FacadeOption) (*Facade, error) {
	if shell == nil {
		return nil, fmt.Errorf("appshell: shell is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.tokens == nil || cfg.fetcher == nil {
		tokens, fetcher := resolveAuthReaders(shell)
		if cfg.tokens == nil {
			cfg.tokens = tokens
		}
		if cfg.fetcher == nil {
			cfg.fetcher = fetcher
		}
	}

	facade := &Facade{shell: shell}
	facade.commands = Commands{
		Publish:     appcommand.NewPublishCommand(shell),
		MergeConfig: appcommand.NewMergeConfigCommand(shell),
		TrackEvent:  appcommand.NewTrackEventCommand(shell),
		LogError:    appcommand.NewLogErrorCommand(shell),
	}
	facade.queries = Queries{
		GetConfig:         appquery.NewGetConfigQuery(shell),
		GetToken:          appquery.NewGetTokenQuery(cfg.tokens),
		AuthenticatedUser: appquery.NewAuthenticatedUserQuery(shell, cfg.fetcher),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Shell() *core.Shell {
	if f == nil {
		return nil
	}
	return f.shell
}

func resolveAuthReaders(shell *core.Shell) (appquery.TokenReader, appquery.UserFetcher) {
	service, err := shell.AuthService()
	if err != nil || service == nil {
		return nil, nil
	}
	tokens, _ := service.(appquery.TokenReader)
	fetcher, _ := service.(appquery.UserFetcher)
	return tokens, fetcher
}
