package query

import (
	"github.com/goliatone/go-appshell/auth"
	"github.com/goliatone/go-appshell/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetConfigMessage, core.Config]                     = (*GetConfigQuery)(nil)
	_ gocmd.Querier[GetTokenMessage, string]                           = (*GetTokenQuery)(nil)
	_ gocmd.Querier[AuthenticatedUserMessage, *core.AuthenticatedUser] = (*AuthenticatedUserQuery)(nil)

	_ ConfigReader = (*core.Shell)(nil)
	_ UserReader   = (*core.Shell)(nil)
	_ TokenReader  = (*auth.Service)(nil)
	_ UserFetcher  = (*auth.Service)(nil)
)
