// Package appshell assembles the application shell: one pluggable service per
// subsystem (config, logging, pub/sub, analytics and auth) behind a caller-owned
// core.Shell, plus the startup sequence that installs them.
package appshell

import "github.com/goliatone/go-appshell/core"

type Config = core.Config

type ServiceSelection = core.ServiceSelection

type Shell = core.Shell

type Option = core.Option

type ServiceOptions = core.ServiceOptions

type AuthenticatedUser = core.AuthenticatedUser

type Request = core.Request

type Response = core.Response

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithHTTPClient      = core.WithHTTPClient
	WithErrorMapper     = core.WithErrorMapper
	WithCatalog         = core.WithCatalog
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewShell returns a shell whose catalog already holds the default
// implementations. A WithCatalog option replaces it.
func NewShell(opts ...Option) (*Shell, error) {
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	options := append([]Option{core.WithCatalog(catalog)}, opts...)
	return core.NewShell(options...), nil
}
