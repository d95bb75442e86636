package main

import (
	"context"
	"time"

	appshell "github.com/goliatone/go-appshell"
	"github.com/goliatone/go-appshell/adapters/prommetrics"
	"github.com/goliatone/go-appshell/config"
	"github.com/goliatone/go-appshell/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	envFiles   []string
	baseURL    string
	lmsBaseURL string
	timeout    time.Duration

	metrics *prommetrics.Recorder
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "appshell",
		Short: "Inspect and exercise an application shell configuration",
		Long: `appshell loads the shell configuration the same way an embedding
application does (YAML file, dotenv files, APPSHELL_* variables and the remote
runtime config endpoint) and runs the startup sequence against it.

Examples:
  appshell config -c shell.yaml                 # print the resolved config
  appshell token https://lms.example/api        # acquire a CSRF token
  appshell request POST /api/enrollment -d '{}' # authenticated request
  appshell flush --driver sqlite3 --dsn file:outbox.db
  appshell watch -c shell.yaml --metrics-addr :9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	flags.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files read before APPSHELL_* variables")
	flags.StringVar(&opts.baseURL, "base-url", "", "override base_url")
	flags.StringVar(&opts.lmsBaseURL, "lms-base-url", "", "override lms_base_url")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for startup and requests")

	cmd.AddCommand(
		newConfigCommand(opts),
		newTokenCommand(opts),
		newRequestCommand(opts),
		newFlushCommand(opts),
		newWatchCommand(opts),
	)
	return cmd
}

// loader layers the config file under the environment.
func (o *rootOptions) loader() core.RawConfigLoader {
	return config.ChainLoader{
		config.FileLoader{Path: o.configFile, Required: o.configFile != ""},
		config.EnvLoader{Files: o.envFiles},
	}
}

func (o *rootOptions) recorder() *prommetrics.Recorder {
	if o.metrics == nil {
		o.metrics = prommetrics.New(prometheus.NewRegistry(), prommetrics.WithNamespace("appshell_cli"))
	}
	return o.metrics
}

// bootstrap builds a shell and runs Initialize with the command line config.
func (o *rootOptions) bootstrap(ctx context.Context, init appshell.InitOptions) (*appshell.App, error) {
	shell, err := appshell.NewShell(appshell.WithMetricsRecorder(o.recorder()))
	if err != nil {
		return nil, err
	}
	init.ConfigLoader = o.loader()
	init.Overrides = core.Config{BaseURL: o.baseURL, LMSBaseURL: o.lmsBaseURL}
	return appshell.Initialize(ctx, shell, init)
}

func (o *rootOptions) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}
