package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-appshell/config"
	"github.com/goliatone/go-appshell/core"
	"github.com/spf13/cobra"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the config file on change and report CONFIG_CHANGED events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configFile == "" {
				return fmt.Errorf("--config is required for watch")
			}
			ctx := cmd.Context()
			startCtx, cancel := opts.withTimeout(ctx)
			app, err := opts.bootstrap(startCtx, initOptionsForInspection())
			cancel()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := app.Shell.Subscribe(core.TopicConfigChanged, func(_ string, data any) {
				if change, ok := data.(config.Change); ok {
					fmt.Fprintf(out, "config changed: %v\n", change.Keys)
					return
				}
				fmt.Fprintln(out, "config changed")
			}); err != nil {
				return err
			}

			watcher, err := config.NewWatcher(opts.configFile, app.Shell, config.WithWatchLogger(app.Shell.Logger()))
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				server := &http.Server{Addr: metricsAddr, Handler: opts.recorder().Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						core.Log(ctx, app.Shell.Logger(), "error", "metrics server stopped", map[string]any{"error": err.Error()})
					}
				}()
				defer func() {
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					_ = server.Shutdown(shutdownCtx)
				}()
			}

			fmt.Fprintf(out, "watching %s\n", opts.configFile)
			return watcher.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}
