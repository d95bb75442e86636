package main

import (
	"fmt"

	appshell "github.com/goliatone/go-appshell"
	"github.com/spf13/cobra"
)

// initOptionsForInspection skips user hydration so commands work logged out.
func initOptionsForInspection() appshell.InitOptions {
	return appshell.InitOptions{}
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <url>",
		Short: "Acquire the CSRF token for the origin of url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()

			app, err := opts.bootstrap(ctx, initOptionsForInspection())
			if err != nil {
				return err
			}
			if app.Auth == nil {
				return fmt.Errorf("auth service does not expose csrf tokens")
			}
			token, err := app.Auth.GetCSRFToken(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}
