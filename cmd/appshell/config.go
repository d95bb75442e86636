package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	var require []string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved shell config as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()

			app, err := opts.bootstrap(ctx, initOptionsForInspection())
			if err != nil {
				return err
			}
			cfg := app.Shell.GetConfig()

			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			if err := encoder.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if err := encoder.Close(); err != nil {
				return err
			}

			if len(require) == 0 {
				return nil
			}
			missing, err := app.Shell.EnsureConfig(require, "appshell-cli")
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&require, "require", nil, "fail when any of these config keys is unset")
	return cmd
}
