package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-appshell/core"
	"github.com/goliatone/go-appshell/transport"
	"github.com/spf13/cobra"
)

func newRequestCommand(opts *rootOptions) *cobra.Command {
	var (
		data    string
		headers []string
		public  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "request <method> <url>",
		Short: "Send a request through the authenticated client pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()

			req, err := buildRequest(args[0], args[1], data, headers, public)
			if err != nil {
				return err
			}
			app, err := opts.bootstrap(ctx, initOptionsForInspection())
			if err != nil {
				return err
			}
			client, err := app.Shell.AuthenticatedHTTPClient()
			if err != nil {
				return err
			}

			res, err := client.Do(ctx, req)
			if err != nil {
				if attrs := transport.Attributes(err); len(attrs) > 0 && verbose {
					for key, value := range attrs {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", key, value)
					}
				}
				return err
			}
			out := cmd.OutOrStdout()
			if verbose {
				fmt.Fprintf(out, "%d %s\n", res.StatusCode, http.StatusText(res.StatusCode))
				for key, value := range res.Headers {
					fmt.Fprintf(out, "%s: %s\n", key, value)
				}
				fmt.Fprintln(out)
			}
			_, err = out.Write(res.Body)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&data, "data", "d", "", "request body")
	flags.StringArrayVarP(&headers, "header", "H", nil, "extra header as 'Name: value'")
	flags.BoolVar(&public, "public", false, "skip token injection")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print status and headers")
	return cmd
}

func buildRequest(method string, rawURL string, data string, headers []string, public bool) (*core.Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, core.BadInputError("request method is required")
	}
	req := &core.Request{
		Method:   method,
		URL:      strings.TrimSpace(rawURL),
		IsPublic: public,
	}
	if data != "" {
		req.Body = []byte(data)
		req.SetHeader("Content-Type", "application/json")
	}
	for _, header := range headers {
		name, value, ok := strings.Cut(header, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, core.BadInputError(fmt.Sprintf("invalid header %q, want 'Name: value'", header))
		}
		req.SetHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return req, nil
}
