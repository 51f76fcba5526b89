package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/clientconfig"
)

func newConfigCmd(opts *cliOptions) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:       "config <client>",
		Short:     "Point an MCP client at the inspector",
		Long:      "Writes the inspector server entry into the MCP config of claude, cursor or codex.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: clientconfig.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientconfig.ParseClient(args[0])
			if err != nil {
				return err
			}
			writer, err := clientconfig.NewWriter(opts.logger)
			if err != nil {
				return err
			}
			result, err := writer.Configure(client, url)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Configured %s at %s\n", result.Client, result.Path)
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", domain.DefaultClientServerURL, "MCP server URL")
	return cmd
}
