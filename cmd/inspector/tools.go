package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/gateway"
)

const disconnectTimeout = 5 * time.Second

type browserFlags struct {
	host string
	port int
}

func (f *browserFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", domain.DefaultCDPHost, "Chrome DevTools host")
	cmd.Flags().IntVar(&f.port, "port", domain.DefaultCDPPort, "Chrome DevTools port")
}

func (f *browserFlags) sourceConfig() domain.SourceConfig {
	return domain.SourceConfig{Host: f.host, Port: f.port}
}

func newListToolsCmd(opts *cliOptions) *cobra.Command {
	var (
		flags browserFlags
		page  bool
	)
	cmd := &cobra.Command{
		Use:   "list-tools",
		Short: "List tools exposed by the connected browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			return withBrowserSource(ctx, opts, flags.sourceConfig(), func(src domain.Source) error {
				out := cmd.OutOrStdout()
				if page {
					result, err := src.CallTool(ctx, "webmcp_list_tools", "{}")
					if err != nil {
						return err
					}
					return printPageTools(out, result)
				}
				printTools(out, src.ListTools())
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&page, "page", false, "list tools registered by the active page through WebMCP")
	return cmd
}

func newCallToolCmd(opts *cliOptions) *cobra.Command {
	var (
		flags   browserFlags
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "call-tool <name> [args]",
		Short: "Invoke a browser tool with JSON arguments",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			argsJSON := "{}"
			if len(args) > 1 {
				argsJSON = args[1]
			}
			if !json.Valid([]byte(argsJSON)) {
				return fmt.Errorf("invalid JSON arguments: %s", argsJSON)
			}

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			return withBrowserSource(ctx, opts, flags.sourceConfig(), func(src domain.Source) error {
				result, err := src.CallTool(ctx, name, argsJSON)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					text, err := gateway.MarshalResult(result)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(out, text)
					return err
				}
				printResult(out, result)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result contents as JSON")
	return cmd
}

// withBrowserSource connects a browser source for the duration of fn.
func withBrowserSource(ctx context.Context, opts *cliOptions, cfg domain.SourceConfig, fn func(domain.Source) error) error {
	src := opts.newSource(opts.logger)
	if err := src.Connect(ctx, cfg); err != nil {
		return fmt.Errorf("connect to browser at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := src.Disconnect(dctx); err != nil {
			opts.logger.Warn("disconnect failed", zap.Error(err))
		}
	}()
	return fn(src)
}

func printTools(out io.Writer, tools []domain.Tool) {
	if len(tools) == 0 {
		fmt.Fprintln(out, "No tools found.")
		return
	}
	fmt.Fprintf(out, "Found %d tool(s):\n", len(tools))
	for _, tool := range tools {
		fmt.Fprintf(out, "  %s: %s\n", tool.Name, tool.Description)
		fmt.Fprintf(out, "    Input: %s\n", compactSchema(tool.InputSchema))
	}
}

// printPageTools renders the webmcp_list_tools result. Non-JSON text is an
// availability message and is printed as is.
func printPageTools(out io.Writer, result domain.CallResult) error {
	text := firstText(result)
	var tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal([]byte(text), &tools); err != nil {
		_, err = fmt.Fprintln(out, text)
		return err
	}
	if len(tools) == 0 {
		fmt.Fprintln(out, "No WebMCP tools found.")
		return nil
	}
	converted := make([]domain.Tool, 0, len(tools))
	for _, tool := range tools {
		converted = append(converted, domain.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: string(tool.InputSchema),
		})
	}
	printTools(out, converted)
	return nil
}

func printResult(out io.Writer, result domain.CallResult) {
	for _, item := range result.Contents() {
		switch item.Type {
		case domain.ContentImage:
			fmt.Fprintf(out, "[image %s, %d base64 bytes]\n", item.MimeType, len(item.Data))
		default:
			fmt.Fprintln(out, item.Text)
		}
	}
}

func firstText(result domain.CallResult) string {
	for _, item := range result.Contents() {
		if item.Type == domain.ContentText {
			return item.Text
		}
	}
	return ""
}

func compactSchema(raw string) string {
	data, err := json.Marshal(domain.ParseSchema(raw))
	if err != nil {
		return raw
	}
	return string(data)
}
