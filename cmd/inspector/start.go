package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"webmcp-inspector/internal/app"
	"webmcp-inspector/internal/infra/config"
)

// startFlagBindings maps config keys to the start flags that override them.
var startFlagBindings = map[string]string{
	"transport":                    "transport",
	"http.addr":                    "http-addr",
	"http.path":                    "http-path",
	"cdp.host":                     "cdp-host",
	"cdp.port":                     "cdp-port",
	"browser.launch":               "launch",
	"browser.channel":              "channel",
	"browser.headless":             "headless",
	"browser.url":                  "url",
	"extension.enabled":            "extension",
	"extension.wsPort":             "ws-port",
	"extension.meta":               "extension-meta",
	"extension.callTimeoutSeconds": "call-timeout",
	"observability.enabled":        "observability",
	"observability.listenAddress":  "observability-addr",
}

type startOptions struct {
	noCDP bool
	port  int
}

func newStartCmd(opts *cliOptions) *cobra.Command {
	var startOpts startOptions
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveStartConfig(cmd.Context(), opts, cmd.Flags(), startOpts)
			if err != nil {
				return err
			}

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := app.InitializeApplication(app.ServeConfig{Config: cfg}, app.LoggingConfig{Logger: opts.logger})
			if err != nil {
				return err
			}
			return application.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("transport", "", "MCP transport (stdio, streamable-http)")
	flags.String("http-addr", "", "streamable HTTP listen address")
	flags.String("http-path", "", "streamable HTTP endpoint path")
	flags.IntVar(&startOpts.port, "port", 0, "streamable HTTP port on 127.0.0.1 (shorthand for --http-addr)")
	flags.String("cdp-host", "", "Chrome DevTools host")
	flags.Int("cdp-port", 0, "Chrome DevTools port")
	flags.BoolVar(&startOpts.noCDP, "no-cdp", false, "disable the CDP browser source")
	flags.Bool("launch", false, "launch a browser instead of attaching")
	flags.String("channel", "", "browser channel to launch (chrome, chrome-beta, chrome-dev, chrome-canary)")
	flags.Bool("headless", false, "launch the browser headless")
	flags.String("url", "", "URL to open after connecting")
	flags.Bool("extension", false, "enable the browser extension bridge")
	flags.Int("ws-port", 0, "extension WebSocket port")
	flags.Bool("extension-meta", false, "expose extension tools through webmcp_* meta tools")
	flags.Int("call-timeout", 0, "extension tool call timeout in seconds")
	flags.Bool("observability", false, "serve /metrics and /healthz")
	flags.String("observability-addr", "", "observability listen address")

	return cmd
}

func resolveStartConfig(ctx context.Context, opts *cliOptions, flags *pflag.FlagSet, startOpts startOptions) (config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	overrides := map[string]any{}
	if startOpts.noCDP {
		overrides["cdp.enabled"] = false
	}
	if flags.Changed("port") {
		if startOpts.port <= 0 || startOpts.port > 65535 {
			return config.Config{}, fmt.Errorf("--port must be in 1-65535, got %d", startOpts.port)
		}
		if flags.Changed("http-addr") {
			return config.Config{}, fmt.Errorf("--port and --http-addr are mutually exclusive")
		}
		overrides["http.addr"] = net.JoinHostPort("127.0.0.1", strconv.Itoa(startOpts.port))
	}

	return config.NewLoader(opts.logger).Load(ctx, config.LoadOptions{
		Path:      opts.configPath,
		Flags:     flags,
		Bindings:  startFlagBindings,
		Overrides: overrides,
	})
}
