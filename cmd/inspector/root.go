package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webmcp-inspector/internal/app"
	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/browser"
)

type cliOptions struct {
	configPath string
	logLevel   string
	envFile    string
	logger     *zap.Logger
	// newSource builds the browser source used by list-tools and call-tool.
	newSource func(logger *zap.Logger) domain.Source
}

func newRootCommand() *cobra.Command {
	return newRootCmd(&cliOptions{
		logLevel: "info",
		envFile:  ".env",
		logger:   zap.NewNop(),
		newSource: func(logger *zap.Logger) domain.Source {
			return browser.NewSource(browser.Options{Logger: logger})
		},
	})
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "inspector",
		Short:         "Bridge browser WebMCP tools to MCP clients",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			logger, err := buildLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (optional)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", opts.envFile, "dotenv file loaded before config resolution")

	root.AddCommand(
		newStartCmd(opts),
		newListToolsCmd(opts),
		newCallToolCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// buildLogger writes to stderr; stdout belongs to the stdio transport.
func buildLogger(level string) (*zap.Logger, error) {
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = atomic
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// loadEnvFile loads path into the environment. A missing file is fine and
// variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
