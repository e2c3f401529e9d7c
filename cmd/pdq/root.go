package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pdq-signal-server/internal/cache"
	"github.com/pdq-signal-server/internal/config"
	"github.com/pdq-signal-server/internal/logging"
	"github.com/pdq-signal-server/internal/metrics"
	"github.com/pdq-signal-server/internal/runner"
	"github.com/pdq-signal-server/internal/source"
)

// app carries what every command needs once flags are parsed
type app struct {
	configFile string
	logLevel   string

	configManager *config.Manager
	logger        *logrus.Logger
	logCloser     io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "pdq",
		Short:         "Pharmacovigilance signal analysis over FAERS case data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logCloser != nil {
				a.logCloser.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default searches ./config.yaml, ./config/, /etc/pdq/)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(analyzeCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(mcpCmd(a))
	rootCmd.AddCommand(loadCmd(a))
	rootCmd.AddCommand(migrateCmd(a))

	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	configManager, err := config.NewManager(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		if err := configManager.Set("logging.level", a.logLevel); err != nil {
			return err
		}
	}
	// stdout carries the MCP protocol
	if cmd.Name() == "mcp" && configManager.GetConfig().Logging.Output == "stdout" {
		if err := configManager.Set("logging.output", "stderr"); err != nil {
			return err
		}
	}

	logger, closer, err := logging.New(configManager.GetConfig().Logging)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	a.configManager = configManager
	a.logger = logger
	a.logCloser = closer
	return nil
}

// newRunner validates the configuration and wires the selected source to
// the analysis pipeline. The cleanup releases the source's connections.
func (a *app) newRunner(ctx context.Context, m *metrics.Metrics) (*runner.Runner, func(), error) {
	if err := a.configManager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := a.configManager.GetConfig()

	src, cleanup, err := source.New(ctx, cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open record source: %w", err)
	}
	return runner.New(src, cfg.Analysis, cache.New(cfg.Cache), m, a.logger), cleanup, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
