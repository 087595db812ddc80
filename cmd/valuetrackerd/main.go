// Package main provides the valuetrackerd server binary.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asterworks/valuetracker/config"
	"github.com/asterworks/valuetracker/internal/server"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "valuetrackerd",
	Short: "Value Tracker extension storage server",
	Long: `Valuetrackerd hosts the Value Tracker plugin as a standalone HTTP
service. Each registered extension gets its own SQLite-backed store for
characters, instances and key/value data.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the storage server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.New(cfg, logger, version).Run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("valuetrackerd " + version)
	},
}

// newLogger builds the zap-backed logger the rest of the service logs through
func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	var zapLogger *zap.Logger
	var err error

	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapCfg := zap.NewProductionConfig()
		level, parseErr := zap.ParseAtomicLevel(cfg.LogLevel)
		if parseErr != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.LogLevel, parseErr)
		}
		zapCfg.Level = level
		zapLogger, err = zapCfg.Build()
	}
	if err != nil {
		return nil, err
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}
