package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pulsewatch/internal/config"
	"pulsewatch/internal/logging"
	"pulsewatch/internal/storage"
	"pulsewatch/internal/storage/postgres"
	"pulsewatch/internal/storage/sqlite"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pulsewatch",
	Short: "Uptime monitor execution and alerting engine",
	Long: `pulsewatch probes HTTP, keyword and ping monitors on a schedule, accepts
heartbeats and server metrics from agents, and sends webhook alerts when
a monitor goes down, slows down or stops reporting.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); PULSEWATCH_* env vars override it")
	rootCmd.AddCommand(serveCmd, agentCmd, importCmd, keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every command.
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger logrus.FieldLogger) (storage.Storer, error) {
	logger.WithField("driver", cfg.Driver).Info("initializing database connection...")
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		return store, nil
	}
}
