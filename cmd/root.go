package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/config"
	"medication-adherence-monitor/internal/infrastructure/database/postgres"
	"medication-adherence-monitor/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "medication-adherence-monitor",
	Short: "Medication adherence backend for pill dispensers and their care teams.",
	Long: `Tracks scheduled medication doses from smart dispensers, reconciles
their lifecycle and reports adherence to patients, caretakers and doctors.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".env", "env file to read configuration from")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newCleanupTokensCommand())
	rootCmd.AddCommand(newCreateAdminCommand())
}

// bootstrap loads configuration and initializes the global logger. It does
// not validate; commands check what they need.
// Callers must defer logger.Sync.
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	var sink *logger.FileSink
	if cfg.Log.FilePath != "" {
		sink = &logger.FileSink{
			Path:       cfg.Log.FilePath,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	if err := logger.Init(cfg.Server.Environment, sink); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*postgres.DB, func(), error) {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}
	return db, closeFn, nil
}
