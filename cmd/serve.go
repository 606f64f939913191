package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/routes"
)

func newServeCommand() *cobra.Command {
	var (
		shutdownTimeout time.Duration
		cleanupInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and device ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger.Info("Starting application",
				zap.String("environment", cfg.Server.Environment),
			)

			db, closeDB, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := routes.NewContainer(ctx, cfg, db)
			if err != nil {
				return err
			}
			defer container.Close()

			if err := container.StartIngestion(); err != nil {
				return err
			}

			go container.Users.StartTokenCleanupJob(ctx, cleanupInterval)

			addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
			server := &http.Server{
				Addr:         addr,
				Handler:      routes.SetupRoutes(container),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("Server starting", zap.String("address", addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			logger.Info("Shutdown Server ...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shutdown server", zap.Error(err))
				return err
			}

			logger.Info("Server exited properly")
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "maximum time to wait for graceful shutdown")
	cmd.Flags().DurationVar(&cleanupInterval, "token-cleanup-interval", time.Hour, "how often stale refresh tokens are purged")

	return cmd
}
