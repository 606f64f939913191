package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medication-adherence-monitor/internal/infrastructure/database/postgres"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/usecase/user"
)

func newCleanupTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Purge expired and revoked refresh tokens once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, closeDB, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			svc := user.NewService(postgres.NewUserRepository(db), postgres.NewRefreshTokenRepository(db), cfg)
			n, err := svc.CleanupExpiredTokens(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d refresh token(s).\n", n)
			return nil
		},
	}
}
