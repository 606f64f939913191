package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"medication-adherence-monitor/internal/infrastructure/database/postgres"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/usecase/user"
)

func newCreateAdminCommand() *cobra.Command {
	var req user.CreateAdminRequest

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Provision an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Email == "" || req.Password == "" {
				return errors.New("--email and --password are required")
			}

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
			admin, err := svc.CreateAdmin(cmd.Context(), &req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Admin %s created (%s).\n", admin.Email, admin.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "login email")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password")

	return cmd
}
