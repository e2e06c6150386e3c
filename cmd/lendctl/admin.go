package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liwaywai/lending-api/internal/domain/auth"
	"github.com/liwaywai/lending-api/internal/domain/user"
	"github.com/liwaywai/lending-api/internal/pkg/database"
	"github.com/liwaywai/lending-api/internal/pkg/jwt"
)

const minAdminPassword = 8

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin account management",
	}
	cmd.AddCommand(adminCreateCmd())
	return cmd
}

func adminCreateCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Provision an admin account",
		Long: `Provision an admin account.

The password comes from --password or, when omitted, LENDCTL_ADMIN_PASSWORD.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("LENDCTL_ADMIN_PASSWORD")
			}
			if len(password) < minAdminPassword {
				return fmt.Errorf("password must be at least %d characters", minAdminPassword)
			}

			cfg, db, err := connect()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			svc := auth.NewService(db, user.NewRepository(db), nil, nil, nil, nil, jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL))
			u, err := svc.CreateAdmin(cmd.Context(), args[0], password)
			if err != nil {
				if errors.Is(err, auth.ErrEmailAlreadyExists) {
					return fmt.Errorf("%s is already registered", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password")
	return cmd
}
