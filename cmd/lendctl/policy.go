package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/liwaywai/lending-api/internal/config"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/pkg/database"
)

// policyService builds the policy service with the API's active-version cache, so
// that activations made here are seen by running servers at once. The returned
// func releases the Redis connection.
func policyService(cfg *config.Config, db *sqlx.DB) (*policy.Service, func()) {
	client, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, policy cache will expire on its own")
		client = nil
	}
	svc := policy.NewService(policy.NewRepository(db), policy.NewCache(client, cfg.PolicyCacheTTL))
	return svc, func() { database.CloseRedis(client) }
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage policy versions",
	}
	cmd.AddCommand(policySeedCmd(), policyActivateCmd(), policyListCmd(), policyExportCmd())
	return cmd
}

func policySeedCmd() *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Create a policy version from a YAML file",
		Long: `Create a policy version from a YAML file.

Versions are immutable: seeding an existing version fails.

Examples:
  lendctl policy seed policies/v1.1.0.yaml
  lendctl policy seed policies/v1.1.0.yaml --activate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, params, err := policy.LoadSeedFile(args[0])
			if err != nil {
				return err
			}

			cfg, db, err := connect()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			svc, release := policyService(cfg, db)
			defer release()
			v, err := svc.Publish(cmd.Context(), version, params, nil, activate)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created policy %s (active: %t)\n", v.Version, activate)
			return nil
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "make the new version active")
	return cmd
}

func policyActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <version>",
		Short: "Make an existing policy version the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := connect()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			svc, release := policyService(cfg, db)
			defer release()
			if err := svc.Activate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated policy %s\n", args[0])
			return nil
		},
	}
}

func policyListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent policy versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := connect()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			versions, err := policy.NewService(policy.NewRepository(db), nil).List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tACTIVE\tCREATED")
			for _, v := range versions {
				active := ""
				if v.IsActive {
					active = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Version, active, v.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum versions to show")
	return cmd
}

func policyExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <version>",
		Short: "Write a stored policy version as seed YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := connect()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			v, err := policy.NewRepository(db).GetByVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			doc, err := policy.EncodeSeed(v.Version, v.Params)
			if err != nil {
				return err
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			return os.WriteFile(out, doc, 0o644)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	return cmd
}
