package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liwaywai/lending-api/internal/domain/share"
	"github.com/liwaywai/lending-api/internal/pkg/database"
	"github.com/liwaywai/lending-api/internal/pkg/storage"
)

func sharesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shares",
		Short: "Share token maintenance",
	}
	cmd.AddCommand(sharesReapCmd())
	return cmd
}

func sharesReapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Archive and delete share tokens past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := connect()
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)

			archive, err := storage.New(storage.Config{
				Driver:      cfg.ArchiveDriver,
				LocalPath:   cfg.ArchiveLocalPath,
				S3Endpoint:  cfg.S3Endpoint,
				S3Region:    cfg.S3Region,
				S3Bucket:    cfg.S3Bucket,
				S3AccessKey: cfg.S3AccessKey,
				S3SecretKey: cfg.S3SecretKey,
			})
			if err != nil {
				return err
			}

			n, err := share.NewReaper(share.NewRepository(db), archive, cfg.ShareRetention).RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %d share tokens\n", n)
			return err
		},
	}
}
