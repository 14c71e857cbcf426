package main

import (
	"context"
	"errors"

	"verified-checkout/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and payments tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := database.NewPostgres(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			db := database.New(pool, logger)
			defer db.Close()

			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema is up to date")
			return nil
		},
	}
}
