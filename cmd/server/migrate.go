package main

import (
	"context"
	"fmt"
	"time"

	"alcyxob/notes-app/internal/repository/mongo"
	"alcyxob/notes-app/internal/repository/postgres"

	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update relational tables and MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.openDatabases(); err != nil {
				return err
			}
			if err := postgres.AutoMigrate(a.db); err != nil {
				return fmt.Errorf("migrate relational schema: %w", err)
			}
			a.log.Info("relational schema migrated")

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := mongo.EnsureIndexes(ctx, a.docDB); err != nil {
				return fmt.Errorf("ensure MongoDB indexes: %w", err)
			}
			a.log.Info("MongoDB indexes ensured")
			return nil
		},
	}
}
