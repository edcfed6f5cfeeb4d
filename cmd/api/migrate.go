package main

import (
	pgStorage "payment-session-reconciler/internal/adapter/storage/postgres"
	"payment-session-reconciler/pkg/logger"

	"github.com/spf13/cobra"
)

func newMigrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			return pgStorage.Migrate(cfg.Database.MigrateURL(), logger.Component(log, "migrate"))
		},
	}
}
