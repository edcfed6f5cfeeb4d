package main

import (
	"fmt"
	"os"

	"payment-session-reconciler/config"
	"payment-session-reconciler/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "api",
		Short:         "Payment session reconciliation engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")

	load := func() (*config.Config, zerolog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
		}
		return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newTokenCmd(load))
	return root
}

type loadFunc func() (*config.Config, zerolog.Logger, error)
