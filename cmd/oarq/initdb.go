package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/libsys/oarequest/internal/config"
	"github.com/libsys/oarequest/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database schema",
	Long: `Init-db creates the database file and its tables if they do not exist.
Running it against an existing database is harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		logger := newLogger()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		logger.Info("database initialized",
			"path", cfg.DBPath,
			"elapsed", time.Since(start).Round(time.Millisecond).String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
