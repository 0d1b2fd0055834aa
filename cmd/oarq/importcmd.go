package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/libsys/oarequest/internal/config"
	"github.com/libsys/oarequest/internal/importer"
	"github.com/libsys/oarequest/internal/store"
)

var importAuthorID string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an author and their qualifying publications",
	Long: `Import fetches one author from the Elements API, stores the author and
their organizational unit, then walks the author's publications feed and
stores every publication that qualifies for an open-access email request.
Importing the same author again updates the author in place and leaves
already-imported publications untouched.`,
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

		im := importer.New(newClient(cfg, logger), db, logger)
		summary, err := im.Run(cmd.Context(), importAuthorID)
		if err != nil {
			return err
		}
		logger.Info("done",
			"author_id", summary.AuthorID,
			"imported", summary.Imported,
			"elapsed", time.Since(start).Round(time.Millisecond).String())
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importAuthorID, "author-id", "", "Author identifier in Symplectic Elements (required)")
	importCmd.MarkFlagRequired("author-id")
	rootCmd.AddCommand(importCmd)
}
