package main

import (
	"whatsapp-flowbot/internal/database"
	"whatsapp-flowbot/internal/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		if err := database.Migrate(db); err != nil {
			return err
		}
		logger.Info("migration completed")
		return nil
	},
}

var syncSequencesCmd = &cobra.Command{
	Use:   "sync-sequences",
	Short: "Reset PostgreSQL id sequences past the highest stored id",
	Long:  `Needed after rows were imported with explicit ids. Does nothing on SQLite.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return database.SyncSequences(db)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncSequencesCmd)
}
