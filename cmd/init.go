package cmd

import (
	"fmt"
	"log"

	"github.com/arcward/scnewsbot/newsbot"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and run migrations",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if cfg.DatabaseType == "" {
			log.Fatal("Environment variable SCN_DATABASE_TYPE not set (must be one of: sqlite, postgres)")
		}
		if cfg.Database == "" {
			log.Fatal(
				"Environment variable SCN_DATABASE not set (must be a valid " +
					"database connection string or sqlite file path)",
			)
		}

		db, err := newsbot.CreateDB(ctx, cfg.DatabaseType, cfg.Database)
		if err != nil {
			log.Fatalf("Error creating database: %v", err)
		}
		if sqlDB, e := db.DB(); e == nil {
			defer sqlDB.Close()
		}

		var count int64
		if err = db.Model(&newsbot.AnnouncementRecord{}).Count(&count).Error; err != nil {
			log.Fatalf("Error checking announcements: %v", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database ready (%d announcements recorded).\n", count)
		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
