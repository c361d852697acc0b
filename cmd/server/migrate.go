package main

import (
	"github.com/maheshrc27/crosspost/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.Open(cmd.Context(), cfg.PostgresURI)
			if err != nil {
				return err
			}
			defer closeDB(db)

			if down {
				return database.MigrateDown(cmd.Context(), db)
			}
			return database.Migrate(cmd.Context(), db)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "revert every applied migration")
	return cmd
}
