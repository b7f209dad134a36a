package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/affiliatelinks/cmd"
	"github.com/axellelanca/affiliatelinks/internal/database"
)

// MigrateCmd creates or updates the tables.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Executes database migrations to create or update tables.",
	Long: `This command connects to the configured database (sqlite or postgres)
and runs the GORM automatic migrations for the 'links', 'daily_stats' and
'activities' tables.`,
	RunE: func(c *cobra.Command, args []string) error {
		db, err := cmd.OpenDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		fmt.Fprintln(c.OutOrStdout(), "Database migrations executed successfully.")
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(MigrateCmd)
}
