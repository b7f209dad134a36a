package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/affiliatelinks/cmd"
	"github.com/axellelanca/affiliatelinks/internal/clock"
	"github.com/axellelanca/affiliatelinks/internal/database"
	"github.com/axellelanca/affiliatelinks/internal/repository"
	"github.com/axellelanca/affiliatelinks/internal/services"
)

var pruneKeep int

// PruneCmd trims the activity feed once.
var PruneCmd = &cobra.Command{
	Use:   "prune-activity",
	Short: "Deletes all but the most recent activity entries.",
	RunE: func(c *cobra.Command, args []string) error {
		keep := cmd.Cfg.Activity.Retention
		if c.Flags().Changed("keep") {
			keep = pruneKeep
		}

		db, err := cmd.OpenDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		svc := services.NewActivityService(repository.NewActivityRepository(db), clock.New(), cmd.Log)
		deleted, err := svc.Prune(c.Context(), keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "%d activity entries deleted, %d kept at most.\n", deleted, keep)
		return nil
	},
}

func init() {
	PruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "Entries to keep (defaults to activity.retention)")
	cmd.RootCmd.AddCommand(PruneCmd)
}
