package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/affiliatelinks/cmd"
	"github.com/axellelanca/affiliatelinks/internal/database"
)

// DeleteCmd removes a link and its daily statistics.
var DeleteCmd = &cobra.Command{
	Use:   "delete [short-id]",
	Short: "Deletes a link and its daily statistics.",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		db, err := cmd.OpenDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := newLinkService(db).DeleteLink(c.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete %s: %w", args[0], err)
		}
		fmt.Fprintf(c.OutOrStdout(), "Link %s deleted.\n", args[0])
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(DeleteCmd)
}
