package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/axellelanca/affiliatelinks/cmd"
	"github.com/axellelanca/affiliatelinks/internal/clock"
	"github.com/axellelanca/affiliatelinks/internal/database"
	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/repository"
	"github.com/axellelanca/affiliatelinks/internal/services"
)

var statsFrom, statsTo string

// StatsCmd représente la commande 'stats'
var StatsCmd = &cobra.Command{
	Use:   "stats [short-id]",
	Short: "Shows lifetime and daily statistics of a link.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	StatsCmd.Flags().StringVar(&statsFrom, "from", "", "First day (YYYY-MM-DD), defaults to 30 days ago")
	StatsCmd.Flags().StringVar(&statsTo, "to", "", "Last day (YYYY-MM-DD), defaults to today")
	cmd.RootCmd.AddCommand(StatsCmd)
}

func newLinkService(db *gorm.DB) *services.LinkService {
	return services.NewLinkService(
		repository.NewLinkRepository(db),
		repository.NewDailyStatRepository(db),
		nil,
		clock.New(),
		cmd.Log,
		cmd.Cfg.Links.ShortIDLength,
	)
}

func runStats(c *cobra.Command, args []string) error {
	shortID := args[0]

	db, err := cmd.OpenDatabase()
	if err != nil {
		return err
	}
	defer database.Close(db)

	linkService := newLinkService(db)
	link, err := linkService.GetLinkStats(c.Context(), shortID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("short id '%s' not found", shortID)
		}
		return fmt.Errorf("error retrieving statistics: %w", err)
	}
	days, err := linkService.DailyStats(c.Context(), shortID, statsFrom, statsTo)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "Statistics for %s\n", link.ShortID)
	fmt.Fprintf(out, "Destination: %s\n", link.OriginalURL)
	fmt.Fprintf(out, "Mode: %s\n", link.Mode)
	fmt.Fprintf(out, "Clicks: %d\n", link.Clicks)
	fmt.Fprintf(out, "Conversions: %d\n", link.Conversions)
	fmt.Fprintf(out, "Conversion rate: %s%%\n", link.ConversionRate().StringFixed(2))
	fmt.Fprintf(out, "Created: %s\n\n", link.CreatedAt.Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tCLICKS\tCONVERSIONS")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d\t%d\n", d.Day, d.Clicks, d.Conversions)
	}
	return w.Flush()
}
