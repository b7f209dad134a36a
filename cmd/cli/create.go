package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/axellelanca/affiliatelinks/cmd"
	"github.com/axellelanca/affiliatelinks/internal/database"
	"github.com/axellelanca/affiliatelinks/internal/services"
)

var createFlags struct {
	url         string
	name        string
	affiliate   string
	alias       string
	mode        string
	ratio       int64
	batchConv   int64
	batchClicks int64
	minCR       string
	maxCR       string
}

// CreateCmd représente la commande 'create'
var CreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates an affiliate link.",
	Long: `Creates an affiliate link and prints its short identifier.

Examples:
  affiliatelinks create --url="https://shop.example.com/spring" --ratio=5
  affiliatelinks create --url="https://shop.example.com" --alias=summer --mode=smart --batch-conv=1 --batch-clicks=10
  affiliatelinks create --url="https://shop.example.com" --mode=smart --min-cr=10 --max-cr=30`,
	RunE: func(c *cobra.Command, args []string) error {
		in := services.LinkInput{
			Name:           createFlags.name,
			OriginalURL:    createFlags.url,
			AffiliateEmail: createFlags.affiliate,
			Alias:          createFlags.alias,
			Mode:           createFlags.mode,
			Ratio:          createFlags.ratio,
			BatchConv:      createFlags.batchConv,
			BatchClicks:    createFlags.batchClicks,
		}
		var err error
		if in.MinCR, err = parsePercent("min-cr", createFlags.minCR); err != nil {
			return err
		}
		if in.MaxCR, err = parsePercent("max-cr", createFlags.maxCR); err != nil {
			return err
		}

		db, err := cmd.OpenDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		link, err := newLinkService(db).CreateLink(c.Context(), in)
		if err != nil {
			return fmt.Errorf("failed to create link: %w", err)
		}

		fmt.Fprintf(c.OutOrStdout(), "Link created:\n")
		fmt.Fprintf(c.OutOrStdout(), "Short id: %s\n", link.ShortID)
		fmt.Fprintf(c.OutOrStdout(), "Mode: %s\n", link.Mode)
		fmt.Fprintf(c.OutOrStdout(), "Short URL: %s/%s\n", cmd.Cfg.Server.BaseURL, link.ShortID)
		return nil
	},
}

func parsePercent(flag, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s must be a number: %w", flag, err)
	}
	return &d, nil
}

func init() {
	f := CreateCmd.Flags()
	f.StringVar(&createFlags.url, "url", "", "Destination URL")
	f.StringVar(&createFlags.name, "name", "", "Display name")
	f.StringVar(&createFlags.affiliate, "affiliate", "", "Affiliate email")
	f.StringVar(&createFlags.alias, "alias", "", "Custom short id (letters, digits, - and _)")
	f.StringVar(&createFlags.mode, "mode", "ratio", "Attribution mode: ratio or smart")
	f.Int64Var(&createFlags.ratio, "ratio", 0, "ratio mode: every Nth click converts")
	f.Int64Var(&createFlags.batchConv, "batch-conv", 0, "smart mode: conversions per batch")
	f.Int64Var(&createFlags.batchClicks, "batch-clicks", 0, "smart mode: clicks per batch")
	f.StringVar(&createFlags.minCR, "min-cr", "", "smart mode: lowest conversion rate in percent")
	f.StringVar(&createFlags.maxCR, "max-cr", "", "smart mode: highest conversion rate in percent")
	_ = CreateCmd.MarkFlagRequired("url")

	cmd.RootCmd.AddCommand(CreateCmd)
}
