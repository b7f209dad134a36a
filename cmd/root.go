package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/axellelanca/affiliatelinks/internal/config"
	"github.com/axellelanca/affiliatelinks/internal/database"
	"github.com/axellelanca/affiliatelinks/internal/logger"
)

// Cfg is the configuration loaded before any command runs.
var Cfg *config.Config

// Log is the process logger, built from Cfg.Logger.Level.
var Log *zap.Logger

// RootCmd is the base command. Subcommands register themselves from their
// own init() functions to avoid import cycles.
var RootCmd = &cobra.Command{
	Use:   "affiliatelinks",
	Short: "Affiliate link redirector with click attribution",
	Long: `Affiliate link redirector that resolves short links, counts clicks,
decides which clicks are conversions and keeps daily statistics.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute is called from main.go.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() error {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	var err error
	Cfg, err = config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	Log, err = logger.New(Cfg.Logger.Level)
	if err != nil {
		return err
	}
	return nil
}

// OpenDatabase connects to the configured store and migrates it.
func OpenDatabase() (*gorm.DB, error) {
	db, err := database.Open(Cfg, Log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}
