package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/logging"
	"github.com/sheetengine/sheetengine/internal/sheetdb"
	"github.com/sheetengine/sheetengine/pkg/config"
)

// Version is set during build.
var Version = "0.1.0"

var category string

var rootCmd = &cobra.Command{
	Use:     "sheetctl",
	Short:   "Operator CLI for the sheet engine",
	Version: Version,
	Long: `sheetctl migrates legacy JSON sheets into SQLite category databases,
exports them back out, and manages sheet/column schema directly against
a category database file. Stop sheetengined for the category first —
sheetctl opens its own writer connection and does not go through the
gateway.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&category, "category", "g", "", "category database name (required)")
	cobra.OnInitialize(func() {
		cfg, err := config.Load()
		if err == nil {
			logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		}
	})
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireCategory() {
	if category == "" {
		fmt.Fprintln(os.Stderr, "error: --category is required")
		os.Exit(1)
	}
}

// loadConfig loads configuration and ensures the category directory
// exists.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("creating category directory: %w", err)
	}
	return cfg, nil
}

// openConn opens the named category's database directly for
// administrative use (schema migrations, exports, schema edits).
func openConn(cfg *config.Config, categoryName string) (*sheetdb.Connection, error) {
	return sheetdb.WriterConn(cfg.DatabasePath(categoryName))
}
