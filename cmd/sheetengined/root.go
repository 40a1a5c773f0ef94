package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "sheetengined",
	Short:   "Single-writer gateway daemon for the sheet engine",
	Version: Version,
	Long: `sheetengined serializes every write against every category database
through one exec_batch HTTP endpoint, so any number of readers can open
the SQLite files directly while writes stay single-threaded.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log_level", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
