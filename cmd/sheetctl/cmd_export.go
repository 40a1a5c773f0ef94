package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/migration"
	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

var (
	exportOutputDir string
	exportAll       bool
)

var exportCmd = &cobra.Command{
	Use:   "export [sheet]",
	Short: "Export a sheet (or every sheet with --all) back to JSON",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runExport(args)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportOutputDir, "out", "", "output folder (defaults to migration.source_dir)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every sheet in the category")
}

func runExport(args []string) {
	requireCategory()
	if !exportAll && len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: specify a sheet name or pass --all")
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	outDir := exportOutputDir
	if outDir == "" {
		outDir = cfg.Migration.SourceDir
	}

	conn, err := openConn(cfg, category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening category database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	daemon := sheetdb.NewLocalExecBatcher(conn)

	var names []string
	if exportAll {
		names, err = sheetdb.ListMainSheets(conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing sheets: %v\n", err)
			os.Exit(1)
		}
	} else {
		names = args
	}

	failed := 0
	for _, name := range names {
		if err := migration.ExportSheetToJSON(conn, daemon, name, outDir); err != nil {
			fmt.Fprintf(os.Stderr, "error exporting %s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Printf("exported %s -> %s\n", name, outDir)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
