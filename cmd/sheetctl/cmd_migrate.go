package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/migration"
	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

var (
	migrateSourceDir string
	migrateBackground bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import `<sheet>.json`/`<sheet>.meta.json` pairs into the category database",
	Run: func(cmd *cobra.Command, args []string) {
		runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateSourceDir, "source", "", "folder of JSON sheet pairs (defaults to migration.source_dir)")
	migrateCmd.Flags().BoolVar(&migrateBackground, "background", false, "run on a background worker and stream progress events")
}

func runMigrate() {
	requireCategory()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sourceDir := migrateSourceDir
	if sourceDir == "" {
		sourceDir = cfg.Migration.SourceDir
	}

	conn, err := openConn(cfg, category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening category database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := sheetdb.EnsureGlobalMetadata(conn); err != nil {
		fmt.Fprintf(os.Stderr, "error preparing catalog: %v\n", err)
		os.Exit(1)
	}

	if migrateBackground {
		runMigrateBackground(conn, sourceDir)
		return
	}
	runMigrateForeground(conn, sourceDir)
}

// runMigrateForeground migrates synchronously, printing a progress
// line per sheet directly — the simplest path for an interactive
// terminal session.
func runMigrateForeground(conn *sheetdb.Connection, sourceDir string) {
	sheets, err := migration.ScanJSONFolder(sourceDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error scanning %s: %v\n", sourceDir, err)
		os.Exit(1)
	}
	if len(sheets) == 0 {
		fmt.Printf("no JSON sheet pairs found in %s\n", sourceDir)
		return
	}
	order := migration.OrderSheetsByDependency(sheets)

	report := &migration.Report{}
	for i, name := range order {
		pair := sheets[name]
		fmt.Printf("[%d/%d] migrating %s... ", i+1, len(order), name)
		err := migration.MigrateSheetFromJSON(conn, pair, i, func(rowsDone int) {
			fmt.Printf("\r[%d/%d] migrating %s... %d rows", i+1, len(order), name, rowsDone)
		})
		if err != nil {
			fmt.Printf("\n  FAILED: %v\n", err)
			report.SheetsFailed++
			report.FailedSheets = append(report.FailedSheets, migration.FailedSheet{SheetName: name, Error: err.Error()})
			continue
		}
		fmt.Println(" done")
		report.SheetsMigrated++
	}

	fmt.Printf("\nmigrated %d sheet(s), %d failed\n", report.SheetsMigrated, report.SheetsFailed)
	if report.SheetsFailed > 0 {
		os.Exit(1)
	}
}

// runMigrateBackground drives the run through a migration.Worker and
// drains its progress/done channels until the batch completes.
func runMigrateBackground(conn *sheetdb.Connection, sourceDir string) {
	w := migration.NewWorker()
	migrate := func(pair *migration.SheetPair, onProgress func(int)) error {
		return migration.MigrateSheetFromJSON(conn, pair, 0, onProgress)
	}

	jobID, err := w.Start(context.Background(), sourceDir, migrate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting migration worker: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("migration job %s started\n", jobID)

	for {
		select {
		case ev := <-w.Progress():
			fmt.Printf("\r[%d/%d] %s... %d rows", ev.SheetIndex+1, ev.TotalSheets, ev.SheetName, ev.RowsDone)
		case report := <-w.Done():
			fmt.Printf("\nmigrated %d sheet(s), %d failed\n", report.SheetsMigrated, report.SheetsFailed)
			if report.SheetsFailed > 0 {
				os.Exit(1)
			}
			return
		}
	}
}
