package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

var sheetCmd = &cobra.Command{
	Use:   "sheet",
	Short: "Inspect and manage sheets in a category database",
}

var sheetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every sheet in the category",
	Run: func(cmd *cobra.Command, args []string) {
		runSheetList()
	},
}

var (
	sheetCreateColumn string
)

var sheetCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty sheet with a single String column",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSheetCreate(args[0])
	},
}

var sheetRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a sheet, its metadata table, and its structure children",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSheetRename(args[0], args[1])
	},
}

var sheetDropCmd = &cobra.Command{
	Use:   "drop <name>",
	Short: "Drop a sheet and every structure child table it owns",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSheetDrop(args[0])
	},
}

func init() {
	rootCmd.AddCommand(sheetCmd)
	sheetCmd.AddCommand(sheetListCmd)
	sheetCmd.AddCommand(sheetCreateCmd)
	sheetCmd.AddCommand(sheetRenameCmd)
	sheetCmd.AddCommand(sheetDropCmd)

	sheetCreateCmd.Flags().StringVar(&sheetCreateColumn, "column", "Name", "header for the sheet's initial column")
}

func runSheetList() {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	names, err := sheetdb.ListMainSheets(conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error listing sheets: %v\n", err)
		os.Exit(1)
	}
	if len(names) == 0 {
		fmt.Println("no sheets")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func runSheetCreate(name string) {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	cols := []sheetdb.Column{
		{Index: 0, Header: sheetCreateColumn, DataType: sheetdb.TypeString, Validator: validatorPtr(sheetdb.BasicValidator(sheetdb.TypeString))},
	}

	tx, err := conn.DB().Begin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error beginning transaction: %v\n", err)
		os.Exit(1)
	}
	if err := sheetdb.CreateSheet(tx, name, cols, sheetdb.CreateSheetOptions{Category: category}); err != nil {
		_ = tx.Rollback()
		fmt.Fprintf(os.Stderr, "error creating sheet: %v\n", err)
		os.Exit(1)
	}
	if err := tx.Commit(); err != nil {
		fmt.Fprintf(os.Stderr, "error committing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created sheet %q\n", name)
}

func runSheetRename(oldName, newName string) {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	daemon := sheetdb.NewLocalExecBatcher(conn)
	meta, err := sheetdb.ReadMetadata(conn, daemon, oldName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading metadata: %v\n", err)
		os.Exit(1)
	}
	var structureCols []string
	for _, c := range meta.Columns {
		if c.IsStructure() {
			structureCols = append(structureCols, c.Header)
		}
	}

	w := sheetdb.NewWriter(conn, daemon, category)
	if err := w.RenameTable(oldName, newName, structureCols); err != nil {
		fmt.Fprintf(os.Stderr, "error renaming sheet: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("renamed %q to %q\n", oldName, newName)
}

func runSheetDrop(name string) {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	daemon := sheetdb.NewLocalExecBatcher(conn)
	meta, err := sheetdb.ReadMetadata(conn, daemon, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading metadata: %v\n", err)
		os.Exit(1)
	}
	var structureCols []string
	for _, c := range meta.Columns {
		if c.IsStructure() {
			structureCols = append(structureCols, c.Header)
		}
	}

	w := sheetdb.NewWriter(conn, daemon, category)
	if err := w.DropSheet(name, structureCols); err != nil {
		fmt.Fprintf(os.Stderr, "error dropping sheet: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("dropped %q\n", name)
}

func mustOpenConn() *sheetdb.Connection {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	conn, err := openConn(cfg, category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening category database: %v\n", err)
		os.Exit(1)
	}
	return conn
}

func validatorPtr(v sheetdb.ColumnValidator) *sheetdb.ColumnValidator { return &v }
