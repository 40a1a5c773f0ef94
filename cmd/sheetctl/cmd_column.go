package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

var columnCmd = &cobra.Command{
	Use:   "column",
	Short: "Manage columns on a sheet",
}

var columnAddDataType string

var columnAddCmd = &cobra.Command{
	Use:   "add <sheet> <header>",
	Short: "Add a Basic-validated column to a sheet",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runColumnAdd(args[0], args[1])
	},
}

var columnRenameCmd = &cobra.Command{
	Use:   "rename <sheet> <old> <new>",
	Short: "Rename a column",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runColumnRename(args[0], args[1], args[2])
	},
}

var columnDropCmd = &cobra.Command{
	Use:   "drop <sheet> <header>",
	Short: "Drop a column's physical storage (metadata tombstone is left for index stability)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runColumnDrop(args[0], args[1])
	},
}

var columnReorderCmd = &cobra.Command{
	Use:   "reorder <sheet> <header> <new-index>",
	Short: "Move a column to a new display index",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runColumnReorder(args[0], args[1], args[2])
	},
}

var columnAddStructureCmd = &cobra.Command{
	Use:   "add-structure <sheet> <header> <field:type>...",
	Short: "Add a Structure column, backfilling its child table from matching sibling columns",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runColumnAddStructure(args[0], args[1], args[2:])
	},
}

func init() {
	rootCmd.AddCommand(columnCmd)
	columnCmd.AddCommand(columnAddCmd)
	columnCmd.AddCommand(columnRenameCmd)
	columnCmd.AddCommand(columnDropCmd)
	columnCmd.AddCommand(columnReorderCmd)
	columnCmd.AddCommand(columnAddStructureCmd)

	columnAddCmd.Flags().StringVar(&columnAddDataType, "type", "String", "column data type (String, Bool, I64, F64)")
}

func runColumnAdd(sheet, header string) {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	dataType, ok := sheetdb.ParseColumnDataType(columnAddDataType)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown data type %q\n", columnAddDataType)
		os.Exit(1)
	}

	daemon := sheetdb.NewLocalExecBatcher(conn)
	w := sheetdb.NewWriter(conn, daemon, category)
	col := sheetdb.Column{
		Header:    header,
		DataType:  dataType,
		Validator: validatorPtr(sheetdb.BasicValidator(dataType)),
	}
	if err := w.AddColumnWithMetadata(sheet, col); err != nil {
		fmt.Fprintf(os.Stderr, "error adding column: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("added column %q (%s) to %q\n", header, dataType.String(), sheet)
}

func runColumnRename(sheet, oldHeader, newHeader string) {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	daemon := sheetdb.NewLocalExecBatcher(conn)
	meta, err := sheetdb.ReadMetadata(conn, daemon, sheet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading metadata: %v\n", err)
		os.Exit(1)
	}

	w := sheetdb.NewWriter(conn, daemon, category)
	for _, c := range meta.Columns {
		if c.Header != oldHeader {
			continue
		}
		if c.IsStructure() {
			if err := w.RenameStructureColumn(sheet, oldHeader, newHeader); err != nil {
				fmt.Fprintf(os.Stderr, "error renaming column: %v\n", err)
				os.Exit(1)
			}
		} else {
			if err := w.RenameDataColumn(sheet, oldHeader, newHeader); err != nil {
				fmt.Fprintf(os.Stderr, "error renaming column: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Printf("renamed %q to %q on %q\n", oldHeader, newHeader, sheet)
		return
	}
	fmt.Fprintf(os.Stderr, "column %q not found on %q\n", oldHeader, sheet)
	os.Exit(1)
}

func runColumnDrop(sheet, header string) {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	daemon := sheetdb.NewLocalExecBatcher(conn)
	tombstone := sheetdb.Statement{
		SQL:    fmt.Sprintf(`UPDATE %q SET deleted = 1 WHERE column_name = ?`, sheetdb.MetadataTableName(sheet)),
		Params: []any{header},
	}
	if _, err := daemon.ExecBatch(category, []sheetdb.Statement{tombstone}); err != nil {
		fmt.Fprintf(os.Stderr, "error tombstoning column metadata: %v\n", err)
		os.Exit(1)
	}
	w := sheetdb.NewWriter(conn, daemon, category)
	w.DropPhysicalColumnIfExists(sheet, header)
	fmt.Printf("dropped column %q from %q\n", header, sheet)
}

func runColumnReorder(sheet, header, newIndexArg string) {
	requireCategory()
	var newIndex int
	if _, err := fmt.Sscanf(newIndexArg, "%d", &newIndex); err != nil {
		fmt.Fprintf(os.Stderr, "invalid index %q\n", newIndexArg)
		os.Exit(1)
	}

	conn := mustOpenConn()
	defer conn.Close()

	daemon := sheetdb.NewLocalExecBatcher(conn)
	meta, err := sheetdb.ReadMetadata(conn, daemon, sheet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading metadata: %v\n", err)
		os.Exit(1)
	}

	oldIndexOf := map[string]int{}
	var orderedHeaders []string
	found := false
	for _, c := range meta.Columns {
		if c.Header == "row_index" || c.Header == "parent_key" {
			continue
		}
		oldIndexOf[c.Header] = c.Index
		if c.Header == header {
			found = true
			continue
		}
		orderedHeaders = append(orderedHeaders, c.Header)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "column %q not found on %q\n", header, sheet)
		os.Exit(1)
	}

	// Build the full reordered index assignment: the named column
	// takes newIndex, every other column shifts to make room in its
	// existing relative order.
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(orderedHeaders) {
		newIndex = len(orderedHeaders)
	}
	withTarget := make([]string, 0, len(orderedHeaders)+1)
	withTarget = append(withTarget, orderedHeaders[:newIndex]...)
	withTarget = append(withTarget, header)
	withTarget = append(withTarget, orderedHeaders[newIndex:]...)

	var pairs []sheetdb.ColumnIndexPair
	for i, h := range withTarget {
		pairs = append(pairs, sheetdb.ColumnIndexPair{OldIndex: oldIndexOf[h], NewIndex: i})
	}

	w := sheetdb.NewWriter(conn, daemon, category)
	if err := w.UpdateColumnIndices(sheetdb.MetadataTableName(sheet), pairs); err != nil {
		fmt.Fprintf(os.Stderr, "error reordering column: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("moved %q to index %d on %q\n", header, newIndex, sheet)
}

// runColumnAddStructure adds a Structure column to an existing, possibly
// already-populated sheet. Each fieldSpec is "header:type" (e.g.
// "Tag:String"); the child table is backfilled from any existing
// parent columns whose names normalize-match a field header.
func runColumnAddStructure(sheet, header string, fieldSpecs []string) {
	requireCategory()
	conn := mustOpenConn()
	defer conn.Close()

	fields := make([]sheetdb.StructureFieldDefinition, 0, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		parts := strings.SplitN(spec, ":", 2)
		fieldHeader := parts[0]
		fieldType := "String"
		if len(parts) == 2 {
			fieldType = parts[1]
		}
		dataType, ok := sheetdb.ParseColumnDataType(fieldType)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown field data type %q\n", fieldType)
			os.Exit(1)
		}
		fields = append(fields, sheetdb.StructureFieldDefinition{Header: fieldHeader, DataType: dataType})
	}

	var rowsCopied int
	err := sheetdb.AddStructureColumn(conn, sheet, header, fields, func(done int) {
		rowsCopied = done
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error adding structure column: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("added structure column %q to %q, copied %d row(s)\n", header, sheet, rowsCopied)
}
