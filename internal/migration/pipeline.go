package migration

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

// Report aggregates the outcome of a migration run across every sheet
// in a batch. JobID identifies the run that produced it.
type Report struct {
	JobID             string
	SheetsMigrated    int
	SheetsFailed      int
	FailedSheets      []FailedSheet
	LinkedSheetsFound []string
}

// FailedSheet names one sheet that failed migration and why.
type FailedSheet struct {
	SheetName string
	Error     string
}

// progressTickEvery matches the teacher's 1000-row chunking cadence.
const progressTickEvery = 1000

// MigrateSheetFromJSON loads one JSON data/metadata pair and writes
// it into conn's database in a single transaction: schema creation,
// structure child tables, main row insertion with periodic progress
// ticks, and embedded-JSON expansion into structure child rows.
//
// Schema and row writes run directly against the transaction rather
// than through the daemon gateway — migration is an administrative,
// already-serialized bulk operation performed on the writer
// connection itself, not a concurrent client of the running daemon.
func MigrateSheetFromJSON(conn *sheetdb.Connection, pair *SheetPair, displayOrder int, onProgress func(rowsDone int)) error {
	log.Info("migrating sheet from JSON", "sheet", pair.Name)

	metadata, err := LoadMetadata(pair.MetaPath)
	if err != nil {
		return sheetdb.MigrationFailed("load metadata for %q: %v", pair.Name, err)
	}
	grid, err := LoadGridData(pair.DataPath)
	if err != nil {
		return sheetdb.MigrationFailed("load grid for %q: %v", pair.Name, err)
	}

	tx, err := conn.DB().Begin()
	if err != nil {
		return sheetdb.Sqlite(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := sheetdb.CreateSheet(tx, pair.Name, metadata.Columns, sheetdb.CreateSheetOptions{Category: pair.Category}); err != nil {
		return sheetdb.MigrationFailed("create schema for %q: %v", pair.Name, err)
	}

	type structureCol struct {
		colIndex int
		col      sheetdb.Column
	}
	var structureCols []structureCol
	for i, c := range metadata.Columns {
		if c.IsStructure() && len(c.StructureSchema) > 0 {
			if err := sheetdb.CreateStructureTable(tx, pair.Name, c.Header, 0, c.StructureSchema, sheetdb.CleanStart); err != nil {
				return sheetdb.MigrationFailed("create structure table for %q.%q: %v", pair.Name, c.Header, err)
			}
			structureCols = append(structureCols, structureCol{colIndex: i, col: c})
		}
	}

	rowsDone, err := insertGridData(tx, pair.Name, grid, metadata.Columns, func(done int) {
		if onProgress != nil {
			onProgress(done)
		}
	})
	if err != nil {
		return sheetdb.MigrationFailed("insert rows for %q: %v", pair.Name, err)
	}
	if onProgress != nil {
		onProgress(rowsDone)
	}

	if len(structureCols) > 0 {
		structTotal := 0
		for _, sc := range structureCols {
			n, err := migrateStructureColumn(tx, pair.Name, grid, metadata.Columns, sc.colIndex, sc.col, rowsDone, structTotal, onProgress)
			if err != nil {
				return sheetdb.MigrationFailed("expand structure column %q.%q: %v", pair.Name, sc.col.Header, err)
			}
			structTotal += n
		}
	}

	if err := tx.Commit(); err != nil {
		return sheetdb.Sqlite(err)
	}
	committed = true

	log.Info("migrated sheet", "sheet", pair.Name, "rows", rowsDone)
	return nil
}

// insertGridData inserts every grid row into the sheet's data table in
// row_index order, ticking onProgress every 1000 rows.
func insertGridData(tx *sql.Tx, table string, grid [][]string, cols []sheetdb.Column, onProgress func(int)) (int, error) {
	var physical []sheetdb.Column
	for _, c := range cols {
		if !c.IsStructure() {
			physical = append(physical, c)
		}
	}

	insertCols := make([]string, len(physical)+1)
	insertCols[0] = "row_index"
	placeholders := make([]string, len(physical)+1)
	placeholders[0] = "?"
	for i, c := range physical {
		insertCols[i+1] = fmt.Sprintf("%q", c.Header)
		placeholders[i+1] = "?"
	}
	insertSQL := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, table, strings.Join(insertCols, ", "), strings.Join(placeholders, ", "))

	for rowIndex, row := range grid {
		params := make([]any, len(physical)+1)
		params[0] = rowIndex
		for i, c := range physical {
			if c.Index < len(row) {
				params[i+1] = row[c.Index]
			} else {
				params[i+1] = nil
			}
		}
		if _, err := tx.Exec(insertSQL, params...); err != nil {
			return rowIndex, sheetdb.Sqlite(err)
		}
		if onProgress != nil && (rowIndex+1)%progressTickEvery == 0 {
			onProgress(rowIndex + 1)
		}
	}
	return len(grid), nil
}

// migrateStructureColumn expands the embedded JSON of one structure
// column across every parent row and inserts the resulting child rows,
// resolving parent_key per-row and ticking aggregate progress (main
// rows already counted, plus structure rows inserted so far) every
// 1000 structure rows.
func migrateStructureColumn(tx *sql.Tx, parentTable string, grid [][]string, parentCols []sheetdb.Column, colIndex int, col sheetdb.Column, mainRows, structAlready int, onProgress func(int)) (int, error) {
	structTable := sheetdb.StructureTableName(parentTable, col.Header)

	insertCols := make([]string, len(col.StructureSchema)+2)
	insertCols[0] = "row_index"
	insertCols[1] = "parent_key"
	placeholders := make([]string, len(col.StructureSchema)+2)
	placeholders[0] = "?"
	placeholders[1] = "?"
	for i, f := range col.StructureSchema {
		insertCols[i+2] = fmt.Sprintf("%q", f.Header)
		placeholders[i+2] = "?"
	}
	insertSQL := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, structTable, strings.Join(insertCols, ", "), strings.Join(placeholders, ", "))

	inserted := 0
	childRowIndex := int64(0)
	for _, row := range grid {
		if colIndex >= len(row) {
			continue
		}
		cell := row[colIndex]
		if trimmed := strings.TrimSpace(cell); trimmed == "" {
			continue
		}

		expanded := sheetdb.ExpandValueToRows(cell, col.StructureSchema, col.Header)
		if len(expanded) == 0 {
			continue
		}

		parentKey := sheetdb.ResolveParentKey(row, parentCols, col.StructureKeyParentColumnIndex, col.StructureKeyParentColumnIndex >= 0)

		for _, srow := range expanded {
			params := make([]any, len(col.StructureSchema)+2)
			params[0] = childRowIndex
			params[1] = parentKey
			for i := range col.StructureSchema {
				if i < len(srow) {
					params[i+2] = srow[i]
				} else {
					params[i+2] = nil
				}
			}
			if _, err := tx.Exec(insertSQL, params...); err != nil {
				return inserted, sheetdb.Sqlite(err)
			}
			childRowIndex++
			inserted++
			total := structAlready + inserted
			if onProgress != nil && total%progressTickEvery == 0 {
				onProgress(mainRows + total)
			}
		}
	}
	if inserted > 0 && onProgress != nil {
		onProgress(mainRows + structAlready + inserted)
	}
	return inserted, nil
}



