package sheetdb

import (
	"database/sql"
	"fmt"
	"strings"
)

// AddStructureColumn registers a new Structure-validated column on an
// already-populated sheet: it materializes the column's child table and
// backfills it from the parent's existing physical columns via
// CopyParentContentToStructure, matching sibling columns to the new
// structure's field schema by normalized name. Used when a sheet's flat
// columns are being folded into a nested structure column after the
// fact, as opposed to the JSON importer's embedded-value expansion path.
func AddStructureColumn(conn *Connection, parentTable, header string, fields []StructureFieldDefinition, onProgress func(done int)) error {
	tx, err := conn.DB().Begin()
	if err != nil {
		return Sqlite(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	metaTable := MetadataTableName(parentTable)
	var nextIndex int
	if err := tx.QueryRow(fmt.Sprintf(`SELECT COALESCE(MAX(column_index), -1) + 1 FROM %q`, metaTable)).Scan(&nextIndex); err != nil {
		return Sqlite(err)
	}

	if err := CreateStructureTable(tx, parentTable, header, 0, fields, CleanStart); err != nil {
		return err
	}

	structureValidator := StructureValidator()
	col := Column{Index: nextIndex, Header: header, DataType: TypeString, Validator: &structureValidator, AIIncludeInSend: true}
	if err := insertMetadataColumn(tx, metaTable, col); err != nil {
		return err
	}

	childTable := StructureTableName(parentTable, header)
	if err := CopyParentContentToStructure(tx, parentTable, childTable, -1, fields, 0, onProgress); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Sqlite(err)
	}
	committed = true
	return nil
}

// CopyParentContentToStructure implements the §4.2 content-copy
// algorithm run after a structure child table is (re)created: every
// parent row is walked in row_index order, a parent_key is derived
// from the key-parent column, grand_N_parent columns are resolved from
// the parent's own ancestry, and everything else is copied by
// normalized-name lookup. Progress ticks fire every 1000 rows.
func CopyParentContentToStructure(tx *sql.Tx, parentTable, childTable string, keyParentColumnIndex int, expected []StructureFieldDefinition, grandParentDepth int, onProgress func(done int)) error {
	parentCols, err := txPhysicalColumns(tx, parentTable)
	if err != nil {
		return err
	}
	nameToIdx := map[string]int{}
	for i, c := range parentCols {
		nameToIdx[normalizeKey(c)] = i
	}

	rows, err := tx.Query(fmt.Sprintf(`SELECT %s FROM %q ORDER BY row_index`, selectListCastText(parentCols), parentTable))
	if err != nil {
		return Sqlite(err)
	}
	defer rows.Close()

	insertCols := make([]string, 0, len(expected)+1+grandParentDepth)
	insertCols = append(insertCols, "row_index", "parent_key")
	for n := 1; n <= grandParentDepth; n++ {
		insertCols = append(insertCols, fmt.Sprintf("grand_%d_parent", n))
	}
	for _, f := range expected {
		insertCols = append(insertCols, f.Header)
	}
	placeholders := make([]string, len(insertCols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, childTable, quotedList(insertCols), joinPlaceholders(placeholders))

	childRowIndex := int64(0)
	done := 0
	for rows.Next() {
		scanDest := make([]sql.NullString, len(parentCols))
		ptrs := make([]any, len(parentCols))
		for i := range scanDest {
			ptrs[i] = &scanDest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Sqlite(err)
		}
		values := make([]string, len(parentCols))
		for i, s := range scanDest {
			values[i] = s.String
		}

		parentKey := ""
		if keyParentColumnIndex >= 0 && keyParentColumnIndex < len(values) {
			parentKey = values[keyParentColumnIndex]
		}

		params := []any{childRowIndex, parentKey}
		for n := 1; n <= grandParentDepth; n++ {
			col := "parent_key"
			if n > 1 {
				col = fmt.Sprintf("grand_%d_parent", n-1)
			}
			if idx, ok := nameToIdx[normalizeKey(col)]; ok {
				params = append(params, values[idx])
			} else {
				params = append(params, nil)
			}
		}
		for _, f := range expected {
			idx, ok := nameToIdx[normalizeKey(f.Header)]
			if !ok {
				params = append(params, nil)
				continue
			}
			cell := values[idx]
			if f.DataType == TypeBool {
				cell = coerceBoolCell(cell)
			}
			params = append(params, cell)
		}

		if _, err := tx.Exec(insertSQL, params...); err != nil {
			return Sqlite(err)
		}
		childRowIndex++
		done++
		if onProgress != nil && done%1000 == 0 {
			onProgress(done)
		}
	}
	if onProgress != nil {
		onProgress(done)
	}
	return nil
}

// coerceBoolCell normalizes heterogeneous Bool storage (legacy content
// could hold "1", "0", "true", "false", or any other text) to the
// canonical "true"/"false" strings the engine's metadata-driven read
// path expects.
func coerceBoolCell(cell string) string {
	switch cell {
	case "true", "1", "True", "TRUE":
		return "true"
	default:
		return "false"
	}
}

func txPhysicalColumns(tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, Sqlite(err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, Sqlite(err)
		}
		if name == "id" || name == "created_at" || name == "updated_at" {
			continue
		}
		cols = append(cols, name)
	}
	return cols, nil
}

func selectListCastText(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("CAST(%q AS TEXT)", c)
	}
	return strings.Join(parts, ", ")
}

func quotedList(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(parts, ", ")
}

func joinPlaceholders(p []string) string {
	return strings.Join(p, ", ")
}
