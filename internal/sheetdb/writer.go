package sheetdb

import (
	"fmt"
	"strings"
)

// Writer executes every mutation by emitting statements through a
// daemon client. Direct connections (Writer.conn) are used only for
// the read-before-write probes every method needs (current MAX(row_index),
// existing tombstone lookup, PRAGMA table_info checks) — never for the
// mutation itself.
type Writer struct {
	conn   *Connection
	daemon ExecBatcher
	dbName string
}

func NewWriter(conn *Connection, daemon ExecBatcher, dbName string) *Writer {
	return &Writer{conn: conn, daemon: daemon, dbName: dbName}
}

func (w *Writer) exec(stmts ...Statement) (int64, error) {
	n, err := w.daemon.ExecBatch(w.dbName, stmts)
	if err != nil {
		return 0, Other("daemon unreachable: %v", err)
	}
	return n, nil
}

// =============================================================================
// ROW OPERATIONS
// =============================================================================

// PrependRow inserts one row at MAX(row_index)+1 so it appears first
// under the DESC read order.
func (w *Writer) PrependRow(table string, values map[string]string) error {
	nextIdx, err := w.nextRowIndex(table)
	if err != nil {
		return err
	}
	cols := []string{"row_index"}
	placeholders := []string{"?"}
	params := []any{nextIdx}
	for col, val := range values {
		cols = append(cols, quoteIdent(col))
		placeholders = append(placeholders, "?")
		params = append(params, val)
	}
	stmt := Statement{
		SQL:    fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")),
		Params: params,
	}
	_, err = w.exec(stmt)
	return err
}

// PrependRowsBatch computes the starting index once, then inserts N
// rows with monotonically increasing row_index values in one batch —
// avoiding the race where N independent PrependRow calls collide on
// UNIQUE(row_index) under concurrent writers.
func (w *Writer) PrependRowsBatch(table string, columnNames []string, rows [][]string) error {
	start, err := w.nextRowIndex(table)
	if err != nil {
		return err
	}
	stmts := make([]Statement, 0, len(rows))
	quotedCols := make([]string, len(columnNames))
	for i, c := range columnNames {
		quotedCols[i] = quoteIdent(c)
	}
	placeholders := make([]string, len(columnNames)+1)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	sqlStr := fmt.Sprintf("INSERT INTO %q (row_index, %s) VALUES (%s)", table, strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))
	for i, row := range rows {
		params := make([]any, 0, len(row)+1)
		params = append(params, start+int64(i))
		for _, v := range row {
			params = append(params, v)
		}
		stmts = append(stmts, Statement{SQL: sqlStr, Params: params})
	}
	_, err = w.exec(stmts...)
	return err
}

func (w *Writer) nextRowIndex(table string) (int64, error) {
	var max int64
	row := w.conn.DB().QueryRow(fmt.Sprintf(`SELECT COALESCE(MAX(row_index), -1) FROM %q`, table))
	if err := row.Scan(&max); err != nil {
		return 0, Sqlite(err)
	}
	return max + 1, nil
}

// DeleteRowAndCompact deletes rowIndex and shifts every greater index
// down by one so row_index stays dense.
func (w *Writer) DeleteRowAndCompact(table string, rowIndex int64) error {
	stmts := []Statement{
		{SQL: fmt.Sprintf(`DELETE FROM %q WHERE row_index = ?`, table), Params: []any{rowIndex}},
		{SQL: fmt.Sprintf(`UPDATE %q SET row_index = row_index - 1 WHERE row_index > ?`, table), Params: []any{rowIndex}},
	}
	_, err := w.exec(stmts...)
	return err
}

// DeleteStructureRowByID deletes a structure child row by its primary
// key and compacts row_index within that same parent_key only.
func (w *Writer) DeleteStructureRowByID(table string, id int64) error {
	var parentKey string
	var rowIndex int64
	row := w.conn.DB().QueryRow(fmt.Sprintf(`SELECT parent_key, row_index FROM %q WHERE id = ?`, table), id)
	if err := row.Scan(&parentKey, &rowIndex); err != nil {
		return Sqlite(err)
	}
	stmts := []Statement{
		{SQL: fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table), Params: []any{id}},
		{SQL: fmt.Sprintf(`UPDATE %q SET row_index = row_index - 1 WHERE parent_key = ? AND row_index > ?`, table), Params: []any{parentKey, rowIndex}},
	}
	_, err := w.exec(stmts...)
	return err
}

// =============================================================================
// CELL OPERATIONS
// =============================================================================

// UpdateCell writes one cell by row_index. If column is used as a
// structure_key_parent_column_index by any descendant child table, the
// new value cascades into every descendant's parent_key and
// grand_N_parent columns within the same transaction.
func (w *Writer) UpdateCell(table, column, newValue string, rowIndex int64, descendants []StructureKeyDescendant) error {
	stmts := []Statement{
		{SQL: fmt.Sprintf(`UPDATE %q SET %s = ? WHERE row_index = ?`, table, quoteIdent(column)), Params: []any{newValue, rowIndex}},
	}
	for _, d := range descendants {
		stmts = append(stmts, cascadeParentKeyStatements(d, fmt.Sprintf("%d", rowIndex), newValue)...)
	}
	_, err := w.exec(stmts...)
	return err
}

// UpdateStructureCellByID writes one cell of a structure child row by
// its primary key.
func (w *Writer) UpdateStructureCellByID(table, column, newValue string, id int64) error {
	stmt := Statement{SQL: fmt.Sprintf(`UPDATE %q SET %s = ? WHERE id = ?`, table, quoteIdent(column)), Params: []any{newValue, id}}
	_, err := w.exec(stmt)
	return err
}

// StructureKeyDescendant names one descendant child table whose rows
// reference a parent row via oldKey and must be rewritten to newKey
// when the parent's key-bearing cell changes.
type StructureKeyDescendant struct {
	Table        string
	GrandParentN int // 0 = this table stores parent_key directly; N>0 = grand_N_parent
}

func cascadeParentKeyStatements(d StructureKeyDescendant, oldKey, newKey string) []Statement {
	col := "parent_key"
	if d.GrandParentN > 0 {
		col = fmt.Sprintf("grand_%d_parent", d.GrandParentN)
	}
	return []Statement{
		{SQL: fmt.Sprintf(`UPDATE %q SET %s = ? WHERE %s = ?`, d.Table, col, col), Params: []any{newKey, oldKey}},
	}
}

// =============================================================================
// METADATA / COLUMN OPERATIONS
// =============================================================================

// UpdateColumnIndices performs the two-phase reorder: offset every
// column by +10000 first, then assign final indices, so the UNIQUE
// constraint on column_index is never violated mid-reorder.
func (w *Writer) UpdateColumnIndices(metaTable string, pairs []ColumnIndexPair) error {
	stmts := make([]Statement, 0, len(pairs)*2)
	for _, p := range pairs {
		stmts = append(stmts, Statement{
			SQL:    fmt.Sprintf(`UPDATE %q SET column_index = ? WHERE column_index = ?`, metaTable),
			Params: []any{p.NewIndex + 10000, p.OldIndex},
		})
	}
	for _, p := range pairs {
		stmts = append(stmts, Statement{
			SQL:    fmt.Sprintf(`UPDATE %q SET column_index = ? WHERE column_index = ?`, metaTable),
			Params: []any{p.NewIndex, p.NewIndex + 10000},
		})
	}
	_, err := w.exec(stmts...)
	return err
}

// ColumnIndexPair describes one column's old and new position for a
// reorder call.
type ColumnIndexPair struct {
	OldIndex int
	NewIndex int
}

// AddColumnWithMetadata adds a column, reusing a tombstoned metadata
// row at the same name if one exists rather than allocating a new
// column_index. Structure-validated columns get no physical ALTER —
// the child table is the materialization.
func (w *Writer) AddColumnWithMetadata(table string, c Column) error {
	metaTable := MetadataTableName(table)
	var tombstoneIndex int
	var hasTombstone bool
	row := w.conn.DB().QueryRow(fmt.Sprintf(`SELECT column_index FROM %q WHERE column_name = ? AND deleted = 1`, metaTable), c.Header)
	if err := row.Scan(&tombstoneIndex); err == nil {
		hasTombstone = true
	}

	validatorType, validatorConfig := buildValidatorInfo(c.Validator)
	var stmts []Statement
	if hasTombstone {
		stmts = append(stmts, Statement{
			SQL: fmt.Sprintf(`UPDATE %q SET data_type=?, validator_type=?, validator_config=?, deleted=0 WHERE column_index=?`, metaTable),
			Params: []any{c.DataType.String(), validatorType, validatorConfig, tombstoneIndex},
		})
		if !c.IsStructure() {
			exists, err := w.physicalColumnExists(table, c.Header)
			if err != nil {
				return err
			}
			if !exists {
				stmts = append(stmts, Statement{SQL: fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q %s`, table, c.Header, c.DataType.SQLType())})
			}
		}
	} else {
		if !c.IsStructure() {
			stmts = append(stmts, Statement{SQL: fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q %s`, table, c.Header, c.DataType.SQLType())})
		}
		stmts = append(stmts, Statement{
			SQL: fmt.Sprintf(`INSERT OR REPLACE INTO %q (column_index, column_name, data_type, validator_type, validator_config, ai_include_in_send) VALUES (?, ?, ?, ?, ?, 1)`, metaTable),
			Params: []any{c.Index, c.Header, c.DataType.String(), validatorType, validatorConfig},
		})
	}
	_, err := w.exec(stmts...)
	return err
}

func (w *Writer) physicalColumnExists(table, column string) (bool, error) {
	set, err := physicalColumnSet(w.conn, table)
	if err != nil {
		return false, err
	}
	return set[normalizeKey(column)], nil
}

// RenameDataColumn renames a physical column and its metadata entry,
// then verifies the rename actually took (older SQLite versions can
// silently misbehave on RENAME COLUMN in edge cases).
func (w *Writer) RenameDataColumn(table, oldName, newName string) error {
	metaTable := MetadataTableName(table)
	stmts := []Statement{
		{SQL: fmt.Sprintf(`ALTER TABLE %q RENAME COLUMN %q TO %q`, table, oldName, newName)},
		{SQL: fmt.Sprintf(`UPDATE %q SET column_name = ? WHERE column_name = ?`, metaTable), Params: []any{newName, oldName}},
	}
	if _, err := w.exec(stmts...); err != nil {
		return err
	}
	exists, err := w.physicalColumnExists(table, newName)
	if err != nil {
		return err
	}
	if !exists {
		return StructureChanged("rename of column %q to %q on table %q did not take effect", oldName, newName, table)
	}
	return nil
}

// DropPhysicalColumnIfExists best-effort drops a physical column:
// NULLs it first, then DROP COLUMN (requires SQLite >= 3.35). Failures
// are logged, not fatal — older SQLite builds tolerate the NULL-out
// even when DROP COLUMN is unavailable.
func (w *Writer) DropPhysicalColumnIfExists(table, column string) {
	if _, err := w.exec(Statement{SQL: fmt.Sprintf(`UPDATE %q SET %q = NULL`, table, column)}); err != nil {
		log.Warn("null-out of physical column failed, continuing", "table", table, "column", column, "error", err)
	}
	if _, err := w.exec(Statement{SQL: fmt.Sprintf(`ALTER TABLE %q DROP COLUMN %q`, table, column)}); err != nil {
		log.Warn("drop physical column failed, continuing", "table", table, "column", column, "error", err)
	}
}

// =============================================================================
// TABLE RENAME CASCADE
// =============================================================================

// RenameTable renames a main table and every one of its coordinated
// artifacts: metadata table, AI-groups table, and each direct structure
// child table named in structureCols (with its metadata table), then
// fixes up `_Metadata` rows in one batch and issues a WAL checkpoint so
// readers see the new names. Structure tables nested below those direct
// children are not renamed.
func (w *Writer) RenameTable(oldName, newName string, structureCols []string) error {
	stmts := []Statement{
		{SQL: fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, oldName, newName)},
		{SQL: fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, MetadataTableName(oldName), MetadataTableName(newName))},
	}
	if exists, _ := TableExists(w.conn, GroupsTableName(oldName)); exists {
		stmts = append(stmts, Statement{SQL: fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, GroupsTableName(oldName), GroupsTableName(newName))})
	}
	for _, col := range structureCols {
		oldChild := StructureTableName(oldName, col)
		newChild := StructureTableName(newName, col)
		stmts = append(stmts, w.renameStructureTableStatements(oldChild, newChild)...)
	}
	stmts = append(stmts,
		Statement{SQL: `DELETE FROM _Metadata WHERE table_name = ?`, Params: []any{newName}},
		Statement{SQL: `UPDATE _Metadata SET table_name = ? WHERE table_name = ?`, Params: []any{newName, oldName}},
	)
	if exists, _ := TableExists(w.conn, MetadataTableName(newName)); exists {
		stmts = append(stmts,
			Statement{SQL: `DELETE FROM _Metadata WHERE table_name = ?`, Params: []any{MetadataTableName(newName)}},
			Statement{SQL: `UPDATE _Metadata SET table_name = ? WHERE table_name = ?`, Params: []any{MetadataTableName(newName), MetadataTableName(oldName)}},
		)
	}
	for _, col := range structureCols {
		stmts = append(stmts,
			Statement{SQL: `UPDATE _Metadata SET table_name = ?, parent_table = ? WHERE table_name = ?`,
				Params: []any{StructureTableName(newName, col), newName, StructureTableName(oldName, col)}},
		)
	}
	if _, err := w.exec(stmts...); err != nil {
		return err
	}
	return w.conn.Checkpoint()
}

// DropSheet removes a sheet entirely: its data table, its metadata
// table, its AI-groups table if present, every structure child table
// named in structureCols, and every _Metadata catalog row that
// references any of them.
func (w *Writer) DropSheet(table string, structureCols []string) error {
	stmts := []Statement{
		{SQL: fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)},
		{SQL: fmt.Sprintf(`DROP TABLE IF EXISTS %q`, MetadataTableName(table))},
		{SQL: fmt.Sprintf(`DROP TABLE IF EXISTS %q`, GroupsTableName(table))},
		{SQL: `DELETE FROM _Metadata WHERE table_name = ? OR table_name = ? OR table_name = ?`,
			Params: []any{table, MetadataTableName(table), GroupsTableName(table)}},
	}
	for _, col := range structureCols {
		child := StructureTableName(table, col)
		stmts = append(stmts,
			Statement{SQL: fmt.Sprintf(`DROP TABLE IF EXISTS %q`, child)},
			Statement{SQL: fmt.Sprintf(`DROP TABLE IF EXISTS %q`, MetadataTableName(child))},
			Statement{SQL: `DELETE FROM _Metadata WHERE table_name = ? OR table_name = ?`,
				Params: []any{child, MetadataTableName(child)}},
		)
	}
	if _, err := w.exec(stmts...); err != nil {
		return err
	}
	return w.conn.Checkpoint()
}

func (w *Writer) renameStructureTableStatements(oldName, newName string) []Statement {
	stmts := []Statement{
		{SQL: fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, oldName, newName)},
	}
	if exists, _ := TableExists(w.conn, MetadataTableName(oldName)); exists {
		stmts = append(stmts, Statement{SQL: fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, MetadataTableName(oldName), MetadataTableName(newName))})
	}
	return stmts
}

// RenameStructureColumn renames a Structure column on the parent: the
// child table plus the parent's metadata column_name entry, in one
// transaction, with cleanup of any orphan physical column the rename
// may have left on the parent (Structure columns have no physical
// column, so this guards against drift from a prior non-Structure
// validator on the same name).
func (w *Writer) RenameStructureColumn(parentTable, oldHeader, newHeader string) error {
	oldChild := StructureTableName(parentTable, oldHeader)
	newChild := StructureTableName(parentTable, newHeader)
	stmts := w.renameStructureTableStatements(oldChild, newChild)
	stmts = append(stmts,
		Statement{SQL: fmt.Sprintf(`UPDATE %q SET column_name = ? WHERE column_name = ?`, MetadataTableName(parentTable)), Params: []any{newHeader, oldHeader}},
		Statement{SQL: `UPDATE _Metadata SET table_name = ?, parent_column = ? WHERE table_name = ?`, Params: []any{newChild, newHeader, oldChild}},
	)
	if physExists, _ := w.physicalColumnExists(parentTable, oldHeader); physExists {
		stmts = append(stmts, Statement{SQL: fmt.Sprintf(`ALTER TABLE %q DROP COLUMN %q`, parentTable, oldHeader)})
	}
	_, err := w.exec(stmts...)
	return err
}

// =============================================================================
// VALIDATOR / AI FLAG UPDATES
// =============================================================================

func (w *Writer) UpdateColumnValidator(table, column string, v ColumnValidator) error {
	validatorType, validatorConfig := buildValidatorInfo(&v)
	stmt := Statement{
		SQL:    fmt.Sprintf(`UPDATE %q SET validator_type=?, validator_config=? WHERE column_name=?`, MetadataTableName(table)),
		Params: []any{validatorType, validatorConfig, column},
	}
	_, err := w.exec(stmt)
	return err
}

func (w *Writer) UpdateColumnAIInclude(table, column string, include bool) error {
	stmt := Statement{
		SQL:    fmt.Sprintf(`UPDATE %q SET ai_include_in_send=? WHERE column_name=?`, MetadataTableName(table)),
		Params: []any{boolToInt(include), column},
	}
	_, err := w.exec(stmt)
	return err
}

func (w *Writer) UpdateColumnDisplayName(table, column, displayName string) error {
	stmt := Statement{
		SQL:    fmt.Sprintf(`UPDATE %q SET display_name=? WHERE column_name=?`, MetadataTableName(table)),
		Params: []any{displayName, column},
	}
	_, err := w.exec(stmt)
	return err
}

func quoteIdent(s string) string { return fmt.Sprintf("%q", s) }
