package sheetdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ReadSheet produces a SheetGridData for table, running the full
// recovery ladder described in the component design: synthesize
// missing metadata, patch legacy metadata tables, recover orphan
// columns, prepend technical columns, and hydrate structure schemas.
func ReadSheet(conn *Connection, daemon ExecBatcher, table string) (*SheetGridData, error) {
	meta, err := ReadMetadata(conn, daemon, table)
	if err != nil {
		return nil, err
	}
	grid, rowIndices, err := ReadGridData(conn, table, meta)
	if err != nil {
		return nil, err
	}
	return &SheetGridData{Metadata: meta, Grid: grid, RowIndices: rowIndices}, nil
}

// ExecBatcher is the subset of the daemon client Reader needs for its
// architecturally-optional write-side repairs (add-column-if-missing).
// Reader treats daemon failures here as non-fatal: it logs and
// continues with a best-effort read.
type ExecBatcher interface {
	ExecBatch(dbName string, stmts []Statement) (int64, error)
}

// ReadMetadata loads (and, when necessary, repairs) `<table>_Metadata`.
func ReadMetadata(conn *Connection, daemon ExecBatcher, table string) (*SheetMetadata, error) {
	metaTable := MetadataTableName(table)
	exists, err := TableExists(conn, metaTable)
	if err != nil {
		return nil, err
	}

	freshlyCreated := false
	if !exists {
		if err := createMetadataFromPhysicalTable(conn, table); err != nil {
			return nil, err
		}
		freshlyCreated = true
	}

	if exists && !freshlyCreated {
		if daemon != nil {
			if err := addColumnIfMissing(daemon, conn.Path(), metaTable, "deleted", "INTEGER", "0"); err != nil {
				log.Debug("could not add deleted column, continuing", "table", metaTable, "error", err)
			}
			if err := addColumnIfMissing(daemon, conn.Path(), metaTable, "display_name", "TEXT", "NULL"); err != nil {
				log.Debug("could not add display_name column, continuing", "table", metaTable, "error", err)
			}
		}
	}

	tableType, err := GetTableType(conn, table)
	if err != nil {
		return nil, err
	}
	isStructure := tableType == "structure"

	metaRows, err := readMetadataColumns(conn, metaTable)
	if err != nil {
		return nil, err
	}

	if len(metaRows) > 0 {
		validatePhysicalMetadataAlignment(conn, table, metaRows)
	}

	cols, err := parseMetadataColumns(metaRows)
	if err != nil {
		return nil, err
	}

	cols = prependTechnicalColumns(cols, isStructure)
	cols, err = recoverOrphanColumns(conn, table, metaTable, cols)
	if err != nil {
		return nil, err
	}

	for i := range cols {
		if cols[i].IsStructure() {
			schema, err := hydrateStructureSchema(conn, table, cols[i].Header)
			if err != nil {
				log.Warn("structure schema hydration failed", "sheet", table, "column", cols[i].Header, "error", err)
			} else {
				cols[i].StructureSchema = schema
			}
		}
	}

	tableMeta, err := readTableMetadata(conn, table)
	if err != nil {
		return nil, err
	}

	return &SheetMetadata{
		TableName:   table,
		Columns:     cols,
		Table:       tableMeta,
		IsStructure: isStructure,
	}, nil
}

type metadataColumnRow struct {
	index                 int
	name                  string
	dataType              string
	validatorType         string
	validatorConfig       string
	aiContext             string
	filterExpr            string
	aiEnableRowGeneration bool
	aiIncludeInSend       bool
	deleted               bool
	displayName           string
}

func readMetadataColumns(conn *Connection, metaTable string) ([]metadataColumnRow, error) {
	rows, err := conn.db.Query(fmt.Sprintf(`SELECT column_index, column_name, data_type, validator_type,
		COALESCE(validator_config,''), COALESCE(ai_context,''), COALESCE(filter_expr,''),
		ai_enable_row_generation, ai_include_in_send, deleted, COALESCE(display_name,'')
		FROM %q ORDER BY column_index`, metaTable))
	if err != nil {
		return nil, Sqlite(err)
	}
	defer rows.Close()

	var out []metadataColumnRow
	for rows.Next() {
		var r metadataColumnRow
		var aiEnable, aiInclude, deleted int
		if err := rows.Scan(&r.index, &r.name, &r.dataType, &r.validatorType, &r.validatorConfig,
			&r.aiContext, &r.filterExpr, &aiEnable, &aiInclude, &deleted, &r.displayName); err != nil {
			return nil, Sqlite(err)
		}
		r.aiEnableRowGeneration = aiEnable != 0
		r.aiIncludeInSend = aiInclude != 0
		r.deleted = deleted != 0
		out = append(out, r)
	}
	return out, nil
}

func parseMetadataColumns(rows []metadataColumnRow) ([]Column, error) {
	cols := make([]Column, 0, len(rows))
	for _, r := range rows {
		dt, ok := ParseColumnDataType(r.dataType)
		if !ok {
			dt = TypeString
		}
		var validator *ColumnValidator
		switch r.validatorType {
		case "Basic":
			v := BasicValidator(dt)
			validator = &v
		case "Linked":
			sheet, idx, err := parseLinkedConfig(r.validatorConfig)
			if err != nil {
				return nil, InvalidMetadata("bad Linked validator_config for %q: %v", r.name, err)
			}
			v := LinkedValidator(sheet, idx)
			validator = &v
		case "Structure":
			v := StructureValidator()
			validator = &v
		}
		cols = append(cols, Column{
			Index:                 r.index,
			Header:                r.name,
			DataType:              dt,
			Validator:             validator,
			Filter:                r.filterExpr,
			AIContext:             r.aiContext,
			AIEnableRowGeneration: r.aiEnableRowGeneration,
			AIIncludeInSend:       r.aiIncludeInSend,
			Deleted:               r.deleted,
			DisplayName:           r.displayName,
		})
	}
	return cols, nil
}

// validatorConfigLinked mirrors the validator_config JSON persisted in
// the metadata table for a Linked column, keyed target_table per the
// original build_validator_info — distinct from linkedPayload, which
// is the migration-file wire shape and uses target_sheet_name.
type validatorConfigLinked struct {
	TargetTable       string `json:"target_table"`
	TargetColumnIndex int    `json:"target_column_index"`
}

func parseLinkedConfig(raw string) (string, int, error) {
	if raw == "" {
		return "", 0, fmt.Errorf("empty validator_config")
	}
	var payload validatorConfigLinked
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", 0, err
	}
	return payload.TargetTable, payload.TargetColumnIndex, nil
}

// prependTechnicalColumns adds the engine-managed columns Reader
// synthesizes on every read: row_index (hidden) for every sheet, plus
// parent_key (visible, read-only) for structure sheets.
func prependTechnicalColumns(cols []Column, isStructure bool) []Column {
	technical := []Column{{Header: "row_index", DataType: TypeI64, Hidden: true}}
	if isStructure {
		technical = append(technical, Column{Header: "parent_key", DataType: TypeString, Hidden: false})
	}
	for i := range technical {
		technical[i].Index = -(len(technical) - i)
	}
	return append(technical, cols...)
}

// recoverOrphanColumns appends a synthesized metadata row (at
// MAX(column_index)+1, type inferred from PRAGMA table_info) for every
// physical column in table that no metadata row mentions.
func recoverOrphanColumns(conn *Connection, table, metaTable string, cols []Column) ([]Column, error) {
	rows, err := conn.db.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return cols, Sqlite(err)
	}
	type physCol struct {
		name    string
		declTyp string
	}
	var physical []physCol
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return cols, Sqlite(err)
		}
		physical = append(physical, physCol{name: name, declTyp: ctype})
	}
	rows.Close()

	known := map[string]bool{}
	maxIndex := -1
	for _, c := range cols {
		known[c.Header] = true
		if c.Index > maxIndex {
			maxIndex = c.Index
		}
	}

	var orphans []physCol
	for _, p := range physical {
		if isTechnicalOrAncestryColumn(p.name) || known[p.name] {
			continue
		}
		orphans = append(orphans, p)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].name < orphans[j].name })

	for _, o := range orphans {
		maxIndex++
		dt := InferColumnDataType(o.declTyp)
		basic := BasicValidator(dt)
		newCol := Column{Index: maxIndex, Header: o.name, DataType: dt, Validator: &basic, AIIncludeInSend: true}
		_, err := conn.db.Exec(fmt.Sprintf(`INSERT OR IGNORE INTO %q
			(column_index, column_name, data_type, validator_type, ai_include_in_send) VALUES (?, ?, ?, 'Basic', 1)`, metaTable),
			newCol.Index, newCol.Header, newCol.DataType.String())
		if err != nil {
			log.Warn("orphan column recovery insert failed, skipping", "table", table, "column", o.name, "error", err)
			continue
		}
		cols = append(cols, newCol)
	}
	return cols, nil
}

func validatePhysicalMetadataAlignment(conn *Connection, table string, rows []metadataColumnRow) {
	physical, err := physicalColumnSet(conn, table)
	if err != nil {
		return
	}
	var misaligned []string
	for _, r := range rows {
		if r.deleted || r.validatorType == "Structure" {
			continue
		}
		if !physical[normalizeKey(r.name)] {
			misaligned = append(misaligned, r.name)
		}
	}
	if len(misaligned) > 0 {
		log.Debug("physical/metadata misalignment detected", "table", table, "columns", strings.Join(misaligned, ","))
	}
}

func createMetadataFromPhysicalTable(conn *Connection, table string) error {
	rows, err := conn.db.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return Sqlite(err)
	}
	type physCol struct {
		name, declTyp string
	}
	var physical []physCol
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return Sqlite(err)
		}
		if isTechnicalOrAncestryColumn(name) {
			continue
		}
		physical = append(physical, physCol{name: name, declTyp: ctype})
	}
	rows.Close()

	tx, err := conn.db.Begin()
	if err != nil {
		return Sqlite(err)
	}
	metaTable := MetadataTableName(table)
	if _, err := tx.Exec(metadataTableDDL(metaTable)); err != nil {
		tx.Rollback()
		return Sqlite(err)
	}
	for i, p := range physical {
		dt := InferColumnDataType(p.declTyp)
		c := Column{Index: i, Header: p.name, DataType: dt, DisplayName: p.name, AIIncludeInSend: true}
		if err := insertMetadataColumn(tx, metaTable, c); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return Sqlite(err)
	}
	return nil
}

func readTableMetadata(conn *Connection, table string) (TableMetadata, error) {
	var tm TableMetadata
	tm.TableName = table
	var parentTable, parentColumn, aiTableContext, aiModelID, aiActiveGroup, category sql.NullString
	var allowAdd, grounding, hidden, displayOrder int
	row := conn.db.QueryRow(`SELECT table_type, parent_table, parent_column, ai_allow_add_rows,
		ai_table_context, ai_grounding_with_google_search, ai_model_id, ai_active_group,
		display_order, category, hidden FROM _Metadata WHERE table_name=?`, table)
	err := row.Scan(&tm.TableType, &parentTable, &parentColumn, &allowAdd, &aiTableContext,
		&grounding, &aiModelID, &aiActiveGroup, &displayOrder, &category, &hidden)
	if err == sql.ErrNoRows {
		return tm, nil
	}
	if err != nil {
		return tm, Sqlite(err)
	}
	tm.ParentTable = parentTable.String
	tm.ParentColumn = parentColumn.String
	tm.AIAllowAddRows = allowAdd != 0
	tm.AITableContext = aiTableContext.String
	tm.AIGroundingWithGoogleSearch = grounding != 0
	tm.AIModelID = aiModelID.String
	tm.AIActiveGroup = aiActiveGroup.String
	tm.DisplayOrder = displayOrder
	tm.Category = category.String
	tm.Hidden = hidden != 0
	return tm, nil
}

// hydrateStructureSchema reads the child sheet's metadata and converts
// it into the ordered field list exposed on the parent's Structure
// column. This is always computed on read, never persisted on the
// parent's own metadata row.
func hydrateStructureSchema(conn *Connection, parentTable, header string) ([]StructureFieldDefinition, error) {
	childTable := StructureTableName(parentTable, header)
	metaTable := MetadataTableName(childTable)
	exists, err := TableExists(conn, metaTable)
	if err != nil || !exists {
		return nil, err
	}
	rows, err := readMetadataColumns(conn, metaTable)
	if err != nil {
		return nil, err
	}
	fields := make([]StructureFieldDefinition, 0, len(rows))
	for _, r := range rows {
		if r.deleted {
			continue
		}
		dt, ok := ParseColumnDataType(r.dataType)
		if !ok {
			dt = TypeString
		}
		fields = append(fields, StructureFieldDefinition{Header: r.name, DataType: dt})
	}
	return fields, nil
}

// ReadGridData reads every row of table, ordered newest-first, with
// structure-validator columns replaced by a "N row(s)" label.
func ReadGridData(conn *Connection, table string, meta *SheetMetadata) ([][]string, []int64, error) {
	var nonStructure []Column
	var structureCols []Column
	for _, c := range meta.Columns {
		if c.Header == "row_index" || c.Header == "parent_key" {
			continue
		}
		if c.IsStructure() {
			structureCols = append(structureCols, c)
		} else {
			nonStructure = append(nonStructure, c)
		}
	}

	selectCols := make([]string, 0, len(nonStructure)+1)
	selectCols = append(selectCols, "row_index")
	for _, c := range nonStructure {
		selectCols = append(selectCols, fmt.Sprintf("CAST(%q AS TEXT)", c.Header))
	}

	query := fmt.Sprintf(`SELECT %s FROM %q ORDER BY row_index DESC`, strings.Join(selectCols, ", "), table)
	rows, err := conn.db.Query(query)
	if err != nil {
		return nil, nil, Sqlite(err)
	}
	defer rows.Close()

	var grid [][]string
	var rowIndices []int64
	for rows.Next() {
		scanDest := make([]any, len(selectCols))
		var rowIndex int64
		scanDest[0] = &rowIndex
		values := make([]sql.NullString, len(nonStructure))
		for i := range values {
			scanDest[i+1] = &values[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, nil, Sqlite(err)
		}

		cells := make([]string, len(meta.Columns))
		colPos := map[string]int{}
		for i, c := range meta.Columns {
			colPos[c.Header] = i
		}
		for i, c := range nonStructure {
			if pos, ok := colPos[c.Header]; ok {
				cells[pos] = values[i].String
			}
		}
		for _, c := range structureCols {
			count, _ := countStructureRows(conn, table, c.Header, rowIndex)
			if pos, ok := colPos[c.Header]; ok {
				cells[pos] = fmt.Sprintf("%d row(s)", count)
			}
		}

		grid = append(grid, cells)
		rowIndices = append(rowIndices, rowIndex)
	}
	return grid, rowIndices, nil
}

func countStructureRows(conn *Connection, parentTable, header string, parentRowIndex int64) (int, error) {
	childTable := StructureTableName(parentTable, header)
	exists, err := TableExists(conn, childTable)
	if err != nil || !exists {
		return 0, err
	}
	var count int
	err = conn.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %q WHERE parent_key=?`, childTable),
		fmt.Sprintf("%d", parentRowIndex)).Scan(&count)
	if err != nil {
		return 0, Sqlite(err)
	}
	return count, nil
}

// ListSheets returns every table registered in the global catalog.
func ListSheets(conn *Connection) ([]string, error) {
	rows, err := conn.db.Query(`SELECT table_name FROM _Metadata ORDER BY table_name`)
	if err != nil {
		return nil, Sqlite(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, Sqlite(err)
		}
		out = append(out, name)
	}
	return out, nil
}

// ListMainSheets returns every top-level (non-structure) sheet name,
// excluding the structure child tables _Metadata also tracks.
func ListMainSheets(conn *Connection) ([]string, error) {
	rows, err := conn.db.Query(`SELECT table_name FROM _Metadata WHERE table_type = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, Sqlite(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, Sqlite(err)
		}
		out = append(out, name)
	}
	return out, nil
}

func addColumnIfMissing(daemon ExecBatcher, dbName, table, column, sqlType, defaultVal string) error {
	stmt := Statement{SQL: fmt.Sprintf("ALTER TABLE %q ADD COLUMN %s %s DEFAULT %s", table, column, sqlType, defaultVal)}
	_, err := daemon.ExecBatch(dbName, []Statement{stmt})
	return err
}
