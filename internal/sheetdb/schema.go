package sheetdb

import (
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the highest _SchemaMigrations version this build
// knows how to apply.
const SchemaVersion = 2

// =============================================================================
// GLOBAL CATALOG
// =============================================================================

const globalMetadataDDL = `
CREATE TABLE IF NOT EXISTS _Metadata (
	table_name TEXT PRIMARY KEY,
	table_type TEXT NOT NULL DEFAULT 'main',
	parent_table TEXT,
	parent_column TEXT,
	ai_allow_add_rows INTEGER DEFAULT 1,
	ai_table_context TEXT,
	ai_grounding_with_google_search INTEGER DEFAULT 0,
	ai_model_id TEXT,
	ai_active_group TEXT,
	display_order INTEGER DEFAULT 0,
	category TEXT,
	hidden INTEGER DEFAULT 0,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS _SchemaMigrations (
	version INTEGER PRIMARY KEY,
	description TEXT,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureGlobalMetadata provisions `_Metadata` and `_SchemaMigrations`
// and then runs every outstanding versioned migration. Safe to call on
// every open.
func EnsureGlobalMetadata(conn *Connection) error {
	if _, err := conn.db.Exec(globalMetadataDDL); err != nil {
		return Sqlite(err)
	}
	if _, err := conn.db.Exec(schemaMigrationsDDL); err != nil {
		return Sqlite(err)
	}
	return RunMigrations(conn)
}

// RunMigrations applies each not-yet-applied migration in order. Each
// migration is idempotent — ALTER TABLE ADD COLUMN failures because the
// column already exists are tolerated, matching the teacher's
// best-effort migration style.
func RunMigrations(conn *Connection) error {
	applied := map[int]bool{}
	rows, err := conn.db.Query(`SELECT version FROM _SchemaMigrations`)
	if err != nil {
		return Sqlite(err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return Sqlite(err)
		}
		applied[v] = true
	}
	rows.Close()

	migrations := []struct {
		version     int
		description string
		run         func(*sql.Tx) error
	}{
		{1, "add hidden and ai_grounding_with_google_search to _Metadata", migrationV1},
		{2, "add ai_model_id to _Metadata", migrationV2},
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := conn.db.Begin()
		if err != nil {
			return Sqlite(err)
		}
		if err := m.run(tx); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO _SchemaMigrations (version, description) VALUES (?, ?)`, m.version, m.description); err != nil {
			tx.Rollback()
			return Sqlite(err)
		}
		if err := tx.Commit(); err != nil {
			return Sqlite(err)
		}
		log.Info("applied schema migration", "version", m.version, "description", m.description)
	}
	return nil
}

func migrationV1(tx *sql.Tx) error {
	addColumnTolerant(tx, "_Metadata", "hidden", "INTEGER DEFAULT 0")
	addColumnTolerant(tx, "_Metadata", "ai_grounding_with_google_search", "INTEGER DEFAULT 0")
	return nil
}

func migrationV2(tx *sql.Tx) error {
	addColumnTolerant(tx, "_Metadata", "ai_model_id", "TEXT")
	return nil
}

// addColumnTolerant runs ALTER TABLE ADD COLUMN and swallows the
// "duplicate column name" error every SQLite version reports when the
// column already exists — migrations in this engine are safe to
// re-attempt.
func addColumnTolerant(tx *sql.Tx, table, column, decl string) {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)
	if _, err := tx.Exec(stmt); err != nil {
		if !strings.Contains(err.Error(), "duplicate column name") {
			log.Warn("non-fatal migration error", "table", table, "column", column, "error", err)
		}
	}
}

// =============================================================================
// DATA / METADATA TABLE LAYOUTS
// =============================================================================

// dataTableDDL builds the physical data table for a main (non-structure)
// sheet. Structure-validator columns are omitted entirely — they live
// only in their own child table.
func dataTableDDL(tableName string, cols []Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %q (\n", tableName)
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("\trow_index INTEGER NOT NULL UNIQUE,\n")
	for _, c := range cols {
		if c.IsStructure() {
			continue
		}
		fmt.Fprintf(&b, "\t%q %s,\n", c.Header, c.DataType.SQLType())
	}
	b.WriteString("\tcreated_at TEXT DEFAULT CURRENT_TIMESTAMP,\n")
	b.WriteString("\tupdated_at TEXT DEFAULT CURRENT_TIMESTAMP\n")
	b.WriteString(")")
	return b.String()
}

func metadataTableDDL(metaTable string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	column_index INTEGER UNIQUE,
	column_name TEXT UNIQUE,
	data_type TEXT,
	validator_type TEXT,
	validator_config TEXT,
	ai_context TEXT,
	filter_expr TEXT,
	ai_enable_row_generation INTEGER DEFAULT 0,
	ai_include_in_send INTEGER DEFAULT 1,
	deleted INTEGER DEFAULT 0,
	display_name TEXT
)`, metaTable)
}

func aiGroupsTableDDL(groupsTable string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	column_id INTEGER NOT NULL,
	group_name TEXT NOT NULL,
	is_enabled INTEGER DEFAULT 1
)`, groupsTable)
}

// structureTableDDL builds a structure child table. grandParentDepth is
// how many grand_N_parent ancestry columns to carry (0 for a direct
// child of a main sheet).
func structureTableDDL(tableName string, grandParentDepth int, fields []StructureFieldDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %q (\n", tableName)
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("\trow_index INTEGER NOT NULL,\n")
	b.WriteString("\tparent_key TEXT NOT NULL,\n")
	for n := 1; n <= grandParentDepth; n++ {
		fmt.Fprintf(&b, "\tgrand_%d_parent TEXT,\n", n)
	}
	for _, f := range fields {
		fmt.Fprintf(&b, "\t%q %s,\n", f.Header, f.DataType.SQLType())
	}
	b.WriteString("\tcreated_at TEXT DEFAULT CURRENT_TIMESTAMP,\n")
	b.WriteString("\tupdated_at TEXT DEFAULT CURRENT_TIMESTAMP,\n")
	b.WriteString("\tUNIQUE(parent_key, row_index)\n")
	b.WriteString(")")
	return b.String()
}

// MetadataTableName and StructureTableName centralize the naming
// convention so renames stay consistent.
func MetadataTableName(sheet string) string { return sheet + "_Metadata" }
func GroupsTableName(sheet string) string   { return sheet + "_Metadata_Groups" }
func StructureTableName(parent, header string) string { return parent + "_" + header }

// CreateSheetOptions configures a freshly created main sheet.
type CreateSheetOptions struct {
	Category string
}

// CreateSheet provisions the data table, metadata table, and AI-groups
// table for a new main sheet, and registers it in `_Metadata`. It does
// not create structure child tables — callers invoke CreateStructureTable
// for each Structure-validator column separately, since structure
// creation has its own Clean-Start/Careful-Recreation decision.
func CreateSheet(tx *sql.Tx, name string, cols []Column, opts CreateSheetOptions) error {
	if _, err := tx.Exec(dataTableDDL(name, cols)); err != nil {
		return Sqlite(err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q(row_index)`, "idx_"+name+"_row_index", name)); err != nil {
		return Sqlite(err)
	}
	metaTable := MetadataTableName(name)
	if _, err := tx.Exec(metadataTableDDL(metaTable)); err != nil {
		return Sqlite(err)
	}
	groupsTable := GroupsTableName(name)
	if _, err := tx.Exec(aiGroupsTableDDL(groupsTable)); err != nil {
		return Sqlite(err)
	}
	for _, c := range cols {
		if err := insertMetadataColumn(tx, metaTable, c); err != nil {
			return err
		}
		if err := seedAIGroup(tx, groupsTable, c); err != nil {
			return err
		}
	}
	return insertTableMetadata(tx, name, "main", "", "", opts.Category)
}

func insertMetadataColumn(tx *sql.Tx, metaTable string, c Column) error {
	validatorType, validatorConfig := buildValidatorInfo(c.Validator)
	_, err := tx.Exec(fmt.Sprintf(`INSERT OR REPLACE INTO %q
		(column_index, column_name, data_type, validator_type, validator_config, ai_context,
		 filter_expr, ai_enable_row_generation, ai_include_in_send, deleted, display_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, metaTable),
		c.Index, c.Header, c.DataType.String(), validatorType, validatorConfig, c.AIContext,
		c.Filter, boolToInt(c.AIEnableRowGeneration), boolToInt(c.AIIncludeInSend), boolToInt(c.Deleted), c.DisplayName)
	if err != nil {
		return Sqlite(err)
	}
	return nil
}

func seedAIGroup(tx *sql.Tx, groupsTable string, c Column) error {
	_, err := tx.Exec(fmt.Sprintf(`INSERT INTO %q (column_id, group_name, is_enabled) VALUES (?, ?, 1)`, groupsTable),
		c.Index, "default")
	if err != nil {
		return Sqlite(err)
	}
	return nil
}

// buildValidatorInfo renders a validator into the (validator_type,
// validator_config) pair stored in the metadata table: validator_type
// is one of "", "Basic", "Linked", "Structure"; validator_config is
// JSON only for Linked and Structure.
func buildValidatorInfo(v *ColumnValidator) (string, string) {
	if v == nil {
		return "", ""
	}
	switch v.Kind {
	case ValidatorBasic:
		return "Basic", ""
	case ValidatorLinked:
		return "Linked", fmt.Sprintf(`{"target_table":%q,"target_column_index":%d}`, v.TargetSheetName, v.TargetColumnIndex)
	default:
		return "Structure", `{}`
	}
}

func insertTableMetadata(tx *sql.Tx, tableName, tableType, parentTable, parentColumn, category string) error {
	hidden := 0
	if tableType == "structure" {
		hidden = 1
	}
	_, err := tx.Exec(`INSERT OR REPLACE INTO _Metadata
		(table_name, table_type, parent_table, parent_column, category, hidden)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tableName, tableType, nullIfEmpty(parentTable), nullIfEmpty(parentColumn), category, hidden)
	if err != nil {
		return Sqlite(err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// StructureStrategy selects how an existing structure child table is
// reshaped when its parent's declared schema changes.
type StructureStrategy int

const (
	// CleanStart drops any existing child table and recreates it,
	// repopulating by copying parent content.
	CleanStart StructureStrategy = iota
	// CarefulRecreation keeps the existing table and only updates
	// metadata, provided the physical column set already matches.
	CarefulRecreation
)

// ShouldRecreateStructureTable reports whether the physical columns of
// an existing child table differ from the expected field set.
func ShouldRecreateStructureTable(conn *Connection, tableName string, expected []StructureFieldDefinition) (bool, error) {
	exists, err := TableExists(conn, tableName)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	physical, err := physicalColumnSet(conn, tableName)
	if err != nil {
		return false, err
	}
	want := map[string]bool{}
	for _, f := range expected {
		want[normalizeKey(f.Header)] = true
	}
	if len(want) != len(physical) {
		return true, nil
	}
	for k := range want {
		if !physical[k] {
			return true, nil
		}
	}
	return false, nil
}

func physicalColumnSet(conn *Connection, table string) (map[string]bool, error) {
	rows, err := conn.db.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, Sqlite(err)
	}
	defer rows.Close()
	set := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, Sqlite(err)
		}
		if isTechnicalOrAncestryColumn(name) {
			continue
		}
		set[normalizeKey(name)] = true
	}
	return set, nil
}

func isTechnicalOrAncestryColumn(name string) bool {
	switch name {
	case "id", "row_index", "parent_key", "parent_id", "created_at", "updated_at", "temp_new_row_index":
		return true
	}
	return strings.HasPrefix(name, "grand_") && strings.HasSuffix(name, "_parent")
}

// normalizeKey lowercases and strips non-alphanumeric characters,
// used throughout the engine to match headers across minor spelling
// differences (disk JSON vs physical column names).
func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		} else if r >= 'A' && r <= 'Z' {
			b.WriteRune(r - 'A' + 'a')
		}
	}
	return b.String()
}

// CreateStructureTable creates (or recreates, per strategy) the child
// table for a structure column and registers it in `_Metadata`.
func CreateStructureTable(tx *sql.Tx, parentTable, header string, grandParentDepth int, fields []StructureFieldDefinition, strategy StructureStrategy) error {
	tableName := StructureTableName(parentTable, header)
	if strategy == CleanStart {
		if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, tableName)); err != nil {
			return Sqlite(err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, MetadataTableName(tableName))); err != nil {
			return Sqlite(err)
		}
	}
	if _, err := tx.Exec(structureTableDDL(tableName, grandParentDepth, fields)); err != nil {
		return Sqlite(err)
	}
	metaTable := MetadataTableName(tableName)
	if _, err := tx.Exec(metadataTableDDL(metaTable)); err != nil {
		return Sqlite(err)
	}
	for i, f := range fields {
		c := Column{Index: i, Header: f.Header, DataType: f.DataType, AIIncludeInSend: true}
		if err := insertMetadataColumn(tx, metaTable, c); err != nil {
			return err
		}
	}
	return insertTableMetadata(tx, tableName, "structure", parentTable, header, "")
}
