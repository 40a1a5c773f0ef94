package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

func openMigrationTestConn(t *testing.T) *sheetdb.Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "category.db")
	conn, err := sheetdb.WriterConn(path)
	if err != nil {
		t.Fatalf("WriterConn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateSheetFromJSON_SimpleSheet(t *testing.T) {
	dir := t.TempDir()
	meta := `{
		"sheet_name": "Widgets",
		"columns": [
			{"header": "Name", "data_type": "String", "validator": "String"},
			{"header": "Count", "data_type": "I64", "validator": "I64"}
		]
	}`
	data := `[["alpha", "1"], ["beta", "2"], ["gamma", "3"]]`
	writeJSONPair(t, dir, "Widgets", data, meta)

	sheets, err := ScanJSONFolder(dir)
	if err != nil {
		t.Fatalf("ScanJSONFolder: %v", err)
	}
	pair := sheets["Widgets"]

	conn := openMigrationTestConn(t)
	var progressCalls []int
	err = MigrateSheetFromJSON(conn, pair, 0, func(rowsDone int) {
		progressCalls = append(progressCalls, rowsDone)
	})
	if err != nil {
		t.Fatalf("MigrateSheetFromJSON: %v", err)
	}
	if len(progressCalls) == 0 || progressCalls[len(progressCalls)-1] != 3 {
		t.Errorf("expected a final progress tick of 3, got %v", progressCalls)
	}

	daemon := sheetdb.NewLocalExecBatcher(conn)
	sheetData, err := sheetdb.ReadSheet(conn, daemon, "Widgets")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if len(sheetData.Grid) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(sheetData.Grid))
	}
}

func TestMigrateSheetFromJSON_WithStructureColumn(t *testing.T) {
	dir := t.TempDir()
	meta := `{
		"sheet_name": "Widgets",
		"columns": [
			{"header": "Name", "data_type": "String", "validator": "String"},
			{"header": "Tags", "data_type": "String", "validator": "Structure",
			 "structure_schema": [{"header": "Tag", "data_type": "String"}]}
		]
	}`
	data := `[["widget-a", "[{\"Tag\":\"red\"},{\"Tag\":\"blue\"}]"]]`
	writeJSONPair(t, dir, "Widgets", data, meta)

	sheets, err := ScanJSONFolder(dir)
	if err != nil {
		t.Fatalf("ScanJSONFolder: %v", err)
	}
	pair := sheets["Widgets"]

	conn := openMigrationTestConn(t)
	if err := MigrateSheetFromJSON(conn, pair, 0, nil); err != nil {
		t.Fatalf("MigrateSheetFromJSON: %v", err)
	}

	childTable := sheetdb.StructureTableName("Widgets", "Tags")
	exists, err := sheetdb.TableExists(conn, childTable)
	if err != nil || !exists {
		t.Fatalf("expected structure child table %s to exist, err=%v", childTable, err)
	}

	var count int
	if err := conn.DB().QueryRow(`SELECT COUNT(*) FROM ` + quoteTableForTest(childTable)).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 expanded structure rows, got %d", count)
	}
}

func TestMigrateSheetFromJSON_MissingDataFileFails(t *testing.T) {
	dir := t.TempDir()
	meta := `{"sheet_name": "Ghost", "columns": [{"header":"Name","data_type":"String","validator":"String"}]}`
	metaPath := filepath.Join(dir, "Ghost.meta.json")
	if err := os.WriteFile(metaPath, []byte(meta), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pair := &SheetPair{Name: "Ghost", DataPath: filepath.Join(dir, "Ghost.json"), MetaPath: metaPath}

	conn := openMigrationTestConn(t)
	err := MigrateSheetFromJSON(conn, pair, 0, nil)
	if err == nil {
		t.Fatal("expected error for missing data file")
	}
	if !sheetdb.IsKind(err, sheetdb.KindMigrationFailed) {
		t.Errorf("expected KindMigrationFailed, got %v", err)
	}
}

func quoteTableForTest(name string) string {
	return `"` + name + `"`
}
