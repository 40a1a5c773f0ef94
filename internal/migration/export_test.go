package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

func TestExportSheetToJSON_RoundTripsScalarData(t *testing.T) {
	srcDir := t.TempDir()
	meta := `{
		"sheet_name": "Widgets",
		"columns": [
			{"header": "Name", "data_type": "String", "validator": "String"},
			{"header": "Count", "data_type": "I64", "validator": "I64"}
		]
	}`
	writeJSONPair(t, srcDir, "Widgets", `[["alpha","1"],["beta","2"]]`, meta)

	sheets, err := ScanJSONFolder(srcDir)
	if err != nil {
		t.Fatalf("ScanJSONFolder: %v", err)
	}
	conn := openMigrationTestConn(t)
	if err := MigrateSheetFromJSON(conn, sheets["Widgets"], 0, nil); err != nil {
		t.Fatalf("MigrateSheetFromJSON: %v", err)
	}

	outDir := t.TempDir()
	daemon := sheetdb.NewLocalExecBatcher(conn)
	if err := ExportSheetToJSON(conn, daemon, "Widgets", outDir); err != nil {
		t.Fatalf("ExportSheetToJSON: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "Widgets.json")); err != nil {
		t.Errorf("expected Widgets.json to be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "Widgets.meta.json")); err != nil {
		t.Errorf("expected Widgets.meta.json to be written: %v", err)
	}

	grid, err := LoadGridData(filepath.Join(outDir, "Widgets.json"))
	if err != nil {
		t.Fatalf("LoadGridData on export: %v", err)
	}
	if len(grid) != 2 {
		t.Fatalf("expected 2 exported rows, got %d", len(grid))
	}

	reimported, err := LoadMetadata(filepath.Join(outDir, "Widgets.meta.json"))
	if err != nil {
		t.Fatalf("LoadMetadata on export: %v", err)
	}
	var sawName, sawCount bool
	for _, c := range reimported.Columns {
		switch c.Header {
		case "Name":
			sawName = true
		case "Count":
			sawCount = true
		}
	}
	if !sawName || !sawCount {
		t.Errorf("expected Name and Count columns in re-exported metadata, got %+v", reimported.Columns)
	}
}

func TestExportSheetToJSON_UnknownSheet(t *testing.T) {
	conn := openMigrationTestConn(t)
	daemon := sheetdb.NewLocalExecBatcher(conn)
	err := ExportSheetToJSON(conn, daemon, "DoesNotExist", t.TempDir())
	if err == nil {
		t.Fatal("expected error exporting an unregistered sheet")
	}
}
