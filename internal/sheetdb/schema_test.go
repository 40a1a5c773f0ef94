package sheetdb

import (
	"path/filepath"
	"testing"
)

func openTestConn(t *testing.T) *Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "category.db")
	conn, err := WriterConn(path)
	if err != nil {
		t.Fatalf("WriterConn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func createTestSheet(t *testing.T, conn *Connection, name string, cols []Column) {
	t.Helper()
	tx, err := conn.DB().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := CreateSheet(tx, name, cols, CreateSheetOptions{Category: "test"}); err != nil {
		tx.Rollback()
		t.Fatalf("CreateSheet: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestCreateSheet_RegistersMetadataAndDataTable(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{
		{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))},
		{Index: 1, Header: "Count", DataType: TypeI64, Validator: ptrValidator(BasicValidator(TypeI64))},
	}
	createTestSheet(t, conn, "Widgets", cols)

	exists, err := TableExists(conn, "Widgets")
	if err != nil || !exists {
		t.Fatalf("expected Widgets table to exist, err=%v", err)
	}
	exists, err = TableExists(conn, MetadataTableName("Widgets"))
	if err != nil || !exists {
		t.Fatalf("expected Widgets_Metadata table to exist, err=%v", err)
	}

	tt, err := GetTableType(conn, "Widgets")
	if err != nil {
		t.Fatalf("GetTableType: %v", err)
	}
	if tt != "main" {
		t.Errorf("GetTableType = %q, want main", tt)
	}
}

func TestWriterPrependAndReadSheet_RoundTrip(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{
		{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))},
	}
	createTestSheet(t, conn, "Widgets", cols)

	daemon := NewLocalExecBatcher(conn)
	w := NewWriter(conn, daemon, "test")

	if err := w.PrependRow("Widgets", map[string]string{"Name": "first"}); err != nil {
		t.Fatalf("PrependRow: %v", err)
	}
	if err := w.PrependRow("Widgets", map[string]string{"Name": "second"}); err != nil {
		t.Fatalf("PrependRow: %v", err)
	}

	data, err := ReadSheet(conn, daemon, "Widgets")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if len(data.Grid) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(data.Grid))
	}

	nameIdx := -1
	for i, c := range data.Metadata.Columns {
		if c.Header == "Name" {
			nameIdx = i
		}
	}
	if nameIdx < 0 {
		t.Fatal("Name column not found in metadata")
	}
	// newest-first ordering: "second" was prepended last.
	if data.Grid[0][nameIdx] != "second" {
		t.Errorf("Grid[0][Name] = %q, want second", data.Grid[0][nameIdx])
	}
	if data.Grid[1][nameIdx] != "first" {
		t.Errorf("Grid[1][Name] = %q, want first", data.Grid[1][nameIdx])
	}
}

func TestWriterDeleteRowAndCompact(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))}}
	createTestSheet(t, conn, "Widgets", cols)

	daemon := NewLocalExecBatcher(conn)
	w := NewWriter(conn, daemon, "test")
	for _, name := range []string{"a", "b", "c"} {
		if err := w.PrependRow("Widgets", map[string]string{"Name": name}); err != nil {
			t.Fatalf("PrependRow: %v", err)
		}
	}

	// row_index 0 is "a"; delete it and confirm b/c compact down.
	if err := w.DeleteRowAndCompact("Widgets", 0); err != nil {
		t.Fatalf("DeleteRowAndCompact: %v", err)
	}

	data, err := ReadSheet(conn, daemon, "Widgets")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if len(data.Grid) != 2 {
		t.Fatalf("expected 2 rows after delete, got %d", len(data.Grid))
	}
	for _, idx := range data.RowIndices {
		if idx < 0 || idx > 1 {
			t.Errorf("expected compacted row_index in [0,1], got %d", idx)
		}
	}
}

func TestWriterAddColumnWithMetadata(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))}}
	createTestSheet(t, conn, "Widgets", cols)

	daemon := NewLocalExecBatcher(conn)
	w := NewWriter(conn, daemon, "test")
	newCol := Column{Index: 1, Header: "Count", DataType: TypeI64, Validator: ptrValidator(BasicValidator(TypeI64))}
	if err := w.AddColumnWithMetadata("Widgets", newCol); err != nil {
		t.Fatalf("AddColumnWithMetadata: %v", err)
	}

	meta, err := ReadMetadata(conn, daemon, "Widgets")
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	found := false
	for _, c := range meta.Columns {
		if c.Header == "Count" && c.DataType == TypeI64 {
			found = true
		}
	}
	if !found {
		t.Error("expected Count column to be present after AddColumnWithMetadata")
	}
}

func TestWriterRenameTable(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))}}
	createTestSheet(t, conn, "Widgets", cols)

	daemon := NewLocalExecBatcher(conn)
	w := NewWriter(conn, daemon, "test")
	if err := w.RenameTable("Widgets", "Gadgets", nil); err != nil {
		t.Fatalf("RenameTable: %v", err)
	}

	exists, err := TableExists(conn, "Gadgets")
	if err != nil || !exists {
		t.Fatalf("expected Gadgets table to exist after rename, err=%v", err)
	}
	exists, err = TableExists(conn, "Widgets")
	if err != nil || exists {
		t.Fatalf("expected Widgets table to be gone after rename, err=%v", err)
	}

	names, err := ListMainSheets(conn)
	if err != nil {
		t.Fatalf("ListMainSheets: %v", err)
	}
	if len(names) != 1 || names[0] != "Gadgets" {
		t.Errorf("ListMainSheets = %v, want [Gadgets]", names)
	}
}

func TestWriterDropSheet(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))}}
	createTestSheet(t, conn, "Widgets", cols)

	daemon := NewLocalExecBatcher(conn)
	w := NewWriter(conn, daemon, "test")
	if err := w.DropSheet("Widgets", nil); err != nil {
		t.Fatalf("DropSheet: %v", err)
	}

	exists, err := TableExists(conn, "Widgets")
	if err != nil || exists {
		t.Fatalf("expected Widgets table to be gone, err=%v", err)
	}
	names, err := ListMainSheets(conn)
	if err != nil {
		t.Fatalf("ListMainSheets: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("ListMainSheets = %v, want empty", names)
	}
}

func TestCreateStructureTable_RegistersAsStructureChild(t *testing.T) {
	conn := openTestConn(t)
	structureValidator := StructureValidator()
	cols := []Column{
		{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))},
		{Index: 1, Header: "Tags", DataType: TypeString, Validator: &structureValidator},
	}
	createTestSheet(t, conn, "Widgets", cols)

	tx, err := conn.DB().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	fields := []StructureFieldDefinition{{Header: "Tag", DataType: TypeString}}
	if err := CreateStructureTable(tx, "Widgets", "Tags", 0, fields, CleanStart); err != nil {
		tx.Rollback()
		t.Fatalf("CreateStructureTable: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	childTable := StructureTableName("Widgets", "Tags")
	exists, err := TableExists(conn, childTable)
	if err != nil || !exists {
		t.Fatalf("expected %s table to exist, err=%v", childTable, err)
	}
	tt, err := GetTableType(conn, childTable)
	if err != nil {
		t.Fatalf("GetTableType: %v", err)
	}
	if tt != "structure" {
		t.Errorf("GetTableType(%s) = %q, want structure", childTable, tt)
	}
}

func ptrValidator(v ColumnValidator) *ColumnValidator { return &v }
