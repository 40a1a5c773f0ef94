package sheetdb

import "testing"

func TestAddStructureColumn_BackfillsFromSiblingColumns(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{
		{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))},
		{Index: 1, Header: "Tag", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))},
	}
	createTestSheet(t, conn, "Widgets", cols)

	daemon := NewLocalExecBatcher(conn)
	w := NewWriter(conn, daemon, "test")
	if err := w.PrependRow("Widgets", map[string]string{"Name": "alpha", "Tag": "red"}); err != nil {
		t.Fatalf("PrependRow: %v", err)
	}
	if err := w.PrependRow("Widgets", map[string]string{"Name": "beta", "Tag": "blue"}); err != nil {
		t.Fatalf("PrependRow: %v", err)
	}

	fields := []StructureFieldDefinition{{Header: "Tag", DataType: TypeString}}
	var progress int
	if err := AddStructureColumn(conn, "Widgets", "Tags", fields, func(done int) { progress = done }); err != nil {
		t.Fatalf("AddStructureColumn: %v", err)
	}
	if progress != 2 {
		t.Errorf("progress = %d, want 2", progress)
	}

	childTable := StructureTableName("Widgets", "Tags")
	exists, err := TableExists(conn, childTable)
	if err != nil || !exists {
		t.Fatalf("expected %s table to exist, err=%v", childTable, err)
	}

	rows, err := conn.DB().Query(`SELECT "Tag" FROM ` + `"` + childTable + `" ORDER BY row_index`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			t.Fatalf("scan: %v", err)
		}
		tags = append(tags, tag)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 backfilled rows, got %v", tags)
	}

	meta, err := ReadMetadata(conn, daemon, "Widgets")
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	var found bool
	for _, c := range meta.Columns {
		if c.Header == "Tags" && c.IsStructure() {
			found = true
		}
	}
	if !found {
		t.Error("expected Tags column to be registered as Structure on Widgets metadata")
	}
}

func TestAddStructureColumn_NoMatchingSiblingsYieldsNullFields(t *testing.T) {
	conn := openTestConn(t)
	cols := []Column{
		{Index: 0, Header: "Name", DataType: TypeString, Validator: ptrValidator(BasicValidator(TypeString))},
	}
	createTestSheet(t, conn, "Widgets", cols)

	daemon := NewLocalExecBatcher(conn)
	w := NewWriter(conn, daemon, "test")
	if err := w.PrependRow("Widgets", map[string]string{"Name": "alpha"}); err != nil {
		t.Fatalf("PrependRow: %v", err)
	}

	fields := []StructureFieldDefinition{{Header: "Tag", DataType: TypeString}}
	if err := AddStructureColumn(conn, "Widgets", "Tags", fields, nil); err != nil {
		t.Fatalf("AddStructureColumn: %v", err)
	}

	childTable := StructureTableName("Widgets", "Tags")
	var count int
	if err := conn.DB().QueryRow(`SELECT COUNT(*) FROM "` + childTable + `"`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one backfilled row even with no matching sibling column, got %d", count)
	}
}
