package sheetdb

import "testing"

func schemaOf(headers ...string) []StructureFieldDefinition {
	fields := make([]StructureFieldDefinition, len(headers))
	for i, h := range headers {
		fields[i] = StructureFieldDefinition{Header: h, DataType: TypeString}
	}
	return fields
}

func TestExpandValueToRows_ArrayOfArrays(t *testing.T) {
	val := []any{
		[]any{"a", "1"},
		[]any{"b", "2"},
	}
	rows := ExpandValueToRows(val, schemaOf("Name", "Count"), "Tags")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "a" || rows[0][1] != "1" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][0] != "b" || rows[1][1] != "2" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestExpandValueToRows_ArrayOfObjects(t *testing.T) {
	val := []any{
		map[string]any{"Name": "widget", "Count": float64(3)},
		map[string]any{"name": "gadget", "count": float64(5)},
	}
	rows := ExpandValueToRows(val, schemaOf("Name", "Count"), "Tags")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "widget" || rows[0][1] != "3" {
		t.Errorf("row 0 = %v", rows[0])
	}
	// second row's keys differ in case; normalizeKey matching should still resolve them.
	if rows[1][0] != "gadget" || rows[1][1] != "5" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestExpandValueToRows_PrimitiveArray_SingleColumn(t *testing.T) {
	val := []any{"red", "green", "blue"}
	rows := ExpandValueToRows(val, schemaOf("Color"), "Colors")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, want := range []string{"red", "green", "blue"} {
		if rows[i][0] != want {
			t.Errorf("row %d = %v, want %q", i, rows[i], want)
		}
	}
}

func TestExpandValueToRows_PrimitiveArray_ExactFit(t *testing.T) {
	val := []any{"a", "1"}
	rows := ExpandValueToRows(val, schemaOf("Name", "Count"), "Tags")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0] != "a" || rows[0][1] != "1" {
		t.Errorf("row = %v", rows[0])
	}
}

func TestExpandValueToRows_PrimitiveArray_Chunked(t *testing.T) {
	val := []any{"a", "1", "b", "2"}
	rows := ExpandValueToRows(val, schemaOf("Name", "Count"), "Tags")
	if len(rows) != 2 {
		t.Fatalf("expected 2 chunked rows, got %d", len(rows))
	}
	if rows[0][0] != "a" || rows[0][1] != "1" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][0] != "b" || rows[1][1] != "2" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestExpandValueToRows_ObjectWithWrapperKey(t *testing.T) {
	val := map[string]any{
		"rows": []any{
			map[string]any{"Name": "widget"},
		},
	}
	rows := ExpandValueToRows(val, schemaOf("Name"), "Tags")
	if len(rows) != 1 || rows[0][0] != "widget" {
		t.Errorf("rows = %v", rows)
	}
}

func TestExpandValueToRows_ObjectAsSingleRow(t *testing.T) {
	val := map[string]any{"Name": "widget", "Count": float64(1)}
	rows := ExpandValueToRows(val, schemaOf("Name", "Count"), "Tags")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0] != "widget" || rows[0][1] != "1" {
		t.Errorf("row = %v", rows[0])
	}
}

func TestExpandValueToRows_DoubleEncodedString(t *testing.T) {
	val := `[{"Name":"widget"}]`
	rows := ExpandValueToRows(val, schemaOf("Name"), "Tags")
	if len(rows) != 1 || rows[0][0] != "widget" {
		t.Errorf("rows = %v", rows)
	}
}

func TestExpandValueToRows_EmptyArray(t *testing.T) {
	rows := ExpandValueToRows([]any{}, schemaOf("Name"), "Tags")
	if rows != nil {
		t.Errorf("expected nil for empty array, got %v", rows)
	}
}

func TestResolveParentKey_DeclaredKeyColumn(t *testing.T) {
	row := []string{"widget-1", "42"}
	cols := []Column{{Header: "SKU"}, {Header: "Count"}}
	key := ResolveParentKey(row, cols, 0, true)
	if key != "widget-1" {
		t.Errorf("ResolveParentKey = %q, want widget-1", key)
	}
}

func TestResolveParentKey_FallsBackToNameColumn(t *testing.T) {
	row := []string{"widget", "42"}
	cols := []Column{{Header: "Name"}, {Header: "Count"}}
	key := ResolveParentKey(row, cols, -1, false)
	if key != "widget" {
		t.Errorf("ResolveParentKey = %q, want widget", key)
	}
}

func TestResolveParentKey_NoCandidate(t *testing.T) {
	row := []string{"a", "b"}
	cols := []Column{{Header: "Foo"}, {Header: "Bar"}}
	key := ResolveParentKey(row, cols, -1, false)
	if key != "" {
		t.Errorf("ResolveParentKey = %q, want empty string", key)
	}
}
