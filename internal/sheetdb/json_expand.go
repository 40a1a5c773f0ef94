package sheetdb

import (
	"encoding/json"
	"strconv"
	"strings"
)

// jsonValueToString converts any parsed JSON value to its string form
// losslessly enough for the grid: null -> "", bool -> "true"/"false",
// numbers render without quotes, strings pass through, everything else
// (nested arrays/objects) serializes compactly.
func jsonValueToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatJSONNumber(val)
	case string:
		return val
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func formatJSONNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func rowHasAnyValue(row []string) bool {
	for _, s := range row {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// parseCellJSON parses a raw cell string as JSON, supporting
// double-encoded JSON strings (a JSON string whose content is itself
// JSON). A cell that parses as an object is returned as that object;
// text that does not parse but is enclosed in braces is retried
// wrapped in [ ], and nil is returned when nothing parses.
func parseCellJSON(cell string) any {
	var v any
	if err := json.Unmarshal([]byte(cell), &v); err == nil {
		if s, ok := v.(string); ok {
			st := strings.TrimSpace(s)
			if (strings.HasPrefix(st, "[") && strings.HasSuffix(st, "]")) ||
				(strings.HasPrefix(st, "{") && strings.HasSuffix(st, "}")) {
				var v2 any
				if err := json.Unmarshal([]byte(st), &v2); err == nil {
					return v2
				}
			}
		}
		return v
	}
	ts := strings.TrimSpace(cell)
	if strings.HasPrefix(ts, "{") && strings.HasSuffix(ts, "}") {
		var v2 any
		if err := json.Unmarshal([]byte("["+ts+"]"), &v2); err == nil {
			return v2
		}
	}
	return nil
}

// ExpandValueToRows normalizes a heterogeneous embedded-JSON structure
// cell into rows of schema width, per the §4.5.1 algorithm: array-of-
// arrays maps positionally; array-of-objects maps by (normalized)
// field name; arrays of primitives map by count (single-field schema,
// exact fit, chunking, or a first-N fallback); objects search for the
// structure header key, then common wrapper keys, then treat the
// object as one row; strings are parsed and recursed (double-encoding
// support).
func ExpandValueToRows(val any, schemaFields []StructureFieldDefinition, structureHeader string) [][]string {
	headerNorm := normalizeKey(structureHeader)
	switch v := val.(type) {
	case []any:
		return expandArray(v, schemaFields, headerNorm)
	case map[string]any:
		return expandObject(v, schemaFields, structureHeader, headerNorm)
	case string:
		return ExpandValueToRows(parseCellJSON(v), schemaFields, structureHeader)
	default:
		return nil
	}
}

func expandArray(arr []any, schemaFields []StructureFieldDefinition, headerNorm string) [][]string {
	if len(arr) == 0 {
		return nil
	}
	cols := len(schemaFields)

	allArrays := true
	allObjects := true
	for _, item := range arr {
		if _, ok := item.([]any); !ok {
			allArrays = false
		}
		if _, ok := item.(map[string]any); !ok {
			allObjects = false
		}
	}

	if allArrays {
		out := make([][]string, 0, len(arr))
		for _, item := range arr {
			inner := item.([]any)
			row := make([]string, cols)
			for i := 0; i < cols && i < len(inner); i++ {
				row[i] = jsonValueToString(inner[i])
			}
			if rowHasAnyValue(row) {
				out = append(out, row)
			}
		}
		return out
	}

	if allObjects {
		out := make([][]string, 0, len(arr))
		for _, item := range arr {
			obj := item.(map[string]any)
			row := lookupRowByFields(obj, schemaFields)
			if rowHasAnyValue(row) {
				out = append(out, row)
			}
		}
		return out
	}

	// Array of primitives or mixed content -> map by count.
	if cols == 0 {
		return nil
	}
	values := make([]string, len(arr))
	for i, item := range arr {
		values[i] = jsonValueToString(item)
	}

	if cols == 1 {
		var out [][]string
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				out = append(out, []string{v})
			}
		}
		return out
	}

	if len(values) == cols {
		row := padOrTruncate(values, cols)
		if rowHasAnyValue(row) {
			return [][]string{row}
		}
		return nil
	}

	if cols > 0 && len(values)%cols == 0 {
		var out [][]string
		for i := 0; i < len(values); i += cols {
			row := append([]string(nil), values[i:i+cols]...)
			if rowHasAnyValue(row) {
				out = append(out, row)
			}
		}
		return out
	}

	row := padOrTruncate(values, cols)
	if rowHasAnyValue(row) {
		return [][]string{row}
	}
	return nil
}

func padOrTruncate(values []string, cols int) []string {
	row := make([]string, cols)
	n := cols
	if len(values) < n {
		n = len(values)
	}
	copy(row, values[:n])
	return row
}

func lookupRowByFields(obj map[string]any, schemaFields []StructureFieldDefinition) []string {
	normMap := map[string]any{}
	for k, v := range obj {
		normMap[normalizeKey(k)] = v
	}
	row := make([]string, len(schemaFields))
	for i, f := range schemaFields {
		var v any
		var ok bool
		if v, ok = obj[f.Header]; !ok {
			v, ok = normMap[normalizeKey(f.Header)]
		}
		if ok {
			row[i] = jsonValueToString(v)
		}
	}
	return row
}

var wrapperKeys = []string{"Rows", "rows", "items", "Items", "data", "Data"}

func expandObject(obj map[string]any, schemaFields []StructureFieldDefinition, structureHeader, headerNorm string) [][]string {
	normMap := map[string]any{}
	for k, v := range obj {
		normMap[normalizeKey(k)] = v
	}

	if arrVal, ok := normMap[headerNorm]; ok {
		if arr, isArr := arrVal.([]any); isArr {
			return expandArray(arr, schemaFields, headerNorm)
		}
	}

	for _, key := range wrapperKeys {
		if v, ok := obj[key]; ok {
			if arr, isArr := v.([]any); isArr {
				return expandArray(arr, schemaFields, headerNorm)
			}
		}
	}

	if len(schemaFields) == 0 {
		return nil
	}
	row := lookupRowByFields(obj, schemaFields)
	if rowHasAnyValue(row) {
		return [][]string{row}
	}
	return nil
}

var parentKeyCandidates = []string{"key", "name", "id"}

// ResolveParentKey derives the parent_key a freshly expanded child row
// should carry: the declared key column if set, else the first
// case-insensitive match of Key/Name/ID among the parent row's own
// cells, else empty string.
func ResolveParentKey(parentRow []string, parentCols []Column, keyColumnIndex int, hasKeyColumn bool) string {
	if hasKeyColumn && keyColumnIndex >= 0 && keyColumnIndex < len(parentRow) {
		return parentRow[keyColumnIndex]
	}
	for _, candidate := range parentKeyCandidates {
		for i, c := range parentCols {
			if i >= len(parentRow) {
				continue
			}
			if normalizeKey(c.Header) == candidate {
				return parentRow[i]
			}
		}
	}
	return ""
}
