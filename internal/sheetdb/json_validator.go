package sheetdb

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON emits the canonical variant name ("String", "Bool",
// "I64", "F64"). Legacy aliases are accepted on the way in but never
// written back out.
func (t ColumnDataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ColumnDataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ColumnDataType must be a string: %w", err)
	}
	dt, ok := ParseColumnDataType(s)
	if !ok {
		return fmt.Errorf("unknown ColumnDataType %q", s)
	}
	*t = dt
	return nil
}

// linkedPayload mirrors the object-tag wire shape used by migration
// JSON files for a Linked column validator
// (`{"Linked": {"target_sheet_name": ..., "target_column_index": ...}}`).
// This is distinct from the validator_config column persisted in the
// metadata table, which uses the key target_table — see
// buildValidatorInfo/parseLinkedConfig in schema.go/reader.go.
type linkedPayload struct {
	TargetSheetName   string `json:"target_sheet_name"`
	TargetColumnIndex int    `json:"target_column_index"`
}

// MarshalJSON emits the object-tag form for Basic ({"Basic": type})
// and Linked validators, and the bare string "Structure" for
// Structure validators; UnmarshalJSON reads all of these back.
func (v ColumnValidator) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValidatorBasic:
		return json.Marshal(map[string]ColumnDataType{"Basic": v.BasicType})
	case ValidatorLinked:
		return json.Marshal(map[string]linkedPayload{
			"Linked": {TargetSheetName: v.TargetSheetName, TargetColumnIndex: v.TargetColumnIndex},
		})
	default:
		return json.Marshal("Structure")
	}
}

// UnmarshalJSON accepts every legacy encoding the original format used:
// a bare scalar string ("Structure" or any data-type token interpreted
// as Basic), or a single-key tagged object ({"Basic": ...},
// {"Linked": {...}}, {"Structure": ...}).
func (v *ColumnValidator) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case string:
		if val == "Structure" {
			*v = StructureValidator()
			return nil
		}
		dt, ok := ParseColumnDataType(val)
		if !ok {
			return fmt.Errorf("unknown ColumnValidator string %q", val)
		}
		*v = BasicValidator(dt)
		return nil
	case map[string]any:
		if len(val) != 1 {
			return fmt.Errorf("unrecognized ColumnValidator representation")
		}
		for tag, inner := range val {
			switch tag {
			case "Basic":
				if s, ok := inner.(string); ok {
					dt, ok := ParseColumnDataType(s)
					if ok {
						*v = BasicValidator(dt)
						return nil
					}
				}
				b, _ := json.Marshal(inner)
				var dt ColumnDataType
				if err := json.Unmarshal(b, &dt); err != nil {
					return fmt.Errorf("invalid Basic validator payload: %w", err)
				}
				*v = BasicValidator(dt)
				return nil
			case "Linked":
				b, _ := json.Marshal(inner)
				var p linkedPayload
				if err := json.Unmarshal(b, &p); err != nil {
					return fmt.Errorf("invalid Linked validator payload: %w", err)
				}
				*v = LinkedValidator(p.TargetSheetName, p.TargetColumnIndex)
				return nil
			case "Structure":
				*v = StructureValidator()
				return nil
			}
		}
		return fmt.Errorf("unrecognized ColumnValidator representation")
	default:
		return fmt.Errorf("unrecognized ColumnValidator representation")
	}
}

// ParseLegacyValidator handles the oldest on-disk form, a bare string
// like "Basic(I64)", the bare token "Structure", or just a type name,
// falling back to fallbackType when the inner token doesn't parse.
func ParseLegacyValidator(raw string, fallbackType ColumnDataType) *ColumnValidator {
	trimmed := trimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if trimmed == "Structure" {
		v := StructureValidator()
		return &v
	}
	if len(trimmed) > len("Basic()") && trimmed[:6] == "Basic(" && trimmed[len(trimmed)-1] == ')' {
		inner := trimmed[6 : len(trimmed)-1]
		if dt, ok := ParseColumnDataType(inner); ok {
			v := BasicValidator(dt)
			return &v
		}
		v := BasicValidator(fallbackType)
		return &v
	}
	if dt, ok := ParseColumnDataType(trimmed); ok {
		v := BasicValidator(dt)
		return &v
	}
	v := BasicValidator(fallbackType)
	return &v
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
