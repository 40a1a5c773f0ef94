package sheetdb

import "strings"

// ColumnDataType is one of the four canonical scalar storage types.
type ColumnDataType int

const (
	TypeString ColumnDataType = iota
	TypeBool
	TypeI64
	TypeF64
)

func (t ColumnDataType) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeBool:
		return "Bool"
	case TypeI64:
		return "I64"
	case TypeF64:
		return "F64"
	default:
		return "String"
	}
}

// ParseColumnDataType accepts the canonical tokens plus every legacy
// alias the original format ever emitted: case variants, Int/Float
// aliases, Option<X>/OptionX wrappers, and legacy integer/float widths
// that collapse onto I64/F64.
func ParseColumnDataType(s string) (ColumnDataType, bool) {
	t := strings.ToLower(s)
	if strings.HasPrefix(t, "option<") && strings.HasSuffix(t, ">") {
		t = "option" + t[len("option<"):len(t)-1]
	}
	switch t {
	case "String", "string", "OptionString", "optionstring", "Option<String>":
		return TypeString, true
	case "Bool", "bool", "OptionBool", "optionbool", "Option<Bool>":
		return TypeBool, true
	case "I64", "i64", "Int", "int", "OptionI64", "optioni64", "optionint", "Option<Int>", "Option<int>":
		return TypeI64, true
	case "F64", "f64", "Float", "float", "OptionF64", "optionf64", "optionfloat", "Option<Float>", "Option<float>":
		return TypeF64, true
	case "U8", "u8", "U16", "u16", "U32", "u32", "U64", "u64",
		"I8", "i8", "I16", "i16", "I32", "i32":
		return TypeI64, true
	case "OptionU8", "optionu8", "OptionU16", "optionu16", "OptionU32", "optionu32",
		"OptionU64", "optionu64", "OptionI8", "optioni8", "OptionI16", "optioni16",
		"OptionI32", "optioni32":
		return TypeI64, true
	case "F32", "f32", "OptionF32", "optionf32":
		return TypeF64, true
	default:
		return TypeString, false
	}
}

// SQLType returns the physical storage type for the data table.
func (t ColumnDataType) SQLType() string {
	switch t {
	case TypeBool, TypeI64:
		return "INTEGER"
	case TypeF64:
		return "REAL"
	default:
		return "TEXT"
	}
}

// InferColumnDataType maps a PRAGMA table_info declared type back to a
// ColumnDataType, used when recovering orphan columns.
func InferColumnDataType(sqlDeclType string) ColumnDataType {
	switch sqlDeclType {
	case "INTEGER":
		return TypeI64
	case "REAL":
		return TypeF64
	default:
		return TypeString
	}
}

// ValidatorKind tags the three ColumnValidator variants.
type ValidatorKind int

const (
	ValidatorBasic ValidatorKind = iota
	ValidatorLinked
	ValidatorStructure
)

// ColumnValidator is a tagged union: Basic(type), Linked{target},
// or Structure. Only one of the fields is meaningful per Kind.
type ColumnValidator struct {
	Kind               ValidatorKind
	BasicType          ColumnDataType
	TargetSheetName    string
	TargetColumnIndex  int
}

func BasicValidator(t ColumnDataType) ColumnValidator {
	return ColumnValidator{Kind: ValidatorBasic, BasicType: t}
}

func LinkedValidator(targetSheet string, targetCol int) ColumnValidator {
	return ColumnValidator{Kind: ValidatorLinked, TargetSheetName: targetSheet, TargetColumnIndex: targetCol}
}

func StructureValidator() ColumnValidator {
	return ColumnValidator{Kind: ValidatorStructure}
}

func (v ColumnValidator) String() string {
	switch v.Kind {
	case ValidatorBasic:
		return "Basic(" + v.BasicType.String() + ")"
	case ValidatorLinked:
		return "Linked{target_sheet_name: " + v.TargetSheetName + "}"
	default:
		return "Structure"
	}
}

// StructureFieldDefinition describes one column of a structure child
// sheet, as hydrated onto the parent column at read time.
type StructureFieldDefinition struct {
	Header   string
	DataType ColumnDataType
}

// Column is a typed, ordered position in a sheet.
type Column struct {
	Index                 int
	Header                string
	DataType              ColumnDataType
	Validator             *ColumnValidator
	Filter                string
	AIContext             string
	AIEnableRowGeneration bool
	AIIncludeInSend       bool
	Deleted               bool
	Hidden                bool
	DisplayName           string

	// Structure-only, populated lazily on read, never persisted on the
	// parent's own metadata row.
	StructureSchema               []StructureFieldDefinition
	StructureKeyParentColumnIndex int
}

func (c *Column) IsStructure() bool {
	return c.Validator != nil && c.Validator.Kind == ValidatorStructure
}

// TableMetadata is a row of the global `_Metadata` catalog.
type TableMetadata struct {
	TableName                string
	TableType                string // "main" or "structure"
	ParentTable               string
	ParentColumn              string
	AIAllowAddRows            bool
	AITableContext            string
	AIGroundingWithGoogleSearch bool
	AIModelID                 string
	AIActiveGroup             string
	DisplayOrder              int
	Category                  string
	Hidden                    bool
}

// SheetMetadata is the in-memory description of one sheet's columns
// plus its table-level settings.
type SheetMetadata struct {
	TableName string
	Columns   []Column
	Table     TableMetadata
	IsStructure bool
}

// SheetGridData is what Reader produces for one sheet: metadata, the
// full grid of string cells (newest row first), and the parallel
// row_index list.
type SheetGridData struct {
	Metadata   *SheetMetadata
	Grid       [][]string
	RowIndices []int64
}
