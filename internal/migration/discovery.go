// Package migration implements the JSON-to-SQL import pipeline: it
// discovers `<sheet>.json` + `<sheet>.meta.json` pairs on disk, orders
// them so linked sheets migrate after the sheets they reference, and
// runs each sheet through a single per-sheet transaction against the
// engine's schema and writer layers.
package migration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sheetengine/sheetengine/internal/logging"
	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

var log = logging.GetLogger("migration")

// SheetPair names one discovered JSON data/metadata pair plus the
// sheet names it depends on (via Linked-validator columns).
type SheetPair struct {
	Name         string
	DataPath     string
	MetaPath     string
	Dependencies []string
	Category     string
}

// columnJSON mirrors the on-disk column definition shape: snake_case
// field names matching the JSON every prior version of this format
// emitted, so legacy exports import unchanged.
type columnJSON struct {
	Header                        string                       `json:"header"`
	Validator                     *sheetdb.ColumnValidator     `json:"validator"`
	DataType                      sheetdb.ColumnDataType       `json:"data_type"`
	Filter                        *string                      `json:"filter"`
	AIContext                     *string                      `json:"ai_context"`
	AIEnableRowGeneration         *bool                         `json:"ai_enable_row_generation"`
	AIIncludeInSend               *bool                         `json:"ai_include_in_send"`
	Deleted                       bool                          `json:"deleted"`
	StructureSchema               []structureFieldJSON         `json:"structure_schema"`
	StructureKeyParentColumnIndex *int                          `json:"structure_key_parent_column_index"`
}

// structureFieldJSON mirrors one entry of a structure column's nested
// schema. Only header and data_type are read; a nested validator on a
// field (grandchild structure columns) is ignored, so the importer
// materializes one level of structure tables per migrated sheet.
type structureFieldJSON struct {
	Header   string                 `json:"header"`
	DataType sheetdb.ColumnDataType `json:"data_type"`
}

// metadataJSON mirrors the on-disk `<sheet>.meta.json` shape.
type metadataJSON struct {
	SheetName string       `json:"sheet_name"`
	Category  *string      `json:"category"`
	Columns   []columnJSON `json:"columns"`
}

// legacyMetadataJSON mirrors the pre-columns-array on-disk shape: one
// parallel array per column attribute instead of one object per
// column. A file is recognized as legacy by the presence of
// column_headers at the top level.
type legacyMetadataJSON struct {
	SheetName        *string   `json:"sheet_name"`
	Category         *string   `json:"category"`
	ColumnHeaders    []string  `json:"column_headers"`
	ColumnTypes      []string  `json:"column_types"`
	ColumnValidators []string  `json:"column_validators"`
	ColumnFilters    []*string `json:"column_filters"`
	AITemperature    *float64  `json:"ai_temperature"`
	AITopK           *int      `json:"ai_top_k"`
	AITopP           *float64  `json:"ai_top_p"`
}

// legacyTemperatureDefaults are the deprecated sampling values the
// original importer shipped as defaults. A legacy file's ai_temperature
// matching one is stale default noise, not a deliberate per-sheet
// override, so it normalizes to nil on import.
var legacyTemperatureDefaults = [2]float64{0.9, 1.0}

// normalizeLegacyAITemperature nils out ai_temperature values matching
// a known legacy default; anything else passes through unchanged.
func normalizeLegacyAITemperature(t *float64) *float64 {
	if t == nil {
		return nil
	}
	for _, d := range legacyTemperatureDefaults {
		if math.Abs(*t-d) < 1e-6 {
			return nil
		}
	}
	return t
}

// ScanJSONFolder enumerates every `<name>.json` file in folderPath
// that has a sibling `<name>.meta.json`, skipping `*.meta.json` files
// themselves, and extracts each sheet's Linked-column dependencies.
func ScanJSONFolder(folderPath string) (map[string]*SheetPair, error) {
	info, err := os.Stat(folderPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sheetdb.IOErr(err)
		}
		return nil, sheetdb.IOErr(err)
	}
	if !info.IsDir() {
		return nil, sheetdb.IOErr(os.ErrInvalid)
	}

	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, sheetdb.IOErr(err)
	}

	sheets := make(map[string]*SheetPair)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".meta.json") {
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		sheetName := strings.TrimSuffix(name, ".json")
		dataPath := filepath.Join(folderPath, name)
		metaPath := filepath.Join(folderPath, sheetName+".meta.json")

		if _, err := os.Stat(metaPath); err != nil {
			continue
		}

		meta, err := LoadMetadata(metaPath)
		if err != nil {
			return nil, err
		}

		sheets[sheetName] = &SheetPair{
			Name:         sheetName,
			DataPath:     dataPath,
			MetaPath:     metaPath,
			Dependencies: findLinkedSheets(meta),
			Category:     meta.Table.Category,
		}
	}
	return sheets, nil
}

// LoadMetadata reads and parses one `<sheet>.meta.json` file into the
// engine's in-memory SheetMetadata shape. Both the current
// object-per-column format and the legacy parallel-array format are
// accepted, and a leading UTF-8 byte-order mark is tolerated.
func LoadMetadata(metaPath string) (*sheetdb.SheetMetadata, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, sheetdb.IOErr(err)
	}
	data = stripBOM(data)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, sheetdb.InvalidMetadata("%s: %v", metaPath, err)
	}
	if _, legacy := probe["column_headers"]; legacy {
		var raw legacyMetadataJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, sheetdb.InvalidMetadata("%s: %v", metaPath, err)
		}
		return raw.toSheetMetadata(metaPath), nil
	}

	var raw metadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, sheetdb.InvalidMetadata("%s: %v", metaPath, err)
	}
	return raw.toSheetMetadata(), nil
}

// stripBOM removes a leading UTF-8 byte-order mark, which
// encoding/json does not skip on its own.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// LoadGridData reads and parses one `<sheet>.json` data file into a
// grid of string cells.
func LoadGridData(dataPath string) ([][]string, error) {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, sheetdb.IOErr(err)
	}
	var grid [][]string
	if err := json.Unmarshal(data, &grid); err != nil {
		return nil, sheetdb.SerdeErr(dataPath, err)
	}
	return grid, nil
}

func (m metadataJSON) toSheetMetadata() *sheetdb.SheetMetadata {
	category := ""
	if m.Category != nil {
		category = *m.Category
	}
	cols := make([]sheetdb.Column, len(m.Columns))
	for i, c := range m.Columns {
		col := sheetdb.Column{
			Index:    i,
			Header:   c.Header,
			DataType: c.DataType,
			Validator: c.Validator,
			Deleted:  c.Deleted,
		}
		if c.Filter != nil {
			col.Filter = *c.Filter
		}
		if c.AIContext != nil {
			col.AIContext = *c.AIContext
		}
		if c.AIEnableRowGeneration != nil {
			col.AIEnableRowGeneration = *c.AIEnableRowGeneration
		} else {
			col.AIEnableRowGeneration = false
		}
		if c.AIIncludeInSend != nil {
			col.AIIncludeInSend = *c.AIIncludeInSend
		} else {
			col.AIIncludeInSend = true
		}
		col.StructureKeyParentColumnIndex = -1
		if c.StructureKeyParentColumnIndex != nil {
			col.StructureKeyParentColumnIndex = *c.StructureKeyParentColumnIndex
		}
		if len(c.StructureSchema) > 0 {
			fields := make([]sheetdb.StructureFieldDefinition, len(c.StructureSchema))
			for j, f := range c.StructureSchema {
				fields[j] = sheetdb.StructureFieldDefinition{Header: f.Header, DataType: f.DataType}
			}
			col.StructureSchema = fields
		}
		cols[i] = col
	}
	return &sheetdb.SheetMetadata{
		TableName: m.SheetName,
		Columns:   cols,
		Table:     sheetdb.TableMetadata{TableName: m.SheetName, TableType: "main", Category: category},
	}
}

// toSheetMetadata zips the legacy parallel arrays into columns by
// index, defaulting a missing header to "Column N" and a missing type
// to String, and normalizes the deprecated ai_temperature knob.
func (l legacyMetadataJSON) toSheetMetadata(metaPath string) *sheetdb.SheetMetadata {
	sheetName := "Unnamed"
	if l.SheetName != nil {
		sheetName = *l.SheetName
	}
	category := ""
	if l.Category != nil {
		category = *l.Category
	}

	cols := make([]sheetdb.Column, len(l.ColumnHeaders))
	for i := range l.ColumnHeaders {
		header := l.ColumnHeaders[i]
		if header == "" {
			header = fmt.Sprintf("Column %d", i+1)
		}
		typeStr := "String"
		if i < len(l.ColumnTypes) && l.ColumnTypes[i] != "" {
			typeStr = l.ColumnTypes[i]
		}
		dataType, ok := sheetdb.ParseColumnDataType(typeStr)
		if !ok {
			dataType = sheetdb.TypeString
		}

		validator := sheetdb.BasicValidator(dataType)
		if i < len(l.ColumnValidators) {
			if v := sheetdb.ParseLegacyValidator(l.ColumnValidators[i], dataType); v != nil {
				validator = *v
			}
		}

		col := sheetdb.Column{
			Index:                         i,
			Header:                        header,
			DataType:                      dataType,
			Validator:                     &validator,
			AIIncludeInSend:               true,
			StructureKeyParentColumnIndex: -1,
		}
		if i < len(l.ColumnFilters) && l.ColumnFilters[i] != nil {
			col.Filter = *l.ColumnFilters[i]
		}
		cols[i] = col
	}

	temp := normalizeLegacyAITemperature(l.AITemperature)
	log.Debug("parsed legacy metadata format", "path", metaPath, "sheet", sheetName, "columns", len(cols),
		"ai_temperature_normalized", l.AITemperature != nil && temp == nil)

	return &sheetdb.SheetMetadata{
		TableName: sheetName,
		Columns:   cols,
		Table:     sheetdb.TableMetadata{TableName: sheetName, TableType: "main", Category: category},
	}
}

// findLinkedSheets collects the distinct target sheet names of every
// Linked-validator column in metadata.
func findLinkedSheets(metadata *sheetdb.SheetMetadata) []string {
	seen := map[string]bool{}
	var linked []string
	for _, c := range metadata.Columns {
		if c.Validator != nil && c.Validator.Kind == sheetdb.ValidatorLinked {
			if !seen[c.Validator.TargetSheetName] {
				seen[c.Validator.TargetSheetName] = true
				linked = append(linked, c.Validator.TargetSheetName)
			}
		}
	}
	return linked
}
