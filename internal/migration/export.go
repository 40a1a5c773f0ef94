package migration

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

// ExportSheetToJSON reads one sheet through conn and writes it back
// out as a `<table>.json` grid file plus a `<table>.meta.json`
// metadata file under outputFolder, pretty-printed — the inverse of
// MigrateSheetFromJSON.
func ExportSheetToJSON(conn *sheetdb.Connection, daemon sheetdb.ExecBatcher, table, outputFolder string) error {
	sheetData, err := sheetdb.ReadSheet(conn, daemon, table)
	if err != nil {
		return err
	}
	if sheetData.Metadata == nil {
		return sheetdb.InvalidMetadata("no metadata found for %q", table)
	}

	if err := os.MkdirAll(outputFolder, 0o755); err != nil {
		return sheetdb.IOErr(err)
	}

	// Drop the technical-column cells so each grid row lines up with the
	// columns toMetadataJSON writes.
	keep := make([]int, 0, len(sheetData.Metadata.Columns))
	for i, c := range sheetData.Metadata.Columns {
		if !isTechnicalExportColumn(c.Header) {
			keep = append(keep, i)
		}
	}
	grid := make([][]string, len(sheetData.Grid))
	for r, row := range sheetData.Grid {
		grid[r] = make([]string, 0, len(keep))
		for _, i := range keep {
			grid[r] = append(grid[r], row[i])
		}
	}
	dataJSON, err := json.MarshalIndent(grid, "", "  ")
	if err != nil {
		return sheetdb.SerdeErr(table, err)
	}
	dataPath := filepath.Join(outputFolder, table+".json")
	if err := os.WriteFile(dataPath, dataJSON, 0o644); err != nil {
		return sheetdb.IOErr(err)
	}

	meta := toMetadataJSON(sheetData.Metadata)
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return sheetdb.SerdeErr(table, err)
	}
	metaPath := filepath.Join(outputFolder, table+".meta.json")
	if err := os.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return sheetdb.IOErr(err)
	}

	log.Info("exported sheet to JSON", "sheet", table)
	return nil
}

// toMetadataJSON converts the in-memory metadata back to the on-disk
// column/metadata shape consumed by LoadMetadata and legacy readers.
func toMetadataJSON(metadata *sheetdb.SheetMetadata) metadataJSON {
	category := metadata.Table.Category
	out := metadataJSON{
		SheetName: metadata.TableName,
		Category:  &category,
		Columns:   make([]columnJSON, 0, len(metadata.Columns)),
	}
	for _, c := range metadata.Columns {
		if isTechnicalExportColumn(c.Header) {
			continue
		}
		filter := c.Filter
		aiContext := c.AIContext
		aiEnableRowGen := c.AIEnableRowGeneration
		aiIncludeInSend := c.AIIncludeInSend
		cj := columnJSON{
			Header:                c.Header,
			Validator:             c.Validator,
			DataType:              c.DataType,
			Filter:                &filter,
			AIContext:             &aiContext,
			AIEnableRowGeneration: &aiEnableRowGen,
			AIIncludeInSend:       &aiIncludeInSend,
			Deleted:               c.Deleted,
		}
		if c.IsStructure() && len(c.StructureSchema) > 0 {
			cj.StructureSchema = make([]structureFieldJSON, len(c.StructureSchema))
			for i, f := range c.StructureSchema {
				cj.StructureSchema[i] = structureFieldJSON{Header: f.Header, DataType: f.DataType}
			}
			if c.StructureKeyParentColumnIndex >= 0 {
				idx := c.StructureKeyParentColumnIndex
				cj.StructureKeyParentColumnIndex = &idx
			}
		}
		out.Columns = append(out.Columns, cj)
	}
	return out
}

// isTechnicalExportColumn skips the row_index/ancestry columns the
// reader prepends onto every sheet's column list, since those are
// engine bookkeeping rather than user-defined schema.
func isTechnicalExportColumn(header string) bool {
	switch header {
	case "row_index", "parent_key":
		return true
	default:
		return false
	}
}
