package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"ID", "Action", "Entity Type", "Entity ID", "Actor",
	"Compliance Mode", "Created At", "Metadata",
}

// ExportWorkbook writes entries to an xlsx workbook for compliance
// reviews. Entries are written in the order given, so callers pass the
// newest-first output of Recent or ProjectTrail straight through.
func ExportWorkbook(entries []Entry, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Audit Trail"
	f.SetSheetName("Sheet1", sheet)

	for col, name := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.ID,
			string(e.ActionType),
			e.EntityType,
			e.EntityID,
			e.Actor,
			e.ComplianceModeActive,
			e.CreatedAt.Format(time.RFC3339),
			metadataCell(e.Metadata),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func metadataCell(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
