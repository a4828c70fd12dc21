package exporter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// BuildWorkbook renders sheets into one xlsx document, one worksheet each,
// in the given order. Text cells that hold numbers are written as numbers.
func BuildWorkbook(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return nil, fmt.Errorf("rename sheet %s: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet.Name, err)
		}

		if err := writeSheet(f, sheet); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	header := make([]interface{}, len(sheet.Header))
	for i, h := range sheet.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
		return fmt.Errorf("write header of %s: %w", sheet.Name, err)
	}

	for r, row := range sheet.Rows {
		values := make([]interface{}, len(row))
		for i, cell := range row {
			values[i] = workbookCell(cell)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
			return fmt.Errorf("write row %d of %s: %w", r+1, sheet.Name, err)
		}
	}

	if err := f.SetPanes(sheet.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header of %s: %w", sheet.Name, err)
	}
	return nil
}

func workbookCell(cell interface{}) interface{} {
	switch v := cell.(type) {
	case float64:
		return cellValue(v)
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && v != "" {
			return cellValue(n)
		}
		return v
	default:
		return v
	}
}
