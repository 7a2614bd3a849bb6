package spreadsheet

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of .xlsx workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Table is one worksheet to write.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]any
}

// WriteFile renders tables into a workbook saved at path.
func WriteFile(path string, tables ...Table) error {
	f, err := build(tables)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.SaveAs(path)
}

// Write renders tables into a workbook streamed to w.
func Write(w io.Writer, tables ...Table) error {
	f, err := build(tables)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Write(w)
}

func build(tables []Table) (*excelize.File, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("spreadsheet: no tables to write")
	}
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, t := range tables {
		if err := writeTable(f, i, t, bold); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("spreadsheet: sheet %q: %w", t.Sheet, err)
		}
	}
	return f, nil
}

func writeTable(f *excelize.File, index int, t Table, headerStyle int) error {
	name := t.Sheet
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	if index == 0 {
		if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
			return err
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return err
	}

	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(name, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, row := range t.Rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &cells); err != nil {
			return err
		}
	}
	if len(t.Header) > 0 {
		last, err := excelize.ColumnNumberToName(len(t.Header))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(name, "A", last, 20); err != nil {
			return err
		}
	}
	return nil
}

func cellValue(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.InexactFloat64()
	case *decimal.Decimal:
		if val == nil {
			return nil
		}
		return val.InexactFloat64()
	default:
		return v
	}
}
