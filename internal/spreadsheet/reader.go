package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnreadable is returned when the upload is not an .xlsx workbook.
	ErrUnreadable = errors.New("spreadsheet: file is not a readable .xlsx workbook")
	// ErrNoHeader is returned when the first worksheet holds no header row.
	ErrNoHeader = errors.New("spreadsheet: worksheet has no header row")
)

// Row is one data row keyed by normalised header.
type Row struct {
	// Line is the 1-based row number in the worksheet.
	Line   int
	Values map[string]string
	// Numeric marks the keys whose cell is stored as a number. Their value is
	// the raw cell text and carries no grouping separators.
	Numeric map[string]bool
}

// Get returns the trimmed cell value under key.
func (r Row) Get(key string) string {
	return strings.TrimSpace(r.Values[key])
}

// Number parses the cell under key. Numeric cells are read verbatim; text
// cells go through ParseNumber.
func (r Row) Number(key string) (decimal.Decimal, error) {
	raw := r.Get(key)
	if raw != "" && r.Numeric[key] {
		if d, err := decimal.NewFromString(raw); err == nil {
			return d, nil
		}
	}
	return ParseNumber(raw)
}

// Read parses the first worksheet of an .xlsx workbook. The first non-empty
// row is the header; blank rows after it are dropped.
func Read(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	sheet := sheets[0]
	grid, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	headerAt := -1
	for i, cells := range grid {
		if !blank(cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrNoHeader
	}
	keys := make([]string, len(grid[headerAt]))
	seen := make(map[string]bool)
	for i, label := range grid[headerAt] {
		key := NormalizeHeader(label)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys[i] = key
	}

	var rows []Row
	for i := headerAt + 1; i < len(grid); i++ {
		cells := grid[i]
		if blank(cells) {
			continue
		}
		row := Row{Line: i + 1, Values: make(map[string]string, len(keys)), Numeric: make(map[string]bool)}
		for col, key := range keys {
			if key == "" || col >= len(cells) {
				continue
			}
			row.Values[key] = cells[col]
			if strings.TrimSpace(cells[col]) == "" {
				continue
			}
			numeric, err := numericCell(f, sheet, col+1, i+1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
			}
			row.Numeric[key] = numeric
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// numericCell reports whether the non-empty cell at col,row is stored as a
// number. Number cells carry no type attribute or "n".
func numericCell(f *excelize.File, sheet string, col, row int) (bool, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return false, err
	}
	cellType, err := f.GetCellType(sheet, name)
	if err != nil {
		return false, err
	}
	return cellType == excelize.CellTypeNumber || cellType == excelize.CellTypeUnset, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
