package budget

import (
	"context"
	"fmt"

	"github.com/hrdash/hrdash/internal/spreadsheet"
)

// masterRowLabel marks the master row in absorption exports. Import treats the
// first data row as the master whatever its period cell holds.
const masterRowLabel = "Master Budget"

// ExportTable renders the division ledger as one worksheet that Import reads
// back. Absorption exports lead with the master row.
func (s *Service) ExportTable(ctx context.Context, div Division) (spreadsheet.Table, error) {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return spreadsheet.Table{}, err
	}
	report, err := s.buildSummary(ctx, div)
	if err != nil {
		return spreadsheet.Table{}, err
	}
	if div.Style == StyleTermin {
		if len(report.Projects) == 0 {
			return spreadsheet.Table{}, ErrNothingToExport
		}
		return projectTable(div, report.Projects), nil
	}
	if len(report.Absorptions) == 0 {
		return spreadsheet.Table{}, ErrNothingToExport
	}
	return absorptionTable(div, report.Master, report.Absorptions), nil
}

func absorptionTable(div Division, master *MasterBudget, entries []AbsorptionEntry) spreadsheet.Table {
	table := spreadsheet.Table{
		Sheet:  sheetName(div),
		Header: []string{"Period", "Absorption Amount", "Remaining After", "Total Budget", "Status", "Remarks"},
	}
	if master != nil {
		table.Rows = append(table.Rows, []any{
			masterRowLabel, nil, master.CurrentRemaining, master.TotalBudget, master.Status, master.Remarks,
		})
	}
	for _, e := range entries {
		table.Rows = append(table.Rows, []any{e.Period, e.AbsorptionAmount, e.RemainingAfter, nil, nil, e.Remarks})
	}
	return table
}

func projectTable(div Division, entries []ProjectEntry) spreadsheet.Table {
	header := []string{"Project Name", "Total Budget"}
	for k := 1; k <= TerminCount; k++ {
		header = append(header, fmt.Sprintf("Termin %d", k))
	}
	header = append(header, "Total Actualization", "Budget Remaining", "Remarks")

	table := spreadsheet.Table{Sheet: sheetName(div), Header: header}
	for _, p := range entries {
		row := []any{p.ProjectName, p.TotalBudget}
		for _, v := range p.Termins() {
			row = append(row, v)
		}
		row = append(row, p.TotalActualization, p.BudgetRemaining, p.Remarks)
		table.Rows = append(table.Rows, row)
	}
	return table
}

// sheetName respects the 31 character worksheet name limit.
func sheetName(div Division) string {
	name := div.Name
	if name == "" {
		name = div.Slug
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}
