package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hrdash/hrdash/internal/spreadsheet"
)

// Canonical import columns.
const (
	colPeriod           = "period"
	colAbsorptionAmount = "absorption_amount"
	colTotalBudget      = "total_budget"
	colCurrentRemaining = "current_remaining"
	colStatus           = "status"
	colRemarks          = "remarks"
	colProjectName      = "project_name"
)

// columnAliases lists the normalised headers accepted for each column, in
// lookup order.
var columnAliases = map[string][]string{
	colPeriod:           {"period", "periode", "bulan", "month"},
	colAbsorptionAmount: {"absorption_amount", "absorption", "penyerapan", "serapan", "jumlah_penyerapan", "nilai_penyerapan", "amount"},
	colTotalBudget:      {"total_budget", "budget", "total_anggaran", "anggaran", "nilai_anggaran", "pagu"},
	colCurrentRemaining: {"current_remaining", "sisa_anggaran", "sisa"},
	colStatus:           {"status"},
	colRemarks:          {"remarks", "remark", "notes", "keterangan", "catatan"},
	colProjectName:      {"project_name", "project", "nama_proyek", "proyek", "nama_project", "nama_pekerjaan"},
}

func terminColumn(k int) string { return fmt.Sprintf("termin%d", k) }

func init() {
	for k := 1; k <= TerminCount; k++ {
		columnAliases[terminColumn(k)] = []string{
			terminColumn(k),
			fmt.Sprintf("termin_%d", k),
			fmt.Sprintf("total_termin%d", k),
			fmt.Sprintf("total_termin_%d", k),
		}
	}
}

// cell returns the first non-blank value among the aliases of column.
func cell(row spreadsheet.Row, column string) string {
	return row.Get(cellKey(row, column))
}

// cellKey returns the first alias of column holding a non-blank value.
func cellKey(row spreadsheet.Row, column string) string {
	for _, alias := range columnAliases[column] {
		if row.Get(alias) != "" {
			return alias
		}
	}
	return ""
}

// amount parses an optional numeric column. Blank cells yield nil.
func amount(row spreadsheet.Row, column string) (*decimal.Decimal, error) {
	d, err := row.Number(cellKey(row, column))
	if errors.Is(err, spreadsheet.ErrEmptyNumber) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", column, err)
	}
	return &d, nil
}

func optionalText(row spreadsheet.Row, column string) *string {
	v := cell(row, column)
	if v == "" {
		return nil
	}
	return &v
}

// RowIssue explains why an import row was not applied.
type RowIssue struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult reports the outcome of one spreadsheet import.
type ImportResult struct {
	BatchID   uuid.UUID     `json:"batch_id"`
	Division  string        `json:"division"`
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Skipped   []RowIssue    `json:"skipped"`
	Failed    []RowIssue    `json:"failed"`
	Master    *MasterBudget `json:"master"`
}

func (r *ImportResult) skip(line int, reason string) {
	r.Skipped = append(r.Skipped, RowIssue{Row: line, Reason: reason})
}

func (r *ImportResult) fail(line int, err error) {
	r.Failed = append(r.Failed, RowIssue{Row: line, Reason: err.Error()})
}

func (r *ImportResult) applied(created bool) {
	r.Processed++
	if created {
		r.Created++
	} else {
		r.Updated++
	}
}

// Import applies parsed spreadsheet rows through the regular write paths, one
// transaction per row. For absorption divisions the first row carries the
// master budget. Rows lacking identity fields are skipped and rows the ledger
// rejects are reported as failed; neither stops the import.
func (s *Service) Import(ctx context.Context, div Division, rows []spreadsheet.Row, actor string) (ImportResult, error) {
	actor, err := validateActor(actor)
	if err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{
		BatchID:  uuid.New(),
		Division: div.Slug,
		Skipped:  []RowIssue{},
		Failed:   []RowIssue{},
	}
	logger := s.logger.With(slog.String("division", div.Slug), slog.String("batch_id", result.BatchID.String()))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch {
		case div.Style == StyleTermin:
			s.importProject(ctx, div, row, actor, &result)
		case i == 0:
			s.importMaster(ctx, div, row, actor, &result)
		default:
			s.importAbsorption(ctx, div, row, actor, &result)
		}
	}

	if result.Master, err = s.Master(ctx, div); err != nil {
		return result, err
	}
	if s.recorder != nil {
		s.recorder.ObserveImportRows(div.Slug, result.Processed, len(result.Skipped), len(result.Failed))
	}
	logger.Info("budget import finished",
		slog.Int("rows", len(rows)),
		slog.Int("processed", result.Processed),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *Service) importMaster(ctx context.Context, div Division, row spreadsheet.Row, actor string, result *ImportResult) {
	total, err := amount(row, colTotalBudget)
	if err != nil {
		result.fail(row.Line, err)
		return
	}
	if total == nil {
		result.skip(row.Line, "master row has no total_budget")
		return
	}
	remaining, err := amount(row, colCurrentRemaining)
	if err != nil {
		result.fail(row.Line, err)
		return
	}
	in := MasterInput{
		TotalBudget:      total,
		CurrentRemaining: remaining,
		Status:           cell(row, colStatus),
		Remarks:          optionalText(row, colRemarks),
	}
	if _, err := s.SaveMaster(ctx, div, in, actor); err != nil {
		result.fail(row.Line, err)
		return
	}
	result.Processed++
}

func (s *Service) importAbsorption(ctx context.Context, div Division, row spreadsheet.Row, actor string, result *ImportResult) {
	period := cell(row, colPeriod)
	value, err := amount(row, colAbsorptionAmount)
	if err != nil {
		result.fail(row.Line, err)
		return
	}
	if period == "" || value == nil {
		result.skip(row.Line, "period and absorption_amount are required")
		return
	}
	in := AbsorptionInput{Period: period, AbsorptionAmount: value, Remarks: optionalText(row, colRemarks)}
	saved, err := s.SaveAbsorption(ctx, div, in, actor)
	if err != nil {
		result.fail(row.Line, err)
		return
	}
	result.applied(saved.Created)
}

func (s *Service) importProject(ctx context.Context, div Division, row spreadsheet.Row, actor string, result *ImportResult) {
	name := cell(row, colProjectName)
	total, err := amount(row, colTotalBudget)
	if err != nil {
		result.fail(row.Line, err)
		return
	}
	if name == "" || total == nil {
		result.skip(row.Line, "project_name and total_budget are required")
		return
	}
	in := ProjectInput{ProjectName: name, TotalBudget: total, Remarks: optionalText(row, colRemarks)}
	termins := []**decimal.Decimal{&in.Termin1, &in.Termin2, &in.Termin3, &in.Termin4, &in.Termin5, &in.Termin6}
	for k, dst := range termins {
		v, err := amount(row, terminColumn(k+1))
		if err != nil {
			result.fail(row.Line, err)
			return
		}
		*dst = v
	}
	saved, err := s.SaveProject(ctx, div, in, actor)
	if err != nil {
		result.fail(row.Line, err)
		return
	}
	result.applied(saved.Created)
}
