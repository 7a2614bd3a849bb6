package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
	}
	return err
}

// LockDivision takes the transaction-scoped advisory lock of the division.
func (t *txRepository) LockDivision(ctx context.Context, div Division) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, div.LockKey())
	return err
}

// GetMasterForUpdate loads and row-locks the master budget.
func (t *txRepository) GetMasterForUpdate(ctx context.Context, div Division) (MasterBudget, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id LIMIT 1 FOR UPDATE`, masterColumns, ident(div.MasterTable()))
	return scanMaster(t.tx.QueryRow(ctx, query))
}

// InsertMaster creates the master budget row.
func (t *txRepository) InsertMaster(ctx context.Context, div Division, m MasterBudget) (MasterBudget, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			total_budget, current_remaining, total_allocated,
			total_termin1, total_termin2, total_termin3, total_termin4, total_termin5, total_termin6,
			total_actualization, total_budget_remaining, status, remarks, budget_set, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING %s`, ident(div.MasterTable()), masterColumns)
	return scanMaster(t.tx.QueryRow(ctx, query,
		m.TotalBudget, m.CurrentRemaining, m.TotalAllocated,
		m.TotalTermin1, m.TotalTermin2, m.TotalTermin3, m.TotalTermin4, m.TotalTermin5, m.TotalTermin6,
		m.TotalActualization, m.TotalBudgetRemaining, m.Status, m.Remarks, m.BudgetSet, m.CreatedAt, m.UpdatedAt,
	))
}

// UpdateMaster overwrites every mutable master column.
func (t *txRepository) UpdateMaster(ctx context.Context, div Division, m MasterBudget) (MasterBudget, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			total_budget = $2, current_remaining = $3, total_allocated = $4,
			total_termin1 = $5, total_termin2 = $6, total_termin3 = $7,
			total_termin4 = $8, total_termin5 = $9, total_termin6 = $10,
			total_actualization = $11, total_budget_remaining = $12,
			status = $13, remarks = $14, budget_set = $15, updated_at = $16
		WHERE id = $1
		RETURNING %s`, ident(div.MasterTable()), masterColumns)
	return scanMaster(t.tx.QueryRow(ctx, query, m.ID,
		m.TotalBudget, m.CurrentRemaining, m.TotalAllocated,
		m.TotalTermin1, m.TotalTermin2, m.TotalTermin3, m.TotalTermin4, m.TotalTermin5, m.TotalTermin6,
		m.TotalActualization, m.TotalBudgetRemaining, m.Status, m.Remarks, m.BudgetSet, m.UpdatedAt,
	))
}

// GetAbsorption loads one absorption entry by id.
func (t *txRepository) GetAbsorption(ctx context.Context, div Division, id int64) (AbsorptionEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, absorptionColumns, ident(div.AbsorptionTable()))
	return scanAbsorption(t.tx.QueryRow(ctx, query, id))
}

// GetAbsorptionByPeriod loads one absorption entry by period.
func (t *txRepository) GetAbsorptionByPeriod(ctx context.Context, div Division, period string) (AbsorptionEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE period = $1`, absorptionColumns, ident(div.AbsorptionTable()))
	return scanAbsorption(t.tx.QueryRow(ctx, query, period))
}

// InsertAbsorption inserts an absorption entry.
func (t *txRepository) InsertAbsorption(ctx context.Context, div Division, e AbsorptionEntry) (AbsorptionEntry, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (period, absorption_amount, remaining_after, remarks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, ident(div.AbsorptionTable()), absorptionColumns)
	entry, err := scanAbsorption(t.tx.QueryRow(ctx, query,
		e.Period, e.AbsorptionAmount, e.RemainingAfter, e.Remarks, e.CreatedAt, e.UpdatedAt))
	return entry, mapWriteErr(err)
}

// UpdateAbsorption overwrites the mutable columns of an absorption entry.
func (t *txRepository) UpdateAbsorption(ctx context.Context, div Division, e AbsorptionEntry) (AbsorptionEntry, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET absorption_amount = $2, remaining_after = $3, remarks = $4, updated_at = $5
		WHERE id = $1
		RETURNING %s`, ident(div.AbsorptionTable()), absorptionColumns)
	entry, err := scanAbsorption(t.tx.QueryRow(ctx, query,
		e.ID, e.AbsorptionAmount, e.RemainingAfter, e.Remarks, e.UpdatedAt))
	return entry, mapWriteErr(err)
}

// DeleteAbsorption removes an absorption entry.
func (t *txRepository) DeleteAbsorption(ctx context.Context, div Division, id int64) error {
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ident(div.AbsorptionTable())), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ShiftAbsorptions moves remaining_after of the entries ordered after anchor.
func (t *txRepository) ShiftAbsorptions(ctx context.Context, div Division, anchor *AbsorptionEntry, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	table := ident(div.AbsorptionTable())
	if anchor == nil {
		_, err := t.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET remaining_after = remaining_after + $1`, table), delta)
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET remaining_after = remaining_after + $1
		WHERE (created_at, id) > ($2::timestamptz, $3::bigint)`, table)
	_, err := t.tx.Exec(ctx, query, delta, anchor.CreatedAt, anchor.ID)
	return err
}

// GetProject loads one project entry by id.
func (t *txRepository) GetProject(ctx context.Context, div Division, id int64) (ProjectEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, projectColumns, ident(div.ProjectTable()))
	return scanProject(t.tx.QueryRow(ctx, query, id))
}

// GetProjectByName loads one project entry by name.
func (t *txRepository) GetProjectByName(ctx context.Context, div Division, name string) (ProjectEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE project_name = $1`, projectColumns, ident(div.ProjectTable()))
	return scanProject(t.tx.QueryRow(ctx, query, name))
}

// InsertProject inserts a project entry.
func (t *txRepository) InsertProject(ctx context.Context, div Division, p ProjectEntry) (ProjectEntry, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			project_name, total_budget, termin1, termin2, termin3, termin4, termin5, termin6,
			total_actualization, budget_remaining, remarks, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING %s`, ident(div.ProjectTable()), projectColumns)
	entry, err := scanProject(t.tx.QueryRow(ctx, query,
		p.ProjectName, p.TotalBudget, p.Termin1, p.Termin2, p.Termin3, p.Termin4, p.Termin5, p.Termin6,
		p.TotalActualization, p.BudgetRemaining, p.Remarks, p.CreatedAt, p.UpdatedAt,
	))
	return entry, mapWriteErr(err)
}

// UpdateProject overwrites the mutable columns of a project entry.
func (t *txRepository) UpdateProject(ctx context.Context, div Division, p ProjectEntry) (ProjectEntry, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			project_name = $2, total_budget = $3,
			termin1 = $4, termin2 = $5, termin3 = $6, termin4 = $7, termin5 = $8, termin6 = $9,
			total_actualization = $10, budget_remaining = $11, remarks = $12, updated_at = $13
		WHERE id = $1
		RETURNING %s`, ident(div.ProjectTable()), projectColumns)
	entry, err := scanProject(t.tx.QueryRow(ctx, query, p.ID,
		p.ProjectName, p.TotalBudget, p.Termin1, p.Termin2, p.Termin3, p.Termin4, p.Termin5, p.Termin6,
		p.TotalActualization, p.BudgetRemaining, p.Remarks, p.UpdatedAt,
	))
	return entry, mapWriteErr(err)
}

// DeleteProject removes a project entry.
func (t *txRepository) DeleteProject(ctx context.Context, div Division, id int64) error {
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ident(div.ProjectTable())), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// SumProjects sums every project column of the division.
func (t *txRepository) SumProjects(ctx context.Context, div Division) (ProjectTotals, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*),
			COALESCE(SUM(total_budget), 0),
			COALESCE(SUM(termin1), 0), COALESCE(SUM(termin2), 0), COALESCE(SUM(termin3), 0),
			COALESCE(SUM(termin4), 0), COALESCE(SUM(termin5), 0), COALESCE(SUM(termin6), 0),
			COALESCE(SUM(total_actualization), 0),
			COALESCE(SUM(budget_remaining), 0)
		FROM %s`, ident(div.ProjectTable()))
	var totals ProjectTotals
	err := t.tx.QueryRow(ctx, query).Scan(&totals.Count, &totals.TotalBudget,
		&totals.Termins[0], &totals.Termins[1], &totals.Termins[2],
		&totals.Termins[3], &totals.Termins[4], &totals.Termins[5],
		&totals.TotalActualization, &totals.BudgetRemaining)
	return totals, err
}

// InsertHistory appends a history row inside a savepoint, so a failed insert
// leaves the surrounding transaction usable.
func (t *txRepository) InsertHistory(ctx context.Context, div Division, rec HistoryRecord) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (entity_type, entity_id, field_changed, old_value, new_value, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, ident(div.HistoryTable()))
	if _, err := sp.Exec(ctx, query,
		string(rec.EntityType), rec.EntityID, rec.FieldChanged, rec.OldValue, rec.NewValue, rec.ChangedBy, rec.ChangedAt,
	); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
