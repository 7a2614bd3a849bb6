package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hrdash/hrdash/internal/platform/db"
)

// Reader exposes the plain read queries of a division ledger.
type Reader interface {
	GetMaster(ctx context.Context, div Division) (MasterBudget, error)
	ListAbsorptions(ctx context.Context, div Division, filter ListFilter) ([]AbsorptionEntry, int, error)
	ListProjects(ctx context.Context, div Division, filter ListFilter) ([]ProjectEntry, int, error)
}

// Repository defines persistence for division ledgers.
type Repository interface {
	Reader

	EnsureSchema(ctx context.Context, div Division) error
	ListHistory(ctx context.Context, div Division, limit int) ([]HistoryRecord, error)
	FilterOptions(ctx context.Context, div Division) ([]string, error)

	// WithTx runs fn in a read-committed write transaction.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// Snapshot runs fn against one repeatable-read snapshot.
	Snapshot(ctx context.Context, fn func(context.Context, Reader) error) error
}

// TxRepository exposes transactional write operations. Every method runs in
// the caller's transaction.
type TxRepository interface {
	LockDivision(ctx context.Context, div Division) error
	GetMasterForUpdate(ctx context.Context, div Division) (MasterBudget, error)
	InsertMaster(ctx context.Context, div Division, m MasterBudget) (MasterBudget, error)
	UpdateMaster(ctx context.Context, div Division, m MasterBudget) (MasterBudget, error)

	GetAbsorption(ctx context.Context, div Division, id int64) (AbsorptionEntry, error)
	GetAbsorptionByPeriod(ctx context.Context, div Division, period string) (AbsorptionEntry, error)
	InsertAbsorption(ctx context.Context, div Division, e AbsorptionEntry) (AbsorptionEntry, error)
	UpdateAbsorption(ctx context.Context, div Division, e AbsorptionEntry) (AbsorptionEntry, error)
	DeleteAbsorption(ctx context.Context, div Division, id int64) error
	// ShiftAbsorptions adds delta to remaining_after of every entry ordered
	// after anchor, or of every entry when anchor is nil.
	ShiftAbsorptions(ctx context.Context, div Division, anchor *AbsorptionEntry, delta decimal.Decimal) error

	GetProject(ctx context.Context, div Division, id int64) (ProjectEntry, error)
	GetProjectByName(ctx context.Context, div Division, name string) (ProjectEntry, error)
	InsertProject(ctx context.Context, div Division, p ProjectEntry) (ProjectEntry, error)
	UpdateProject(ctx context.Context, div Division, p ProjectEntry) (ProjectEntry, error)
	DeleteProject(ctx context.Context, div Division, id int64) error
	SumProjects(ctx context.Context, div Division) (ProjectTotals, error)

	InsertHistory(ctx context.Context, div Division, rec HistoryRecord) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
	queries
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, queries: queries{db: pool}}
}

// queries holds the read statements shared by the pool and snapshot paths.
type queries struct {
	db querier
}

// txRepository implements TxRepository.
type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction. Ledger writes
// serialise on an advisory lock, so each statement must see rows committed
// while the lock was awaited.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Snapshot wraps callback in a read-only repeatable-read transaction.
func (r *repository) Snapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	return db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, queries{db: tx})
	})
}

// EnsureSchema creates the division tables when missing.
func (r *repository) EnsureSchema(ctx context.Context, div Division) error {
	for _, stmt := range schemaStatements(div) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("budget: ensure schema %s: %w", div.Slug, err)
		}
	}
	return nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

const (
	masterColumns = `id, total_budget, current_remaining, total_allocated,
		total_termin1, total_termin2, total_termin3, total_termin4, total_termin5, total_termin6,
		total_actualization, total_budget_remaining, status, remarks, budget_set, created_at, updated_at`
	absorptionColumns = `id, period, absorption_amount, remaining_after, remarks, created_at, updated_at`
	projectColumns    = `id, project_name, total_budget, termin1, termin2, termin3, termin4, termin5, termin6,
		total_actualization, budget_remaining, remarks, created_at, updated_at`
	historyColumns = `id, entity_type, entity_id, field_changed, old_value, new_value, changed_by, changed_at`
)

func scanMaster(row pgx.Row) (MasterBudget, error) {
	var m MasterBudget
	err := row.Scan(&m.ID, &m.TotalBudget, &m.CurrentRemaining, &m.TotalAllocated,
		&m.TotalTermin1, &m.TotalTermin2, &m.TotalTermin3, &m.TotalTermin4, &m.TotalTermin5, &m.TotalTermin6,
		&m.TotalActualization, &m.TotalBudgetRemaining, &m.Status, &m.Remarks, &m.BudgetSet, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MasterBudget{}, ErrMasterNotFound
	}
	return m, err
}

func scanAbsorption(row pgx.Row) (AbsorptionEntry, error) {
	var e AbsorptionEntry
	err := row.Scan(&e.ID, &e.Period, &e.AbsorptionAmount, &e.RemainingAfter, &e.Remarks, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AbsorptionEntry{}, ErrEntryNotFound
	}
	return e, err
}

func scanProject(row pgx.Row) (ProjectEntry, error) {
	var p ProjectEntry
	err := row.Scan(&p.ID, &p.ProjectName, &p.TotalBudget,
		&p.Termin1, &p.Termin2, &p.Termin3, &p.Termin4, &p.Termin5, &p.Termin6,
		&p.TotalActualization, &p.BudgetRemaining, &p.Remarks, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProjectEntry{}, ErrEntryNotFound
	}
	return p, err
}

func scanHistory(row pgx.Row) (HistoryRecord, error) {
	var h HistoryRecord
	err := row.Scan(&h.ID, &h.EntityType, &h.EntityID, &h.FieldChanged, &h.OldValue, &h.NewValue, &h.ChangedBy, &h.ChangedAt)
	return h, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchClause returns a WHERE clause matching column case-insensitively.
func searchClause(column, search string, args []any) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", args
	}
	args = append(args, "%"+likeEscaper.Replace(search)+"%")
	return fmt.Sprintf(" WHERE %s ILIKE $%d", column, len(args)), args
}

func pageArgs(filter ListFilter, args []any) (string, []any) {
	var limit *int
	if filter.Limit > 0 {
		l := filter.Limit
		limit = &l
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

// GetMaster loads the master row of a division.
func (q queries) GetMaster(ctx context.Context, div Division) (MasterBudget, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id LIMIT 1`, masterColumns, ident(div.MasterTable()))
	return scanMaster(q.db.QueryRow(ctx, query))
}

// ListAbsorptions returns absorption entries in ledger order and the total
// number of matching rows.
func (q queries) ListAbsorptions(ctx context.Context, div Division, filter ListFilter) ([]AbsorptionEntry, int, error) {
	table := ident(div.AbsorptionTable())
	where, args := searchClause("period", filter.Search, nil)

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := pageArgs(filter, args)
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at, id%s`, absorptionColumns, table, where, page)
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AbsorptionEntry, error) {
		return scanAbsorption(row)
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListProjects returns project entries in insertion order and the total number of matching
// rows.
func (q queries) ListProjects(ctx context.Context, div Division, filter ListFilter) ([]ProjectEntry, int, error) {
	table := ident(div.ProjectTable())
	where, args := searchClause("project_name", filter.Search, nil)

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := pageArgs(filter, args)
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at, id%s`, projectColumns, table, where, page)
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProjectEntry, error) {
		return scanProject(row)
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListHistory returns history rows newest first. A non-positive limit returns
// every row.
func (r *repository) ListHistory(ctx context.Context, div Division, limit int) ([]HistoryRecord, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY changed_at DESC, id DESC LIMIT $1`, historyColumns, ident(div.HistoryTable()))
	rows, err := r.pool.Query(ctx, query, limitArg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (HistoryRecord, error) {
		return scanHistory(row)
	})
}

// FilterOptions returns the distinct periods or project names of a division.
func (r *repository) FilterOptions(ctx context.Context, div Division) ([]string, error) {
	column := "period"
	if div.Style == StyleTermin {
		column = "project_name"
	}
	query := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s <> '' ORDER BY %[1]s`, column, ident(div.EntryTable()))
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
