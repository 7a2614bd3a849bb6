// Package budgettest provides an in-memory budget repository for tests.
package budgettest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hrdash/hrdash/internal/budget"
)

// Ledger is the stored state of one division.
type Ledger struct {
	Master      *budget.MasterBudget
	Absorptions []budget.AbsorptionEntry
	Projects    []budget.ProjectEntry
	History     []budget.HistoryRecord

	nextID int64
}

func (l *Ledger) id() int64 {
	l.nextID++
	return l.nextID
}

func (l *Ledger) clone() *Ledger {
	out := &Ledger{
		Absorptions: slices.Clone(l.Absorptions),
		Projects:    slices.Clone(l.Projects),
		History:     slices.Clone(l.History),
		nextID:      l.nextID,
	}
	if l.Master != nil {
		m := *l.Master
		out.Master = &m
	}
	return out
}

// Memory implements budget.Repository in memory. Write transactions are
// serialised and applied only when the callback succeeds.
type Memory struct {
	mu       sync.Mutex
	ledgers  map[string]*Ledger
	failures map[string]error

	txCount     int
	commits     int
	schemaCalls int
}

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{
		ledgers:  make(map[string]*Ledger),
		failures: make(map[string]error),
	}
}

// FailWith makes every later call of the named method return err. A nil err
// clears the failure.
func (m *Memory) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// TxCount reports how many write transactions were started.
func (m *Memory) TxCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCount
}

// Commits reports how many write transactions committed.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// SchemaCalls reports how many times EnsureSchema ran.
func (m *Memory) SchemaCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schemaCalls
}

// Ledger returns a copy of the stored state of a division.
func (m *Memory) Ledger(div budget.Division) Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.ledger(div.Slug).clone()
}

// Update edits the stored state directly, bypassing the ledger rules.
func (m *Memory) Update(div budget.Division, fn func(*Ledger)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.ledger(div.Slug))
}

func (m *Memory) ledger(slug string) *Ledger {
	l, ok := m.ledgers[slug]
	if !ok {
		l = &Ledger{}
		m.ledgers[slug] = l
	}
	return l
}

func (m *Memory) fail(method string) error {
	return m.failures[method]
}

// EnsureSchema records the call.
func (m *Memory) EnsureSchema(_ context.Context, _ budget.Division) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("EnsureSchema"); err != nil {
		return err
	}
	m.schemaCalls++
	return nil
}

// GetMaster returns the master row.
func (m *Memory) GetMaster(_ context.Context, div budget.Division) (budget.MasterBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.ledger(div.Slug)}.master()
}

// ListAbsorptions returns absorption entries in ledger order.
func (m *Memory) ListAbsorptions(_ context.Context, div budget.Division, filter budget.ListFilter) ([]budget.AbsorptionEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListAbsorptions"); err != nil {
		return nil, 0, err
	}
	entries, total := view{m.ledger(div.Slug)}.absorptions(filter)
	return entries, total, nil
}

// ListProjects returns project entries in insertion order.
func (m *Memory) ListProjects(_ context.Context, div budget.Division, filter budget.ListFilter) ([]budget.ProjectEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListProjects"); err != nil {
		return nil, 0, err
	}
	entries, total := view{m.ledger(div.Slug)}.projects(filter)
	return entries, total, nil
}

// ListHistory returns history rows newest first.
func (m *Memory) ListHistory(_ context.Context, div budget.Division, limit int) ([]budget.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := slices.Clone(m.ledger(div.Slug).History)
	slices.SortStableFunc(history, func(a, b budget.HistoryRecord) int {
		if c := b.ChangedAt.Compare(a.ChangedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// FilterOptions returns the sorted distinct periods or project names.
func (m *Memory) FilterOptions(_ context.Context, div budget.Division) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.ledger(div.Slug)
	var out []string
	if div.Style == budget.StyleTermin {
		for _, p := range l.Projects {
			out = append(out, p.ProjectName)
		}
	} else {
		for _, e := range l.Absorptions {
			out = append(out, e.Period)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// WithTx runs fn against a copy of the stored state and keeps the copy only
// when fn succeeds.
func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, budget.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	if err := m.fail("WithTx"); err != nil {
		return err
	}
	tx := &memoryTx{repo: m, ledgers: make(map[string]*Ledger)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for slug, l := range tx.ledgers {
		m.ledgers[slug] = l
	}
	m.commits++
	return nil
}

// Snapshot runs fn against the stored state.
func (m *Memory) Snapshot(ctx context.Context, fn func(context.Context, budget.Reader) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Snapshot"); err != nil {
		return err
	}
	return fn(ctx, snapshotReader{m})
}

// snapshotReader reads without locking; Snapshot already holds the lock.
type snapshotReader struct {
	repo *Memory
}

func (r snapshotReader) GetMaster(_ context.Context, div budget.Division) (budget.MasterBudget, error) {
	return view{r.repo.ledger(div.Slug)}.master()
}

func (r snapshotReader) ListAbsorptions(_ context.Context, div budget.Division, filter budget.ListFilter) ([]budget.AbsorptionEntry, int, error) {
	entries, total := view{r.repo.ledger(div.Slug)}.absorptions(filter)
	return entries, total, nil
}

func (r snapshotReader) ListProjects(_ context.Context, div budget.Division, filter budget.ListFilter) ([]budget.ProjectEntry, int, error) {
	entries, total := view{r.repo.ledger(div.Slug)}.projects(filter)
	return entries, total, nil
}

// view implements the shared read logic over one ledger.
type view struct {
	l *Ledger
}

func (v view) master() (budget.MasterBudget, error) {
	if v.l.Master == nil {
		return budget.MasterBudget{}, budget.ErrMasterNotFound
	}
	return *v.l.Master, nil
}

func matches(value, search string) bool {
	search = strings.TrimSpace(search)
	return search == "" || strings.Contains(strings.ToLower(value), strings.ToLower(search))
}

func page[T any](rows []T, filter budget.ListFilter) []T {
	start := min(max(filter.Offset, 0), len(rows))
	rows = rows[start:]
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows
}

func (v view) absorptions(filter budget.ListFilter) ([]budget.AbsorptionEntry, int) {
	var out []budget.AbsorptionEntry
	for _, e := range sortedAbsorptions(v.l.Absorptions) {
		if matches(e.Period, filter.Search) {
			out = append(out, e)
		}
	}
	return page(out, filter), len(out)
}

func (v view) projects(filter budget.ListFilter) ([]budget.ProjectEntry, int) {
	var out []budget.ProjectEntry
	for _, p := range v.l.Projects {
		if matches(p.ProjectName, filter.Search) {
			out = append(out, p)
		}
	}
	return page(out, filter), len(out)
}

func sortedAbsorptions(entries []budget.AbsorptionEntry) []budget.AbsorptionEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b budget.AbsorptionEntry) int {
		switch {
		case a.After(b):
			return 1
		case b.After(a):
			return -1
		}
		return 0
	})
	return out
}

// memoryTx implements budget.TxRepository over per-division copies.
type memoryTx struct {
	repo    *Memory
	ledgers map[string]*Ledger
}

func (t *memoryTx) ledger(div budget.Division) *Ledger {
	l, ok := t.ledgers[div.Slug]
	if !ok {
		l = t.repo.ledger(div.Slug).clone()
		t.ledgers[div.Slug] = l
	}
	return l
}

func (t *memoryTx) LockDivision(_ context.Context, div budget.Division) error {
	if err := t.repo.fail("LockDivision"); err != nil {
		return err
	}
	t.ledger(div)
	return nil
}

func (t *memoryTx) GetMasterForUpdate(_ context.Context, div budget.Division) (budget.MasterBudget, error) {
	if err := t.repo.fail("GetMasterForUpdate"); err != nil {
		return budget.MasterBudget{}, err
	}
	return view{t.ledger(div)}.master()
}

func (t *memoryTx) InsertMaster(_ context.Context, div budget.Division, m budget.MasterBudget) (budget.MasterBudget, error) {
	if err := t.repo.fail("InsertMaster"); err != nil {
		return budget.MasterBudget{}, err
	}
	l := t.ledger(div)
	if l.Master != nil {
		return budget.MasterBudget{}, fmt.Errorf("%w: master exists", budget.ErrDuplicate)
	}
	m.ID = l.id()
	l.Master = &m
	return m, nil
}

func (t *memoryTx) UpdateMaster(_ context.Context, div budget.Division, m budget.MasterBudget) (budget.MasterBudget, error) {
	if err := t.repo.fail("UpdateMaster"); err != nil {
		return budget.MasterBudget{}, err
	}
	l := t.ledger(div)
	if l.Master == nil || l.Master.ID != m.ID {
		return budget.MasterBudget{}, budget.ErrMasterNotFound
	}
	m.CreatedAt = l.Master.CreatedAt
	l.Master = &m
	return m, nil
}

func (t *memoryTx) absorptionIndex(l *Ledger, match func(budget.AbsorptionEntry) bool) int {
	return slices.IndexFunc(l.Absorptions, match)
}

func (t *memoryTx) GetAbsorption(_ context.Context, div budget.Division, id int64) (budget.AbsorptionEntry, error) {
	l := t.ledger(div)
	i := t.absorptionIndex(l, func(e budget.AbsorptionEntry) bool { return e.ID == id })
	if i < 0 {
		return budget.AbsorptionEntry{}, budget.ErrEntryNotFound
	}
	return l.Absorptions[i], nil
}

func (t *memoryTx) GetAbsorptionByPeriod(_ context.Context, div budget.Division, period string) (budget.AbsorptionEntry, error) {
	l := t.ledger(div)
	i := t.absorptionIndex(l, func(e budget.AbsorptionEntry) bool { return e.Period == period })
	if i < 0 {
		return budget.AbsorptionEntry{}, budget.ErrEntryNotFound
	}
	return l.Absorptions[i], nil
}

func (t *memoryTx) InsertAbsorption(_ context.Context, div budget.Division, e budget.AbsorptionEntry) (budget.AbsorptionEntry, error) {
	if err := t.repo.fail("InsertAbsorption"); err != nil {
		return budget.AbsorptionEntry{}, err
	}
	l := t.ledger(div)
	if t.absorptionIndex(l, func(x budget.AbsorptionEntry) bool { return x.Period == e.Period }) >= 0 {
		return budget.AbsorptionEntry{}, fmt.Errorf("%w: period %s", budget.ErrDuplicate, e.Period)
	}
	e.ID = l.id()
	l.Absorptions = append(l.Absorptions, e)
	return e, nil
}

func (t *memoryTx) UpdateAbsorption(_ context.Context, div budget.Division, e budget.AbsorptionEntry) (budget.AbsorptionEntry, error) {
	if err := t.repo.fail("UpdateAbsorption"); err != nil {
		return budget.AbsorptionEntry{}, err
	}
	l := t.ledger(div)
	i := t.absorptionIndex(l, func(x budget.AbsorptionEntry) bool { return x.ID == e.ID })
	if i < 0 {
		return budget.AbsorptionEntry{}, budget.ErrEntryNotFound
	}
	e.CreatedAt = l.Absorptions[i].CreatedAt
	l.Absorptions[i] = e
	return e, nil
}

func (t *memoryTx) DeleteAbsorption(_ context.Context, div budget.Division, id int64) error {
	if err := t.repo.fail("DeleteAbsorption"); err != nil {
		return err
	}
	l := t.ledger(div)
	i := t.absorptionIndex(l, func(e budget.AbsorptionEntry) bool { return e.ID == id })
	if i < 0 {
		return budget.ErrEntryNotFound
	}
	l.Absorptions = slices.Delete(l.Absorptions, i, i+1)
	return nil
}

func (t *memoryTx) ShiftAbsorptions(_ context.Context, div budget.Division, anchor *budget.AbsorptionEntry, delta decimal.Decimal) error {
	if err := t.repo.fail("ShiftAbsorptions"); err != nil {
		return err
	}
	l := t.ledger(div)
	for i, e := range l.Absorptions {
		if anchor == nil || e.After(*anchor) {
			l.Absorptions[i].RemainingAfter = e.RemainingAfter.Add(delta)
		}
	}
	return nil
}

func (t *memoryTx) projectIndex(l *Ledger, match func(budget.ProjectEntry) bool) int {
	return slices.IndexFunc(l.Projects, match)
}

func (t *memoryTx) GetProject(_ context.Context, div budget.Division, id int64) (budget.ProjectEntry, error) {
	l := t.ledger(div)
	i := t.projectIndex(l, func(p budget.ProjectEntry) bool { return p.ID == id })
	if i < 0 {
		return budget.ProjectEntry{}, budget.ErrEntryNotFound
	}
	return l.Projects[i], nil
}

func (t *memoryTx) GetProjectByName(_ context.Context, div budget.Division, name string) (budget.ProjectEntry, error) {
	l := t.ledger(div)
	i := t.projectIndex(l, func(p budget.ProjectEntry) bool { return p.ProjectName == name })
	if i < 0 {
		return budget.ProjectEntry{}, budget.ErrEntryNotFound
	}
	return l.Projects[i], nil
}

func (t *memoryTx) InsertProject(_ context.Context, div budget.Division, p budget.ProjectEntry) (budget.ProjectEntry, error) {
	if err := t.repo.fail("InsertProject"); err != nil {
		return budget.ProjectEntry{}, err
	}
	l := t.ledger(div)
	if t.projectIndex(l, func(x budget.ProjectEntry) bool { return x.ProjectName == p.ProjectName }) >= 0 {
		return budget.ProjectEntry{}, fmt.Errorf("%w: project %s", budget.ErrDuplicate, p.ProjectName)
	}
	p.ID = l.id()
	l.Projects = append(l.Projects, p)
	return p, nil
}

func (t *memoryTx) UpdateProject(_ context.Context, div budget.Division, p budget.ProjectEntry) (budget.ProjectEntry, error) {
	if err := t.repo.fail("UpdateProject"); err != nil {
		return budget.ProjectEntry{}, err
	}
	l := t.ledger(div)
	i := t.projectIndex(l, func(x budget.ProjectEntry) bool { return x.ID == p.ID })
	if i < 0 {
		return budget.ProjectEntry{}, budget.ErrEntryNotFound
	}
	if j := t.projectIndex(l, func(x budget.ProjectEntry) bool { return x.ProjectName == p.ProjectName }); j >= 0 && j != i {
		return budget.ProjectEntry{}, fmt.Errorf("%w: project %s", budget.ErrDuplicate, p.ProjectName)
	}
	p.CreatedAt = l.Projects[i].CreatedAt
	l.Projects[i] = p
	return p, nil
}

func (t *memoryTx) DeleteProject(_ context.Context, div budget.Division, id int64) error {
	if err := t.repo.fail("DeleteProject"); err != nil {
		return err
	}
	l := t.ledger(div)
	i := t.projectIndex(l, func(p budget.ProjectEntry) bool { return p.ID == id })
	if i < 0 {
		return budget.ErrEntryNotFound
	}
	l.Projects = slices.Delete(l.Projects, i, i+1)
	return nil
}

func (t *memoryTx) SumProjects(_ context.Context, div budget.Division) (budget.ProjectTotals, error) {
	if err := t.repo.fail("SumProjects"); err != nil {
		return budget.ProjectTotals{}, err
	}
	var totals budget.ProjectTotals
	for _, p := range t.ledger(div).Projects {
		totals.Add(p)
	}
	return totals, nil
}

func (t *memoryTx) InsertHistory(_ context.Context, div budget.Division, rec budget.HistoryRecord) error {
	if err := t.repo.fail("InsertHistory"); err != nil {
		return err
	}
	if rec.ChangedBy == "" {
		return errors.New("changed_by is required")
	}
	l := t.ledger(div)
	rec.ID = l.id()
	l.History = append(l.History, rec)
	return nil
}
