package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hrdash/hrdash/internal/shared"
)

// TerminCount is the number of installment columns per project.
const TerminCount = 6

// Termins holds one value per installment column.
type Termins [TerminCount]decimal.Decimal

// Sum adds every installment.
func (t Termins) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range t {
		total = total.Add(v)
	}
	return total
}

// DefaultMasterStatus is stored when a master write carries no status.
const DefaultMasterStatus = "Active"

// MasterBudget is the single budget ceiling row of a division. The aggregate
// columns are only maintained for termin-style divisions.
type MasterBudget struct {
	ID                   int64           `json:"id"`
	TotalBudget          decimal.Decimal `json:"total_budget"`
	CurrentRemaining     decimal.Decimal `json:"current_remaining"`
	TotalAllocated       decimal.Decimal `json:"total_allocated"`
	TotalTermin1         decimal.Decimal `json:"total_termin1"`
	TotalTermin2         decimal.Decimal `json:"total_termin2"`
	TotalTermin3         decimal.Decimal `json:"total_termin3"`
	TotalTermin4         decimal.Decimal `json:"total_termin4"`
	TotalTermin5         decimal.Decimal `json:"total_termin5"`
	TotalTermin6         decimal.Decimal `json:"total_termin6"`
	TotalActualization   decimal.Decimal `json:"total_actualization"`
	TotalBudgetRemaining decimal.Decimal `json:"total_budget_remaining"`
	Status               string          `json:"status"`
	Remarks              string          `json:"remarks"`
	// BudgetSet is false while an auto-created termin master still tracks
	// the allocated sum as its total budget.
	BudgetSet            bool            `json:"budget_set"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// TotalTermins returns the per-installment totals.
func (m MasterBudget) TotalTermins() Termins {
	return Termins{m.TotalTermin1, m.TotalTermin2, m.TotalTermin3, m.TotalTermin4, m.TotalTermin5, m.TotalTermin6}
}

// SetTotalTermins overwrites the per-installment totals.
func (m *MasterBudget) SetTotalTermins(t Termins) {
	m.TotalTermin1, m.TotalTermin2, m.TotalTermin3 = t[0], t[1], t[2]
	m.TotalTermin4, m.TotalTermin5, m.TotalTermin6 = t[3], t[4], t[5]
}

// applyTotals mirrors project sums onto the master aggregates.
func (m *MasterBudget) applyTotals(totals ProjectTotals) {
	if !m.BudgetSet {
		m.TotalBudget = totals.TotalBudget
	}
	m.TotalAllocated = totals.TotalBudget
	m.SetTotalTermins(totals.Termins)
	m.TotalActualization = totals.TotalActualization
	m.TotalBudgetRemaining = totals.BudgetRemaining
	m.CurrentRemaining = m.TotalBudget.Sub(totals.TotalActualization)
}

// AbsorptionEntry records the amount absorbed in one period and the balance
// left after it.
type AbsorptionEntry struct {
	ID               int64           `json:"id"`
	Period           string          `json:"period"`
	AbsorptionAmount decimal.Decimal `json:"absorption_amount"`
	RemainingAfter   decimal.Decimal `json:"remaining_after"`
	Remarks          string          `json:"remarks"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// After reports whether e sorts after other in ledger order.
func (e AbsorptionEntry) After(other AbsorptionEntry) bool {
	if e.CreatedAt.Equal(other.CreatedAt) {
		return e.ID > other.ID
	}
	return e.CreatedAt.After(other.CreatedAt)
}

// ProjectEntry is one project of a termin-style division.
type ProjectEntry struct {
	ID                 int64           `json:"id"`
	ProjectName        string          `json:"project_name"`
	TotalBudget        decimal.Decimal `json:"total_budget"`
	Termin1            decimal.Decimal `json:"termin1"`
	Termin2            decimal.Decimal `json:"termin2"`
	Termin3            decimal.Decimal `json:"termin3"`
	Termin4            decimal.Decimal `json:"termin4"`
	Termin5            decimal.Decimal `json:"termin5"`
	Termin6            decimal.Decimal `json:"termin6"`
	TotalActualization decimal.Decimal `json:"total_actualization"`
	BudgetRemaining    decimal.Decimal `json:"budget_remaining"`
	Remarks            string          `json:"remarks"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Termins returns the installment values.
func (p ProjectEntry) Termins() Termins {
	return Termins{p.Termin1, p.Termin2, p.Termin3, p.Termin4, p.Termin5, p.Termin6}
}

// SetTermins overwrites the installment values and recalculates the derived
// columns.
func (p *ProjectEntry) SetTermins(t Termins) {
	p.Termin1, p.Termin2, p.Termin3 = t[0], t[1], t[2]
	p.Termin4, p.Termin5, p.Termin6 = t[3], t[4], t[5]
	p.Recalculate()
}

// Recalculate derives total_actualization and budget_remaining.
func (p *ProjectEntry) Recalculate() {
	p.TotalActualization = p.Termins().Sum()
	p.BudgetRemaining = p.TotalBudget.Sub(p.TotalActualization)
}

// ProjectTotals is the column-wise sum over every project of a division.
type ProjectTotals struct {
	Count              int
	TotalBudget        decimal.Decimal
	Termins            Termins
	TotalActualization decimal.Decimal
	BudgetRemaining    decimal.Decimal
}

// Add accumulates one project.
func (t *ProjectTotals) Add(p ProjectEntry) {
	t.Count++
	t.TotalBudget = t.TotalBudget.Add(p.TotalBudget)
	for i, v := range p.Termins() {
		t.Termins[i] = t.Termins[i].Add(v)
	}
	t.TotalActualization = t.TotalActualization.Add(p.TotalActualization)
	t.BudgetRemaining = t.BudgetRemaining.Add(p.BudgetRemaining)
}

// EntityType names the kind of row a history record describes.
type EntityType string

const (
	EntityMaster     EntityType = "master"
	EntityAbsorption EntityType = "absorption"
	EntityProject    EntityType = "project"
)

// Tracked history fields.
const (
	FieldTotalBudget      = "total_budget"
	FieldAbsorptionAmount = "absorption_amount"
	FieldDeleted          = "deleted"
)

// HistoryRecord is one append-only change log row.
type HistoryRecord struct {
	ID           int64      `json:"id"`
	EntityType   EntityType `json:"entity_type"`
	EntityID     int64      `json:"entity_id"`
	FieldChanged string     `json:"field_changed"`
	OldValue     *string    `json:"old_value"`
	NewValue     *string    `json:"new_value"`
	ChangedBy    string     `json:"changed_by"`
	ChangedAt    time.Time  `json:"changed_at"`
}

// ListFilter narrows entry listings. A non-positive Limit returns every row.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// ListRequest is the paginated listing input of the API.
type ListRequest struct {
	Page   int
	Limit  int
	Search string
}

// EntryPage is one page of a division's entries plus its master row. Only the
// slice matching the division style is populated.
type EntryPage struct {
	Master      *MasterBudget
	Absorptions []AbsorptionEntry
	Projects    []ProjectEntry
	Pagination  shared.Pagination
}

// Entries returns the populated entry slice as a JSON-friendly value.
func (p EntryPage) Entries(style Style) any {
	if style == StyleTermin {
		if p.Projects == nil {
			return []ProjectEntry{}
		}
		return p.Projects
	}
	if p.Absorptions == nil {
		return []AbsorptionEntry{}
	}
	return p.Absorptions
}
