package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Issue is one stored value that disagrees with a replay of the ledger.
type Issue struct {
	Entity   EntityType      `json:"entity_type"`
	EntityID int64           `json:"entity_id"`
	Field    string          `json:"field"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
	Message  string          `json:"message"`
}

// VerifyReport is the outcome of a ledger verification.
type VerifyReport struct {
	Division   string    `json:"division"`
	Style      Style     `json:"style"`
	Checked    int       `json:"checked"`
	Consistent bool      `json:"consistent"`
	Issues     []Issue   `json:"issues"`
	CheckedAt  time.Time `json:"checked_at"`
}

func mismatch(entity EntityType, id int64, field string, stored, expected decimal.Decimal) Issue {
	return Issue{
		Entity:   entity,
		EntityID: id,
		Field:    field,
		Stored:   stored,
		Expected: expected,
		Message:  fmt.Sprintf("%s %d: %s is %s, replay gives %s", entity, id, field, stored, expected),
	}
}

func missingMaster(entries int) Issue {
	return Issue{
		Entity:  EntityMaster,
		Field:   "id",
		Message: fmt.Sprintf("master budget missing while %d entries exist", entries),
	}
}

// ReplayAbsorptions walks the entries in ledger order from the master total
// and reports every balance that differs from the replay.
func ReplayAbsorptions(master *MasterBudget, entries []AbsorptionEntry) []Issue {
	var issues []Issue
	if master == nil {
		if len(entries) > 0 {
			issues = append(issues, missingMaster(len(entries)))
		}
		return issues
	}
	running := master.TotalBudget
	for _, e := range entries {
		running = running.Sub(e.AbsorptionAmount)
		if !e.RemainingAfter.Equal(running) {
			issues = append(issues, mismatch(EntityAbsorption, e.ID, "remaining_after", e.RemainingAfter, running))
		}
	}
	if !master.CurrentRemaining.Equal(running) {
		issues = append(issues, mismatch(EntityMaster, master.ID, "current_remaining", master.CurrentRemaining, running))
	}
	return issues
}

// CheckProjects recomputes every derived project column and the master
// aggregates and reports the differences.
func CheckProjects(master *MasterBudget, entries []ProjectEntry) []Issue {
	var issues []Issue
	var sums ProjectTotals
	for _, p := range entries {
		actualization := p.Termins().Sum()
		if !p.TotalActualization.Equal(actualization) {
			issues = append(issues, mismatch(EntityProject, p.ID, "total_actualization", p.TotalActualization, actualization))
		}
		remaining := p.TotalBudget.Sub(actualization)
		if !p.BudgetRemaining.Equal(remaining) {
			issues = append(issues, mismatch(EntityProject, p.ID, "budget_remaining", p.BudgetRemaining, remaining))
		}
		recalculated := p
		recalculated.Recalculate()
		sums.Add(recalculated)
	}
	if master == nil {
		if len(entries) > 0 {
			issues = append(issues, missingMaster(len(entries)))
		}
		return issues
	}

	check := func(field string, stored, expected decimal.Decimal) {
		if !stored.Equal(expected) {
			issues = append(issues, mismatch(EntityMaster, master.ID, field, stored, expected))
		}
	}
	if !master.BudgetSet {
		check("total_budget", master.TotalBudget, sums.TotalBudget)
	}
	check("total_allocated", master.TotalAllocated, sums.TotalBudget)
	for i, stored := range master.TotalTermins() {
		check(fmt.Sprintf("total_termin%d", i+1), stored, sums.Termins[i])
	}
	check("total_actualization", master.TotalActualization, sums.TotalActualization)
	check("total_budget_remaining", master.TotalBudgetRemaining, sums.BudgetRemaining)
	check("current_remaining", master.CurrentRemaining, master.TotalBudget.Sub(sums.TotalActualization))
	return issues
}

// Verify replays a division ledger from one consistent snapshot without
// writing anything.
func (s *Service) Verify(ctx context.Context, div Division) (VerifyReport, error) {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport{Division: div.Slug, Style: div.Style, CheckedAt: s.now()}
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		master, err := optionalMaster(r.GetMaster(ctx, div))
		if err != nil {
			return err
		}
		if div.Style == StyleTermin {
			projects, _, err := r.ListProjects(ctx, div, ListFilter{})
			if err != nil {
				return err
			}
			report.Checked = len(projects)
			report.Issues = CheckProjects(master, projects)
			return nil
		}
		entries, _, err := r.ListAbsorptions(ctx, div, ListFilter{})
		if err != nil {
			return err
		}
		report.Checked = len(entries)
		report.Issues = ReplayAbsorptions(master, entries)
		return nil
	})
	if err != nil {
		return VerifyReport{}, err
	}
	if report.Issues == nil {
		report.Issues = []Issue{}
	}
	report.Consistent = len(report.Issues) == 0
	return report, nil
}
