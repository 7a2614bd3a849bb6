package budget

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// SummaryReport is the master row, every entry and the derived totals of a
// division.
type SummaryReport struct {
	Division    string            `json:"division"`
	Style       Style             `json:"style"`
	Master      *MasterBudget     `json:"master"`
	Absorptions []AbsorptionEntry `json:"absorptions,omitempty"`
	Projects    []ProjectEntry    `json:"projects,omitempty"`
	Totals      Totals            `json:"summary"`
}

// Entries returns the populated entry slice.
func (r SummaryReport) Entries() any {
	return EntryPage{Absorptions: r.Absorptions, Projects: r.Projects}.Entries(r.Style)
}

// Totals is the summary object of a division.
type Totals struct {
	TotalBudget      decimal.Decimal `json:"total_budget"`
	TotalUsed        decimal.Decimal `json:"total_used"`
	CurrentRemaining decimal.Decimal `json:"current_remaining"`
	UsagePercentage  decimal.Decimal `json:"usage_percentage"`
	EntryCount       int             `json:"entry_count"`
	Termin           *TerminTotals   `json:"termin,omitempty"`
}

// TerminTotals carries the per-installment sums of a termin division.
type TerminTotals struct {
	TotalAllocated       decimal.Decimal `json:"total_allocated"`
	TotalTermin1         decimal.Decimal `json:"total_termin1"`
	TotalTermin2         decimal.Decimal `json:"total_termin2"`
	TotalTermin3         decimal.Decimal `json:"total_termin3"`
	TotalTermin4         decimal.Decimal `json:"total_termin4"`
	TotalTermin5         decimal.Decimal `json:"total_termin5"`
	TotalTermin6         decimal.Decimal `json:"total_termin6"`
	TotalActualization   decimal.Decimal `json:"total_actualization"`
	TotalBudgetRemaining decimal.Decimal `json:"total_budget_remaining"`
}

func usage(used, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return used.Div(total).Mul(hundred).Round(2)
}

// SummarizeAbsorptions derives the totals of an absorption ledger. Without a
// master row the chain start is recovered from the first entry.
func SummarizeAbsorptions(master *MasterBudget, entries []AbsorptionEntry) Totals {
	totals := Totals{EntryCount: len(entries)}
	for _, e := range entries {
		totals.TotalUsed = totals.TotalUsed.Add(e.AbsorptionAmount)
	}
	switch {
	case master != nil:
		totals.TotalBudget = master.TotalBudget
		totals.CurrentRemaining = master.CurrentRemaining
	case len(entries) > 0:
		first, last := entries[0], entries[len(entries)-1]
		totals.TotalBudget = first.RemainingAfter.Add(first.AbsorptionAmount)
		totals.CurrentRemaining = last.RemainingAfter
	}
	totals.UsagePercentage = usage(totals.TotalUsed, totals.TotalBudget)
	return totals
}

// SummarizeProjects derives the totals of a termin ledger from its entries.
// Without a master row the allocated sum stands in for the ceiling.
func SummarizeProjects(master *MasterBudget, entries []ProjectEntry) Totals {
	var sums ProjectTotals
	for _, p := range entries {
		sums.Add(p)
	}
	totals := Totals{
		TotalUsed:  sums.TotalActualization,
		EntryCount: sums.Count,
		Termin: &TerminTotals{
			TotalAllocated:       sums.TotalBudget,
			TotalTermin1:         sums.Termins[0],
			TotalTermin2:         sums.Termins[1],
			TotalTermin3:         sums.Termins[2],
			TotalTermin4:         sums.Termins[3],
			TotalTermin5:         sums.Termins[4],
			TotalTermin6:         sums.Termins[5],
			TotalActualization:   sums.TotalActualization,
			TotalBudgetRemaining: sums.BudgetRemaining,
		},
	}
	totals.TotalBudget = sums.TotalBudget
	if master != nil {
		totals.TotalBudget = master.TotalBudget
	}
	totals.CurrentRemaining = totals.TotalBudget.Sub(sums.TotalActualization)
	totals.UsagePercentage = usage(totals.TotalUsed, totals.TotalBudget)
	return totals
}
