package budget_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdash/hrdash/internal/budget"
	"github.com/hrdash/hrdash/internal/budget/budgettest"
)

func TestSaveProjectAutoCreatesMaster(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	div := division(t, "elnusa")

	res, err := svc.SaveProject(ctx, div, budget.ProjectInput{
		ProjectName: "Pipeline Survey",
		TotalBudget: dec("500"),
		Termin1:     dec("100"),
		Termin2:     dec("50"),
	}, actor)
	require.NoError(t, err)
	assert.True(t, res.Created)
	requireDecimal(t, "150", res.Entry.TotalActualization, "actualization")
	requireDecimal(t, "350", res.Entry.BudgetRemaining, "entry remaining")

	master := res.Master
	assert.NotZero(t, master.ID)
	assert.Equal(t, budget.DefaultMasterStatus, master.Status)
	requireDecimal(t, "500", master.TotalBudget, "total")
	requireDecimal(t, "500", master.TotalAllocated, "allocated")
	requireDecimal(t, "100", master.TotalTermin1, "termin1")
	requireDecimal(t, "50", master.TotalTermin2, "termin2")
	requireDecimal(t, "0", master.TotalTermin6, "termin6")
	requireDecimal(t, "350", master.CurrentRemaining, "remaining")

	_, err = svc.SaveProject(ctx, div, budget.ProjectInput{
		ProjectName: "Rig Overhaul",
		TotalBudget: dec("300"),
		Termin1:     dec("20"),
		Termin6:     dec("5"),
	}, actor)
	require.NoError(t, err)

	ledger := repo.Ledger(div)
	require.Len(t, ledger.Projects, 2)
	requireDecimal(t, "800", ledger.Master.TotalBudget, "total follows allocation")
	assert.False(t, ledger.Master.BudgetSet)
	requireDecimal(t, "800", ledger.Master.TotalAllocated, "allocated")
	requireDecimal(t, "120", ledger.Master.TotalTermin1, "termin1")
	requireDecimal(t, "5", ledger.Master.TotalTermin6, "termin6")
	requireDecimal(t, "175", ledger.Master.TotalActualization, "actualization")
	requireDecimal(t, "625", ledger.Master.TotalBudgetRemaining, "budget remaining")
	requireDecimal(t, "625", ledger.Master.CurrentRemaining, "remaining")
	assert.Empty(t, budget.CheckProjects(ledger.Master, ledger.Projects))
}

func TestAutoCreatedMasterTracksAllocatedTotal(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	div := division(t, "elnusa")

	_, err := svc.SaveProject(ctx, div, budget.ProjectInput{ProjectName: "A", TotalBudget: dec("100")}, actor)
	require.NoError(t, err)
	res, err := svc.SaveProject(ctx, div, budget.ProjectInput{ProjectName: "B", TotalBudget: dec("1000"), Termin1: dec("500")}, actor)
	require.NoError(t, err)

	requireDecimal(t, "1100", res.Master.TotalBudget, "total")
	requireDecimal(t, "1100", res.Master.TotalAllocated, "allocated")
	requireDecimal(t, "600", res.Master.CurrentRemaining, "remaining")
	requireDecimal(t, "600", res.Master.TotalBudgetRemaining, "budget remaining")

	ledger := repo.Ledger(div)
	assert.Empty(t, budget.CheckProjects(ledger.Master, ledger.Projects))

	repo.Update(div, func(l *budgettest.Ledger) {
		l.Master.TotalBudget = decimal.NewFromInt(100)
		l.Master.CurrentRemaining = decimal.NewFromInt(-400)
	})
	ledger = repo.Ledger(div)
	issues := budget.CheckProjects(ledger.Master, ledger.Projects)
	require.Len(t, issues, 1)
	assert.Equal(t, "total_budget", issues[0].Field)
	requireDecimal(t, "1100", issues[0].Expected, "expected total")
}

func TestSaveProjectUpdatesByNameOrID(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	div := division(t, "tar-mcu")

	first, err := svc.SaveProject(ctx, div, budget.ProjectInput{ProjectName: "Turnaround", TotalBudget: dec("1000"), Termin1: dec("200")}, actor)
	require.NoError(t, err)

	byName, err := svc.SaveProject(ctx, div, budget.ProjectInput{ProjectName: "Turnaround", TotalBudget: dec("1200"), Termin1: dec("200"), Termin2: dec("300")}, actor)
	require.NoError(t, err)
	assert.False(t, byName.Created)
	assert.Equal(t, first.Entry.ID, byName.Entry.ID)
	requireDecimal(t, "700", byName.Entry.BudgetRemaining, "entry remaining")

	id := first.Entry.ID
	renamed, err := svc.SaveProject(ctx, div, budget.ProjectInput{ID: &id, ProjectName: "Turnaround 2025", TotalBudget: dec("1200")}, actor)
	require.NoError(t, err)
	assert.Equal(t, "Turnaround 2025", renamed.Entry.ProjectName)
	requireDecimal(t, "0", renamed.Entry.TotalActualization, "termins reset")

	ledger := repo.Ledger(div)
	require.Len(t, ledger.Projects, 1)
	require.Len(t, ledger.History, 1)
	assert.Equal(t, budget.EntityProject, ledger.History[0].EntityType)
	assert.Equal(t, "1000", *ledger.History[0].OldValue)
	assert.Equal(t, "1200", *ledger.History[0].NewValue)

	missing := int64(404)
	_, err = svc.SaveProject(ctx, div, budget.ProjectInput{ID: &missing, ProjectName: "Ghost", TotalBudget: dec("1")}, actor)
	require.ErrorIs(t, err, budget.ErrEntryNotFound)
}

func TestDeleteProjectResetsAggregates(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	div := division(t, "elnusa")

	res, err := svc.SaveProject(ctx, div, budget.ProjectInput{ProjectName: "Only", TotalBudget: dec("400"), Termin3: dec("40")}, actor)
	require.NoError(t, err)

	master, err := svc.DeleteProject(ctx, div, res.Entry.ID, actor)
	require.NoError(t, err)
	requireDecimal(t, "0", master.TotalBudget, "total")
	requireDecimal(t, "0", master.TotalAllocated, "allocated")
	requireDecimal(t, "0", master.TotalTermin3, "termin3")
	requireDecimal(t, "0", master.TotalActualization, "actualization")
	requireDecimal(t, "0", master.CurrentRemaining, "remaining")

	ledger := repo.Ledger(div)
	assert.Empty(t, ledger.Projects)
	require.Len(t, ledger.History, 1)
	assert.Equal(t, budget.FieldDeleted, ledger.History[0].FieldChanged)
	assert.Contains(t, *ledger.History[0].OldValue, `"project_name":"Only"`)

	_, err = svc.DeleteProject(ctx, div, res.Entry.ID, actor)
	require.ErrorIs(t, err, budget.ErrEntryNotFound)
}

func TestSaveMasterOnTerminRecomputes(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	div := division(t, "elnusa")

	_, err := svc.SaveProject(ctx, div, budget.ProjectInput{ProjectName: "A", TotalBudget: dec("600"), Termin1: dec("100")}, actor)
	require.NoError(t, err)

	master, err := svc.SaveMaster(ctx, div, budget.MasterInput{TotalBudget: dec("2000"), CurrentRemaining: dec("1")}, actor)
	require.NoError(t, err)
	requireDecimal(t, "2000", master.TotalBudget, "total")
	requireDecimal(t, "1900", master.CurrentRemaining, "remaining ignores input")
	requireDecimal(t, "600", master.TotalAllocated, "allocated")
	assert.True(t, master.BudgetSet)
	assert.Len(t, repo.Ledger(div).History, 1)

	res, err := svc.SaveProject(ctx, div, budget.ProjectInput{ProjectName: "B", TotalBudget: dec("900"), Termin1: dec("300")}, actor)
	require.NoError(t, err)
	requireDecimal(t, "2000", res.Master.TotalBudget, "saved total is kept")
	requireDecimal(t, "1500", res.Master.TotalAllocated, "allocated")
	requireDecimal(t, "1600", res.Master.CurrentRemaining, "remaining")
}

func TestCreateTerminMasterBeforeProjects(t *testing.T) {
	svc, _ := newService(t)
	div := division(t, "tar-mcu")

	master, err := svc.SaveMaster(context.Background(), div, budget.MasterInput{TotalBudget: dec("750"), CurrentRemaining: dec("10")}, actor)
	require.NoError(t, err)
	requireDecimal(t, "750", master.CurrentRemaining, "remaining")
	requireDecimal(t, "0", master.TotalAllocated, "allocated")
}
