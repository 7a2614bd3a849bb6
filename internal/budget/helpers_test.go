package budget_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hrdash/hrdash/internal/budget"
	"github.com/hrdash/hrdash/internal/budget/budgettest"
)

const actor = "auditor"

func newService(t *testing.T) (*budget.Service, *budgettest.Memory) {
	t.Helper()
	repo := budgettest.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return budget.NewService(repo, logger), repo
}

func division(t *testing.T, slug string) budget.Division {
	t.Helper()
	div, err := budget.LookupDivision(slug)
	require.NoError(t, err)
	return div
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, label string) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", label, want, got)
}

// seedChain creates a master of 1000 and entries of 100, 50 and 30.
func seedChain(t *testing.T, svc *budget.Service, div budget.Division) []budget.AbsorptionEntry {
	t.Helper()
	ctx := context.Background()
	_, err := svc.SaveMaster(ctx, div, budget.MasterInput{TotalBudget: dec("1000")}, actor)
	require.NoError(t, err)

	var entries []budget.AbsorptionEntry
	for _, in := range []struct{ period, amount string }{{"Jan 2024", "100"}, {"Feb 2024", "50"}, {"Mar 2024", "30"}} {
		res, err := svc.SaveAbsorption(ctx, div, budget.AbsorptionInput{Period: in.period, AbsorptionAmount: dec(in.amount)}, actor)
		require.NoError(t, err)
		require.True(t, res.Created)
		entries = append(entries, res.Entry)
	}
	return entries
}

type recorder struct {
	mu        sync.Mutex
	mutations map[string]int
	failures  int
	imported  [3]int
}

func newRecorder() *recorder {
	return &recorder{mutations: make(map[string]int)}
}

func (r *recorder) ObserveLedgerMutation(division, operation string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations[division+"/"+operation]++
	if err != nil {
		r.failures++
	}
}

func (r *recorder) ObserveImportRows(_ string, processed, skipped, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imported[0] += processed
	r.imported[1] += skipped
	r.imported[2] += failed
}
