package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hrdash/hrdash/internal/budget"
	"github.com/hrdash/hrdash/internal/budget/budgettest"
)

func newLedger(t *testing.T) (*budget.Service, *budgettest.Memory, budget.Division) {
	t.Helper()
	repo := budgettest.NewMemory()
	svc := budget.NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	div, err := budget.LookupDivision("regional2x")
	require.NoError(t, err)

	ctx := context.Background()
	total := decimal.NewFromInt(1000)
	_, err = svc.SaveMaster(ctx, div, budget.MasterInput{TotalBudget: &total}, "operator")
	require.NoError(t, err)
	amount := decimal.NewFromInt(100)
	_, err = svc.SaveAbsorption(ctx, div, budget.AbsorptionInput{Period: "Jan 2024", AbsorptionAmount: &amount}, "operator")
	require.NoError(t, err)
	return svc, repo, div
}

func TestParseDivisions(t *testing.T) {
	require.Nil(t, ParseDivisions(""))
	require.Equal(t, []string{"elnusa", "regional2x"}, ParseDivisions(" elnusa, ,regional2x "))
}

func TestResolveDivisions(t *testing.T) {
	all, err := ResolveDivisions(nil)
	require.NoError(t, err)
	require.Len(t, all, len(budget.Divisions()))

	_, err = ResolveDivisions([]string{"nowhere"})
	require.ErrorIs(t, err, budget.ErrUnknownDivision)
}

func TestSchemaCommand(t *testing.T) {
	repo := budgettest.NewMemory()
	svc := budget.NewService(repo, nil)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := SchemaCommand(context.Background(), svc, LedgerOptions{Divisions: []string{"elnusa"}, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.Contains(t, stdout.String(), "schema ready: elnusa (elnusa_budget_project)")
	require.Equal(t, 1, repo.SchemaCalls())
}

func TestSchemaCommandReportsFailure(t *testing.T) {
	repo := budgettest.NewMemory()
	repo.FailWith("EnsureSchema", errors.New("permission denied"))
	stderr := new(bytes.Buffer)

	code := SchemaCommand(context.Background(), budget.NewService(repo, nil), LedgerOptions{Divisions: []string{"regional2x"}, Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "permission denied")
}

func TestVerifyCommandConsistent(t *testing.T) {
	svc, _, _ := newLedger(t)
	stdout := new(bytes.Buffer)

	code := VerifyCommand(context.Background(), svc, LedgerOptions{Divisions: []string{"regional2x"}, Stdout: stdout, Stderr: io.Discard})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "regional2x")
	require.Contains(t, stdout.String(), "ok")
}

func TestVerifyCommandDriftJSON(t *testing.T) {
	svc, repo, div := newLedger(t)
	repo.Update(div, func(l *budgettest.Ledger) {
		l.Master.CurrentRemaining = decimal.NewFromInt(950)
	})
	stdout := new(bytes.Buffer)

	code := VerifyCommand(context.Background(), svc, LedgerOptions{Divisions: []string{"regional2x"}, JSONOutput: true, Stdout: stdout, Stderr: io.Discard})
	require.Equal(t, 3, code)

	var reports []budget.VerifyReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &reports))
	require.Len(t, reports, 1)
	require.False(t, reports[0].Consistent)
	require.Len(t, reports[0].Issues, 1)
	require.Equal(t, "current_remaining", reports[0].Issues[0].Field)
}

func TestVerifyCommandReadFailure(t *testing.T) {
	svc, repo, _ := newLedger(t)
	repo.FailWith("Snapshot", errors.New("connection reset"))
	stderr := new(bytes.Buffer)

	code := VerifyCommand(context.Background(), svc, LedgerOptions{Divisions: []string{"regional2x"}, Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "connection reset")
}

func TestVerifyCommandUnknownDivision(t *testing.T) {
	svc, _, _ := newLedger(t)
	stderr := new(bytes.Buffer)

	code := VerifyCommand(context.Background(), svc, LedgerOptions{Divisions: []string{"nowhere"}, Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "nowhere")
}
