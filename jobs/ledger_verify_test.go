package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdash/hrdash/internal/budget"
	jobmetrics "github.com/hrdash/hrdash/internal/jobs"
)

type stubVerifier struct {
	mu      sync.Mutex
	seen    []string
	drift   map[string]int
	failing map[string]error
}

func (s *stubVerifier) Verify(_ context.Context, div budget.Division) (budget.VerifyReport, error) {
	s.mu.Lock()
	s.seen = append(s.seen, div.Slug)
	s.mu.Unlock()
	if err := s.failing[div.Slug]; err != nil {
		return budget.VerifyReport{}, err
	}
	report := budget.VerifyReport{Division: div.Slug, Style: div.Style, Issues: []budget.Issue{}}
	for i := 0; i < s.drift[div.Slug]; i++ {
		report.Issues = append(report.Issues, budget.Issue{
			Entity:   budget.EntityAbsorption,
			EntityID: int64(i + 1),
			Field:    "remaining_after",
			Stored:   decimal.NewFromInt(1),
			Expected: decimal.NewFromInt(2),
		})
	}
	report.Consistent = len(report.Issues) == 0
	return report, nil
}

func TestLedgerVerifyRunsEveryDivision(t *testing.T) {
	verifier := &stubVerifier{drift: map[string]int{"regional2y": 2}}
	job := NewLedgerVerifyJob(verifier, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	reports, err := job.Run(context.Background(), budget.Divisions())
	require.NoError(t, err)
	require.Len(t, reports, len(budget.Divisions()))
	assert.Len(t, verifier.seen, len(budget.Divisions()))
	for i, div := range budget.Divisions() {
		assert.Equal(t, div.Slug, reports[i].Division)
	}
	assert.False(t, reports[1].Consistent)
	assert.Len(t, reports[1].Issues, 2)
}

func TestLedgerVerifyJoinsFailures(t *testing.T) {
	boom := errors.New("connection refused")
	verifier := &stubVerifier{failing: map[string]error{"elnusa": boom}}
	job := NewLedgerVerifyJob(verifier, nil, nil)

	reports, err := job.Run(context.Background(), budget.Divisions())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "verify elnusa")
	assert.Equal(t, "regional2x", reports[0].Division)
	assert.Len(t, verifier.seen, len(budget.Divisions()))
}

func TestLedgerVerifyHandlePayload(t *testing.T) {
	verifier := &stubVerifier{}
	job := NewLedgerVerifyJob(verifier, nil, nil)

	task, err := NewLedgerVerifyTask(LedgerVerifyPayload{Divisions: []string{"tar-mcu"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []string{"tar-mcu"}, verifier.seen)

	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerVerify, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err = NewLedgerVerifyTask(LedgerVerifyPayload{Divisions: []string{"atlantis"}})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerVerify, nil)))
	assert.Len(t, verifier.seen, 1+len(budget.Divisions()))

	var unset *LedgerVerifyJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"queue idle","data":{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0,"paused":false}}`, rr.Body.String())
}
