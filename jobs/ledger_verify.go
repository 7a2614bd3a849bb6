package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/hrdash/hrdash/internal/budget"
	jobmetrics "github.com/hrdash/hrdash/internal/jobs"
)

const verifyConcurrency = 3

// LedgerVerifier replays one division ledger.
type LedgerVerifier interface {
	Verify(ctx context.Context, div budget.Division) (budget.VerifyReport, error)
}

// LedgerVerifyJob checks every budget ledger against a replay of its entries.
// Drift is reported, never repaired.
type LedgerVerifyJob struct {
	Verifier LedgerVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLedgerVerifyJob initialises the verification handler.
func NewLedgerVerifyJob(verifier LedgerVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle executes TaskLedgerVerify tasks.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload LedgerVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger verify payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	divisions, err := resolveDivisions(payload.Divisions)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	_, err = j.Run(ctx, divisions)
	return err
}

// Run verifies the divisions concurrently and returns their reports in input
// order. Verification failures are joined; drift alone is not a failure.
func (j *LedgerVerifyJob) Run(ctx context.Context, divisions []budget.Division) (reports []budget.VerifyReport, resultErr error) {
	tracker := j.Metrics.Track(TaskLedgerVerify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	reports = make([]budget.VerifyReport, len(divisions))
	errs := make([]error, len(divisions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, div := range divisions {
		g.Go(func() error {
			report, err := j.Verifier.Verify(gctx, div)
			if err != nil {
				errs[i] = fmt.Errorf("verify %s: %w", div.Slug, err)
				logger.Error("ledger verification failed", slog.String("division", div.Slug), slog.Any("error", err))
				return nil
			}
			reports[i] = report
			j.Metrics.AddDrift(div.Slug, len(report.Issues))
			if !report.Consistent {
				for _, issue := range report.Issues {
					logger.Warn("ledger drift detected",
						slog.String("division", div.Slug),
						slog.String("entity_type", string(issue.Entity)),
						slog.Int64("entity_id", issue.EntityID),
						slog.String("field", issue.Field),
						slog.String("stored", issue.Stored.String()),
						slog.String("expected", issue.Expected.String()))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return reports, err
	}
	logger.Info("ledger verification completed", slog.Int("divisions", len(divisions)))
	return reports, nil
}

func (j *LedgerVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerVerify))
	}
	return slog.Default().With(slog.String("job", TaskLedgerVerify))
}

// resolveDivisions maps slugs to divisions; no slugs selects every division.
func resolveDivisions(slugs []string) ([]budget.Division, error) {
	if len(slugs) == 0 {
		return budget.Divisions(), nil
	}
	out := make([]budget.Division, 0, len(slugs))
	for _, slug := range slugs {
		div, err := budget.LookupDivision(slug)
		if err != nil {
			return nil, err
		}
		out = append(out, div)
	}
	return out, nil
}
