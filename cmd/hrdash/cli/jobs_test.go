package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/hrdash/hrdash/jobs"
)

type stubRunner struct {
	triggered []string
	divisions []string
	stats     QueueStats
	scheduled []*asynq.TaskInfo
	err       error
}

func (s *stubRunner) Trigger(_ context.Context, name string, divisions []string) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.triggered = append(s.triggered, name)
	s.divisions = divisions
	return &asynq.TaskInfo{ID: "task-1", Type: name, Queue: jobs.QueueDefault}, nil
}

func (s *stubRunner) InspectQueue(context.Context) (QueueStats, error) {
	return s.stats, s.err
}

func (s *stubRunner) ListScheduled(context.Context, int) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func TestJobsCommandTriggerDefaultsToLedgerVerify(t *testing.T) {
	runner := &stubRunner{}
	stdout := new(bytes.Buffer)

	code := JobsCommand(context.Background(), runner, JobsOptions{Action: "trigger", Divisions: []string{"elnusa"}, Stdout: stdout})
	require.Zero(t, code)
	require.Equal(t, []string{jobs.TaskLedgerVerify}, runner.triggered)
	require.Equal(t, []string{"elnusa"}, runner.divisions)
	require.Contains(t, stdout.String(), "id=task-1")
}

func TestJobsCommandInspectAndScheduled(t *testing.T) {
	runner := &stubRunner{
		stats: QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1},
		scheduled: []*asynq.TaskInfo{{
			ID:            "next",
			Type:          jobs.TaskLedgerVerify,
			NextProcessAt: time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
		}},
	}
	stdout := new(bytes.Buffer)

	require.Zero(t, JobsCommand(context.Background(), runner, JobsOptions{Action: "inspect", Stdout: stdout}))
	require.Contains(t, stdout.String(), "pending=2")
	require.Contains(t, stdout.String(), "retry=1")

	stdout.Reset()
	require.Zero(t, JobsCommand(context.Background(), runner, JobsOptions{Action: "scheduled", Stdout: stdout}))
	require.Contains(t, stdout.String(), "next\tbudget:ledger_verify\t2024-03-01T02:00:00Z")
}

func TestJobsCommandErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	runner := &stubRunner{err: errors.New("redis unavailable")}

	require.Equal(t, 1, JobsCommand(context.Background(), runner, JobsOptions{Action: "inspect", Stderr: stderr}))
	require.Contains(t, stderr.String(), "redis unavailable")

	require.Equal(t, 2, JobsCommand(context.Background(), &stubRunner{}, JobsOptions{Action: "purge", Stderr: stderr}))
	require.Equal(t, 1, JobsCommand(context.Background(), nil, JobsOptions{Action: "inspect", Stderr: stderr}))
}

func TestJobsCLIRejectsUnknownTask(t *testing.T) {
	cli, err := NewJobsCLI("127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = cli.Close() }()

	_, err = cli.Trigger(context.Background(), "budget:unknown", nil)
	require.ErrorContains(t, err, "unsupported job")

	var empty *JobsCLI
	_, err = empty.Trigger(context.Background(), jobs.TaskLedgerVerify, nil)
	require.Error(t, err)

	_, err = NewJobsCLI(" ")
	require.Error(t, err)
}
