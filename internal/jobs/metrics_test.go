package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("budget:ledger_verify").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("budget:ledger_verify").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("budget:ledger_verify", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("budget:ledger_verify", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("budget:ledger_verify")))
}

func TestAddDriftIgnoresZero(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDrift("regional2x", 0)
	m.AddDrift("regional2x", 3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.drift.WithLabelValues("regional2x")))

	var nilMetrics *Metrics
	nilMetrics.AddDrift("regional2x", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
