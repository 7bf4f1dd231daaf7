package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestCounters(t *testing.T) {
	completed := jobTransitionsMetric.WithLabelValues("Completed")
	before := value(t, completed)
	IncreaseJobTransitions("Completed")
	assert.Equal(t, before+1, value(t, completed))

	ok := recordsMetric.WithLabelValues("OK")
	before = value(t, ok)
	IncreaseRecords("OK", 18)
	assert.Equal(t, before+18, value(t, ok))

	start := submissionFailuresMetric.WithLabelValues("start")
	before = value(t, start)
	IncreaseSubmissionFailures("start")
	assert.Equal(t, before+1, value(t, start))

	before = value(t, pollErrorsMetric)
	IncreasePollErrors()
	assert.Equal(t, before+1, value(t, pollErrorsMetric))

	SetJobsInflight(3)
	assert.Equal(t, float64(3), value(t, jobsInflightMetric))
}
