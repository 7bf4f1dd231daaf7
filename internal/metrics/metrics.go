package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	surveyTranscribe = "survey_transcribe"

	jobTransitionsTotal     = "job_transitions_total"
	recordsTotal            = "records_total"
	pollErrorsTotal         = "poll_errors_total"
	submissionFailuresTotal = "submission_failures_total"
	jobsInflight            = "jobs_inflight"

	// Labels
	stateLabel  = "state"
	statusLabel = "status"
	stepLabel   = "step"
)

var jobTransitionsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: surveyTranscribe,
		Name:      jobTransitionsTotal,
		Help:      "number of job state transitions by target state",
	},
	[]string{stateLabel},
)

var recordsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: surveyTranscribe,
		Name:      recordsTotal,
		Help:      "number of aggregated records written by status",
	},
	[]string{statusLabel},
)

var pollErrorsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: surveyTranscribe,
		Name:      pollErrorsTotal,
		Help:      "number of failed status or collection attempts while polling",
	},
)

var submissionFailuresMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: surveyTranscribe,
		Name:      submissionFailuresTotal,
		Help:      "number of chunks whose submission failed, by failing step",
	},
	[]string{stepLabel},
)

var jobsInflightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: surveyTranscribe,
		Name:      jobsInflight,
		Help:      "number of started jobs not yet terminal",
	},
)

func IncreaseJobTransitions(state string) {
	jobTransitionsMetric.With(prometheus.Labels{stateLabel: state}).Inc()
}

func IncreaseRecords(status string, n int) {
	recordsMetric.With(prometheus.Labels{statusLabel: status}).Add(float64(n))
}

func IncreasePollErrors() {
	pollErrorsMetric.Inc()
}

func IncreaseSubmissionFailures(step string) {
	submissionFailuresMetric.With(prometheus.Labels{stepLabel: step}).Inc()
}

func SetJobsInflight(n int) {
	jobsInflightMetric.Set(float64(n))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobTransitionsMetric)
	prometheus.MustRegister(recordsMetric)
	prometheus.MustRegister(pollErrorsMetric)
	prometheus.MustRegister(submissionFailuresMetric)
	prometheus.MustRegister(jobsInflightMetric)
}
