package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Step outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Registry holds the bootstrap metrics. A run is a one-shot process, so the
// registry is pushed to a Pushgateway rather than scraped.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	BootstrapSteps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elisedb_bootstrap_steps_total",
			Help: "Total number of bootstrap steps executed",
		},
		[]string{"step", "outcome"},
	)

	BootstrapStepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elisedb_bootstrap_step_duration_seconds",
			Help:    "Time taken by a bootstrap step, including the server acknowledgement",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	BootstrapRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elisedb_bootstrap_runs_total",
			Help: "Total number of bootstrap runs",
		},
		[]string{"outcome"},
	)

	BootstrapLastSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "elisedb_bootstrap_last_success_timestamp_seconds",
			Help: "Unix time of the last successful bootstrap run",
		},
	)
)

// ObserveStep records one executed step
func ObserveStep(step string, took time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	BootstrapSteps.WithLabelValues(step, outcome).Inc()
	BootstrapStepDuration.WithLabelValues(step).Observe(took.Seconds())
}

// ObserveRun records the outcome of a whole run
func ObserveRun(finished time.Time, err error) {
	if err != nil {
		BootstrapRuns.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	BootstrapRuns.WithLabelValues(OutcomeSuccess).Inc()
	BootstrapLastSuccess.Set(float64(finished.Unix()))
}

// Push sends the registry to the Pushgateway at url under job, grouped by
// database so runs against different databases do not overwrite each other.
func Push(url, job, database string) error {
	err := push.New(url, job).
		Gatherer(Registry).
		Grouping("database", database).
		Push()
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
