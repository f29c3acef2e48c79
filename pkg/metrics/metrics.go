package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations.
	OutcomeError = "error"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sphinx",
			Name:      "analysis_cycles_total",
			Help:      "Total number of analysis cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sphinx",
			Name:      "analysis_cycle_seconds",
			Help:      "Analysis cycle latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	opportunitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sphinx",
			Name:      "opportunities_total",
			Help:      "Optimization opportunities detected, partitioned by producer kind.",
		},
		[]string{"producer"},
	)

	iacRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sphinx",
			Name:      "iac_runs_total",
			Help:      "IaC tool runs, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	iacRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sphinx",
			Name:      "iac_run_seconds",
			Help:      "IaC tool run latency in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	metricCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sphinx",
			Name:      "metric_cache_requests_total",
			Help:      "Metric cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sphinx",
			Name:      "http_requests_total",
			Help:      "HTTP API requests, partitioned by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sphinx",
			Name:      "http_request_seconds",
			Help:      "HTTP API request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// Register attaches sphinx collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		opportunitiesTotal,
		iacRunsTotal,
		iacRunDurationSeconds,
		metricCacheRequestsTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func outcomeLabel(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return outcome
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

// ObserveCycle records an analysis cycle duration and outcome label.
func ObserveCycle(duration time.Duration, outcome string) {
	cyclesTotal.WithLabelValues(outcomeLabel(outcome)).Inc()
	cycleDurationSeconds.Observe(seconds(duration))
}

// ObserveOpportunities adds n opportunities produced by "rule" or "analyzer".
func ObserveOpportunities(producer string, n int) {
	if n <= 0 {
		return
	}
	opportunitiesTotal.WithLabelValues(producer).Add(float64(n))
}

// ObserveIaCRun records a plan or apply run.
func ObserveIaCRun(operation string, duration time.Duration, outcome string) {
	iacRunsTotal.WithLabelValues(operation, outcomeLabel(outcome)).Inc()
	iacRunDurationSeconds.WithLabelValues(operation).Observe(seconds(duration))
}

// ObserveCacheLookup records a metric cache "hit", "miss" or "error".
func ObserveCacheLookup(result string) {
	metricCacheRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records one API request by its route template.
func ObserveHTTPRequest(route, method string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(seconds(duration))
}
