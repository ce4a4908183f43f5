// Package metrics exports Prometheus collectors for fetches, cache traffic,
// parsing and runs. A Metrics value satisfies the observer interfaces of the
// fetcher, cache and engine packages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

const namespace = "regcount"

// Metrics holds all regcount collectors.
type Metrics struct {
	FetchRequests *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	CacheLookups *prometheus.CounterVec
	CacheErrors  *prometheus.CounterVec

	TitlesProcessed *prometheus.CounterVec
	WordsCounted    prometheus.Counter
	ParseDuration   prometheus.Histogram

	RunDuration  prometheus.Histogram
	RunsTotal    *prometheus.CounterVec
	BreakerState prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{gatherer: reg}

	m.FetchRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_requests_total",
		Help:      "Outbound eCFR requests by HTTP status (0 for transport failures)",
	}, []string{"status"})

	m.FetchDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Outbound request latency",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240, 600},
	}, []string{"outcome"})

	m.CacheLookups = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by resource kind and result",
	}, []string{"kind", "result"})

	m.CacheErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_errors_total",
		Help:      "Cache store failures by kind and operation",
	}, []string{"kind", "op"})

	m.TitlesProcessed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "titles_processed_total",
		Help:      "Per-title work items by outcome (ok or a skip cause)",
	}, []string{"outcome"})

	m.WordsCounted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "words_counted_total",
		Help:      "Words counted across parsed documents",
	})

	m.ParseDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "parse_duration_seconds",
		Help:      "Time to count words in one document",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	m.RunDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a snapshot run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	m.RunsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Snapshot runs by result",
	}, []string{"result"})

	m.BreakerState = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Upstream circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveFetch implements fetcher.Observer.
func (m *Metrics) ObserveFetch(status int, elapsed time.Duration, err error) {
	m.FetchRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveCache implements cache.Observer.
func (m *Metrics) ObserveCache(kind cache.Kind, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(string(kind), result).Inc()
}

// ObserveCacheError implements cache.Observer.
func (m *Metrics) ObserveCacheError(kind cache.Kind, op string) {
	m.CacheErrors.WithLabelValues(string(kind), op).Inc()
}

// ObserveParse records one parsed document.
func (m *Metrics) ObserveParse(words int64, elapsed time.Duration) {
	m.WordsCounted.Add(float64(words))
	m.ParseDuration.Observe(elapsed.Seconds())
}

// ObserveTitle records a per-title outcome. An empty cause means success.
func (m *Metrics) ObserveTitle(cause domain.SkipCause) {
	outcome := "ok"
	if cause != "" {
		outcome = string(cause)
	}
	m.TitlesProcessed.WithLabelValues(outcome).Inc()
}

// ObserveRun records a finished snapshot run.
func (m *Metrics) ObserveRun(elapsed time.Duration, err error) {
	m.RunDuration.Observe(elapsed.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RunsTotal.WithLabelValues(result).Inc()
}

// ObserveBreaker is suitable as a circuitbreaker.Config.OnStateChange hook.
func (m *Metrics) ObserveBreaker(_, to circuitbreaker.State) {
	m.BreakerState.Set(float64(to))
}
