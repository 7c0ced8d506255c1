package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "challengeboard"

// Cycle outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds every collector the worker exports.
type Metrics struct {
	reg *prometheus.Registry

	cycles      *prometheus.CounterVec
	duration    prometheus.Histogram
	inserted    prometheus.Counter
	stored      prometheus.Gauge
	pending     prometheus.Gauge
	lastSuccess prometheus.Gauge
	ranked      *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Sync cycles by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed or failed sync cycles.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_inserted_total",
			Help:      "Challenges newly stored by sync cycles.",
		}),
		stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "challenges_stored",
			Help:      "Challenges tracked in the store at the end of the last cycle.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "results_pending",
			Help:      "Stored challenges whose results are not final yet.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the leaderboard was last published.",
		}),
		ranked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ranked_participants",
			Help:      "Participants on the published leaderboard per month.",
		}, []string{"month"}),
	}
	m.reg.MustRegister(
		m.cycles, m.duration, m.inserted, m.stored, m.pending, m.lastSuccess, m.ranked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, o := range []string{OutcomeSuccess, OutcomeFailure, OutcomeSkipped} {
		m.cycles.WithLabelValues(o)
	}
	return m
}

// CycleFinished counts a cycle and, unless it was skipped, records its duration.
func (m *Metrics) CycleFinished(outcome string, elapsed time.Duration) {
	m.cycles.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.duration.Observe(elapsed.Seconds())
	}
}

// Published records the state of a successfully published cycle.
func (m *Metrics) Published(at time.Time, inserted, stored, pending int, ranked map[string]int) {
	m.inserted.Add(float64(inserted))
	m.stored.Set(float64(stored))
	m.pending.Set(float64(pending))
	m.lastSuccess.Set(float64(at.Unix()))
	m.ranked.Reset()
	for month, n := range ranked {
		m.ranked.WithLabelValues(month).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
