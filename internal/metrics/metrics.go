// Package metrics exposes Prometheus metrics for the refresh pipeline, the
// Riot client and the chat commands.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rankbot/internal/rank"
	"rankbot/internal/refresh"
)

const defaultNamespace = "rankbot"

// Manager owns a registry and every collector registered on it.
// All methods are safe on a nil *Manager.
type Manager struct {
	namespace string
	registry  *prometheus.Registry
	buckets   []float64
	runtime   bool

	refreshRuns     *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	refreshLast     prometheus.Gauge
	refreshPlayers  *prometheus.GaugeVec

	fetchResults  *prometheus.CounterVec
	fetchDuration prometheus.Histogram

	rosterEntries prometheus.Gauge
	rosterLoads   prometheus.Counter

	riotRequests *prometheus.CounterVec
	riotLatency  *prometheus.HistogramVec

	commands *prometheus.CounterVec
}

type Option func(*Manager)

// WithNamespace overrides the metric name prefix.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithRegistry registers collectors on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithHistogramBuckets sets the latency buckets, in seconds.
func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) > 0 {
			m.buckets = b
		}
	}
}

// WithRuntimeCollectors adds the Go and process collectors.
func WithRuntimeCollectors(on bool) Option { return func(m *Manager) { m.runtime = on } }

func New(opts ...Option) *Manager {
	m := &Manager{
		namespace: defaultNamespace,
		buckets:   prometheus.DefBuckets,
		runtime:   true,
	}
	for _, o := range opts {
		o(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)
	ns := m.namespace

	m.refreshRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "refresh", Name: "runs_total",
		Help: "Refresh runs by outcome (ok or the failed stage).",
	}, []string{"outcome"})
	m.refreshDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "refresh", Name: "duration_seconds",
		Help:    "Wall time of a refresh run.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})
	m.refreshLast = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "refresh", Name: "last_success_timestamp_seconds",
		Help: "Unix time of the last successful refresh.",
	})
	m.refreshPlayers = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "refresh", Name: "players",
		Help: "Players in the last report by section.",
	}, []string{"section"})

	m.fetchResults = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "fetch", Name: "results_total",
		Help: "Player lookups by result status.",
	}, []string{"status"})
	m.fetchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "fetch", Name: "duration_seconds",
		Help:    "Wall time of one player lookup including pacing.",
		Buckets: m.buckets,
	})

	m.rosterEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "roster", Name: "entries",
		Help: "Entries in the cached roster.",
	})
	m.rosterLoads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "roster", Name: "loads_total",
		Help: "Roster cache updates, reads and clears.",
	})

	m.riotRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "riot", Name: "requests_total",
		Help: "Riot API requests by endpoint and status code (0 for transport errors).",
	}, []string{"endpoint", "code"})
	m.riotLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "riot", Name: "request_duration_seconds",
		Help:    "Riot API request latency.",
		Buckets: m.buckets,
	}, []string{"endpoint"})

	m.commands = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "bot", Name: "commands_total",
		Help: "Chat commands by name and outcome.",
	}, []string{"command", "outcome"})
}

// Registry is the registry backing Handler.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRefresh records a finished run.
func (m *Manager) ObserveRefresh(out refresh.Outcome, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var f *refresh.Failure
		if errors.As(err, &f) {
			outcome = f.Stage
		}
	}
	m.refreshRuns.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(out.Took.Seconds())
	if out.Path != "" {
		m.refreshPlayers.WithLabelValues("ranked").Set(float64(out.Ranked))
		m.refreshPlayers.WithLabelValues("unranked").Set(float64(out.Unranked))
		m.refreshPlayers.WithLabelValues("failed").Set(float64(out.Failed))
	}
	if err == nil {
		m.refreshLast.Set(float64(out.StartedAt.Add(out.Took).Unix()))
	}
}

// ObserveFetch records one player lookup.
func (m *Manager) ObserveFetch(s rank.Status, took time.Duration) {
	if m == nil {
		return
	}
	m.fetchResults.WithLabelValues(s.String()).Inc()
	m.fetchDuration.Observe(took.Seconds())
}

// RosterLoaded records a roster re-read or clear.
func (m *Manager) RosterLoaded(entries int) {
	if m == nil {
		return
	}
	m.rosterLoads.Inc()
	m.rosterEntries.Set(float64(entries))
}

// ObserveRiot records one Riot API exchange.
func (m *Manager) ObserveRiot(endpoint string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.riotRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.riotLatency.WithLabelValues(endpoint).Observe(took.Seconds())
}

// ObserveCommand records one handled chat command.
func (m *Manager) ObserveCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}
