// Package metrics provides Prometheus collectors for the job engine.
//
// All methods are nil-safe: calls on a nil *Metrics are no-ops, so components can be
// built without metrics at zero cost.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gitdeck"

// Metrics groups every collector the engine reports to
type Metrics struct {
	// JobsDispatched counts jobs handed to the dispatcher, labeled by kind.
	JobsDispatched *prometheus.CounterVec

	// JobsCompleted counts non-stale completions, labeled by kind and outcome
	// ("success" or "failure").
	JobsCompleted *prometheus.CounterVec

	// JobsStale counts results discarded because a newer generation existed.
	JobsStale *prometheus.CounterVec

	// JobDuration observes backend call latency in seconds, labeled by kind.
	JobDuration *prometheus.HistogramVec

	// QueueFull counts rejected submissions, labeled by lane.
	QueueFull *prometheus.CounterVec

	// WorkerPanics counts closures that panicked, labeled by lane.
	WorkerPanics *prometheus.CounterVec

	// CacheLookups counts cache reads, labeled by result ("hit" or "miss").
	CacheLookups *prometheus.CounterVec

	// CacheInvalidations counts invalidations, labeled by scope ("key", "kind", "all").
	CacheInvalidations *prometheus.CounterVec

	// RemoteOps counts finished remote operations, labeled by kind and phase.
	RemoteOps *prometheus.CounterVec
}

// New creates and registers the engine metrics with reg. If reg is nil the
// collectors are created but not registered (useful for testing).
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		JobsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "dispatched_total",
			Help:      "Total number of jobs submitted to the dispatcher",
		}, []string{"kind"}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total number of current-generation job completions",
		}, []string{"kind", "outcome"}),
		JobsStale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "stale_total",
			Help:      "Total number of results discarded as superseded",
		}, []string{"kind"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Backend call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		}, []string{"kind"}),
		QueueFull: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "queue_full_total",
			Help:      "Total number of submissions rejected because the lane queue was full",
		}, []string{"lane"}),
		WorkerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "panics_total",
			Help:      "Total number of job closures that panicked",
		}, []string{"lane"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of result cache reads",
		}, []string{"result"}),
		CacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of cache invalidations",
		}, []string{"scope"}),
		RemoteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "operations_total",
			Help:      "Total number of remote operations by terminal phase",
		}, []string{"kind", "phase"}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				// Re-registering on engine restart is fine.
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return nil, err
				}
			}
		}
	}

	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobsDispatched,
		m.JobsCompleted,
		m.JobsStale,
		m.JobDuration,
		m.QueueFull,
		m.WorkerPanics,
		m.CacheLookups,
		m.CacheInvalidations,
		m.RemoteOps,
	}
}

// ObserveDispatch records a submitted job
func (m *Metrics) ObserveDispatch(kind string) {
	if m == nil {
		return
	}
	m.JobsDispatched.WithLabelValues(kind).Inc()
}

// ObserveCompletion records a current-generation completion and its latency
func (m *Metrics) ObserveCompletion(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.JobsCompleted.WithLabelValues(kind, outcome).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveStale records a discarded superseded result
func (m *Metrics) ObserveStale(kind string) {
	if m == nil {
		return
	}
	m.JobsStale.WithLabelValues(kind).Inc()
}

// ObserveQueueFull records a rejected submission
func (m *Metrics) ObserveQueueFull(lane string) {
	if m == nil {
		return
	}
	m.QueueFull.WithLabelValues(lane).Inc()
}

// ObservePanic records a recovered worker panic
func (m *Metrics) ObservePanic(lane string) {
	if m == nil {
		return
	}
	m.WorkerPanics.WithLabelValues(lane).Inc()
}

// ObserveCacheLookup records a cache read
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// ObserveInvalidation records an invalidation of the given scope
func (m *Metrics) ObserveInvalidation(scope string) {
	if m == nil {
		return
	}
	m.CacheInvalidations.WithLabelValues(scope).Inc()
}

// ObserveRemoteOp records a remote operation reaching a terminal phase
func (m *Metrics) ObserveRemoteOp(kind, phase string) {
	if m == nil {
		return
	}
	m.RemoteOps.WithLabelValues(kind, phase).Inc()
}
