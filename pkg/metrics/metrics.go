// Package metrics exposes scheduler counters in the Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mteval"

// Reclaim reasons
const (
	ReclaimExpired      = "expired"
	ReclaimOrphaned     = "orphaned"
	ReclaimUnregistered = "unregistered"
)

// Collector scheduler metrics. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	workersRegistered *prometheus.CounterVec
	workersTimedOut   prometheus.Counter
	jobsCreated       *prometheus.CounterVec
	jobsLeased        *prometheus.CounterVec
	jobsReclaimed     *prometheus.CounterVec
	resultsReported   *prometheus.CounterVec
	reportsRejected   *prometheus.CounterVec
	reaperRuns        prometheus.Counter
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		workersRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_registered_total",
			Help:      "Workers registered, by metric",
		}, []string{"metric"}),
		workersTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_timed_out_total",
			Help:      "Workers marked TIMED_OUT by the reaper",
		}),
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Jobs created by the generator, by metric",
		}, []string{"metric"}),
		jobsLeased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_leased_total",
			Help:      "Jobs leased to workers, by metric",
		}, []string{"metric"}),
		jobsReclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reclaimed_total",
			Help:      "RUNNING jobs returned to PENDING, by reason",
		}, []string{"reason"}),
		resultsReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_reported_total",
			Help:      "Job results accepted, by metric",
		}, []string{"metric"}),
		reportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_rejected_total",
			Help:      "Job results rejected, by reason",
		}, []string{"reason"}),
		reaperRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_runs_total",
			Help:      "Completed reaper sweeps",
		}),
	}
	c.registry.MustRegister(
		c.workersRegistered,
		c.workersTimedOut,
		c.jobsCreated,
		c.jobsLeased,
		c.jobsReclaimed,
		c.resultsReported,
		c.reportsRejected,
		c.reaperRuns,
		collectors.NewGoCollector(),
	)
	return c
}

// Handler serves the registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) WorkerRegistered(metric string) {
	if c == nil {
		return
	}
	c.workersRegistered.WithLabelValues(metric).Inc()
}

func (c *Collector) WorkersTimedOut(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.workersTimedOut.Add(float64(n))
}

func (c *Collector) JobsCreated(metric string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.jobsCreated.WithLabelValues(metric).Add(float64(n))
}

func (c *Collector) JobLeased(metric string) {
	if c == nil {
		return
	}
	c.jobsLeased.WithLabelValues(metric).Inc()
}

func (c *Collector) JobsReclaimed(reason string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.jobsReclaimed.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) ResultReported(metric string) {
	if c == nil {
		return
	}
	c.resultsReported.WithLabelValues(metric).Inc()
}

func (c *Collector) ReportRejected(reason string) {
	if c == nil {
		return
	}
	c.reportsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) ReaperRun() {
	if c == nil {
		return
	}
	c.reaperRuns.Inc()
}
