// ============================================================================
// Beaver Queue Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose queue metrics for Prometheus monitoring
//          (spec.md §10: supplemented observability, ambient per the
//          teacher's own metrics module).
//
// Monitoring Philosophy:
//   Based on RED (Rate, Errors, Duration) and USE (Utilization, Saturation,
//   Errors), giving operators the signals spec.md §9's testable properties
//   describe in prose a way to alert on them in production.
//
// Metric Categories:
//
//   1. Job Counters - cumulative, monotonically increasing:
//      - jobs_submitted_total, jobs_claimed_total, jobs_completed_total,
//        jobs_retried_total, jobs_dead_total, jobs_recovered_total
//
//   2. Performance Metrics (Histogram):
//      - job_latency_seconds: submit-to-terminal latency distribution
//
//   3. Status Metrics (Gauge):
//      - queue_depth: jobs currently Queued or Scheduled
//      - in_flight_jobs: jobs currently InProgress
//
// Prometheus Query Examples:
//
//   # Jobs completed per minute
//   rate(jobs_completed_total[1m])
//
//   # 95th percentile latency
//   histogram_quantile(0.95, job_latency_seconds_bucket)
//
//   # Retry rate relative to claims
//   rate(jobs_retried_total[5m]) / rate(jobs_claimed_total[5m])
//
//   # Backlog
//   queue_depth + in_flight_jobs
//
// HTTP Endpoint:
//   Exposed via /metrics, scraped by Prometheus, OpenMetrics/Prometheus
//   text format.
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one queue instance. It owns a
// private registry rather than the global DefaultRegisterer so multiple
// Collectors (e.g. one per test) never collide on metric registration.
type Collector struct {
	registry *prometheus.Registry

	jobsSubmitted prometheus.Counter
	jobsClaimed   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsRetried   prometheus.Counter
	jobsDead      prometheus.Counter
	jobsRecovered prometheus.Counter

	jobLatency   prometheus.Histogram
	recoveryTime prometheus.Gauge

	queueDepth   prometheus.Gauge
	jobsInFlight prometheus.Gauge
}

// NewCollector creates a new metrics collector and registers its metrics
// against a fresh private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Total number of jobs submitted to the queue",
		}),
		jobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_claimed_total",
			Help: "Total number of jobs claimed by a worker",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		}),
		jobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_retried_total",
			Help: "Total number of job failures that were requeued for retry",
		}),
		jobsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_dead_total",
			Help: "Total number of jobs that exhausted their retry budget",
		}),
		jobsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_recovered_total",
			Help: "Total number of stuck in-progress jobs reclaimed by the recovery loop",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "job_latency_seconds",
			Help:    "Submit-to-terminal job latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recovery_pass_duration_seconds",
			Help: "Duration of the last stuck-job recovery pass in seconds",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of jobs in Queued or Scheduled status",
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "in_flight_jobs",
			Help: "Current number of jobs in InProgress status",
		}),
	}

	c.registry.MustRegister(
		c.jobsSubmitted, c.jobsClaimed, c.jobsCompleted,
		c.jobsRetried, c.jobsDead, c.jobsRecovered,
		c.jobLatency, c.recoveryTime,
		c.queueDepth, c.jobsInFlight,
	)

	return c
}

// RecordSubmit records a job entering the queue.
func (c *Collector) RecordSubmit() { c.jobsSubmitted.Inc() }

// RecordClaim records a job being claimed by a worker.
func (c *Collector) RecordClaim() { c.jobsClaimed.Inc() }

// RecordCompleted records a job completing successfully, with its
// submit-to-completion latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.jobsCompleted.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordRetried records a failed attempt that was requeued with backoff.
func (c *Collector) RecordRetried() { c.jobsRetried.Inc() }

// RecordDead records a job that exhausted its retry budget, with its
// submit-to-failure latency.
func (c *Collector) RecordDead(latencySeconds float64) {
	c.jobsDead.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordRecovered records a stuck job reclaimed by the recovery loop.
func (c *Collector) RecordRecovered(count int) {
	c.jobsRecovered.Add(float64(count))
}

// SetRecoveryPassDuration sets the duration of the last recovery pass.
func (c *Collector) SetRecoveryPassDuration(seconds float64) {
	c.recoveryTime.Set(seconds)
}

// UpdateQueueStats updates the instantaneous queue-depth/in-flight gauges.
func (c *Collector) UpdateQueueStats(queueDepth, inFlight int) {
	c.queueDepth.Set(float64(queueDepth))
	c.jobsInFlight.Set(float64(inFlight))
}

// Handler returns the HTTP handler serving this collector's metrics in
// Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer starts a standalone Prometheus metrics HTTP server exposing
// c's metrics on /metrics.
func (c *Collector) StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
