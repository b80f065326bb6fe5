// Package metrics provides Prometheus instrumentation for the Emarsys tap.
//
// All collectors are registered on Registry rather than the default
// registerer so a finished run can push exactly its own series to a
// Pushgateway.
//
// # Basic Usage
//
//	metrics.RecordsEmitted.WithLabelValues("contacts").Add(float64(len(batch)))
//
//	timer := metrics.NewTimer()
//	resp, err := client.Do(req)
//	metrics.APIRequestDuration.WithLabelValues("GET", "/contact/query/", status).
//	    Observe(timer.Stop().Seconds())
//
//	if err := metrics.Push(ctx, cfg.Observability.MetricsPushgateway, "emarsys-tap"); err != nil {
//	    logger.Warn("metrics push failed", zap.Error(err))
//	}
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every collector defined in this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// RecordsEmitted counts records handed to the sink.
	// Labels: stream
	RecordsEmitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emarsys_records_emitted_total",
			Help: "Total number of records written to the sink",
		},
		[]string{"stream"},
	)

	// PagesFetched counts flushed pages per paginated stream.
	PagesFetched = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emarsys_pages_fetched_total",
			Help: "Total number of collection pages fetched and flushed",
		},
		[]string{"stream"},
	)

	// APIRequestDuration tracks API round trips in seconds.
	// Labels: method, path (the logical endpoint, not the expanded URL), status
	APIRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emarsys_api_request_duration_seconds",
			Help:    "Emarsys API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RateLimitWait tracks time spent blocked on the metric job window.
	RateLimitWait = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "emarsys_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the metric job rate limit window",
			Buckets: []float64{0, 1, 5, 15, 30, 45, 61, 120},
		},
	)

	// JobAttempts counts metric job creation attempts by outcome
	// (created, rate_limited, failed).
	JobAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emarsys_metric_job_attempts_total",
			Help: "Metric job creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// JobPolls counts result polls by outcome (ready, pending, timeout).
	JobPolls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emarsys_metric_job_polls_total",
			Help: "Metric job result polls by outcome",
		},
		[]string{"outcome"},
	)

	// SyncCellsCompleted counts finished (campaign, metric, date) cells.
	SyncCellsCompleted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emarsys_sync_cells_completed_total",
			Help: "Completed metric sync cells",
		},
		[]string{"metric"},
	)

	// CheckpointWrites counts state writes by backend and status.
	CheckpointWrites = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emarsys_checkpoint_writes_total",
			Help: "Checkpoint writes by backend and status",
		},
		[]string{"backend", "status"},
	)

	// StreamDuration tracks how long each stream sync took.
	StreamDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emarsys_stream_sync_duration_seconds",
			Help:    "Stream sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"stream", "status"},
	)
)

// Timer measures an operation duration.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer was created.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Push sends the contents of Registry to a Pushgateway under job.
// An empty url disables pushing.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
