// Package metrics provides Prometheus collectors for annotation sync and
// backend traffic.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sensorhub/annotator/internal/reconcile"
)

// SyncMetrics records save batches. It implements reconcile.Recorder.
type SyncMetrics struct {
	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	batches      *prometheus.CounterVec
}

// NewSyncMetrics creates and registers the sync collectors.
func NewSyncMetrics(registry prometheus.Registerer) (*SyncMetrics, error) {
	m := &SyncMetrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_sync_tasks_total",
			Help: "Remote write tasks by operation and outcome",
		}, []string{"operation", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "annotator_sync_task_duration_seconds",
			Help:    "Duration of remote write tasks",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_sync_batches_total",
			Help: "Save batches by result",
		}, []string{"result"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sync metrics: %w", err)
	}
	return m, nil
}

// RecordTask implements reconcile.Recorder.
func (m *SyncMetrics) RecordTask(op reconcile.Operation, status reconcile.Status, elapsed time.Duration) {
	m.tasks.WithLabelValues(string(op), string(status)).Inc()
	// Blocked tasks never reach the backend
	if status != reconcile.StatusBlocked {
		m.taskDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	}
}

// RecordBatch implements reconcile.Recorder.
func (m *SyncMetrics) RecordBatch(result string) {
	m.batches.WithLabelValues(result).Inc()
}

// Describe implements prometheus.Collector.
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.tasks.Describe(ch)
	m.taskDuration.Describe(ch)
	m.batches.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.tasks.Collect(ch)
	m.taskDuration.Collect(ch)
	m.batches.Collect(ch)
}
