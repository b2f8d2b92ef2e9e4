// Package metrics exposes agent activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackwell-systems/voidstore/internal/operations"
)

// Collectors holds the agent metrics. It implements dispatch.Observer and
// agent.Recorder.
type Collectors struct {
	tasksSubmitted  *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	messagesHandled *prometheus.CounterVec
	spotlightRuns   *prometheus.CounterVec
	spotlightSize   prometheus.Gauge
	operations      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		tasksSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voidstore_tasks_submitted_total",
				Help: "Background tasks started, by kind",
			},
			[]string{"kind"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voidstore_task_duration_seconds",
				Help:    "Duration of background tasks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		messagesHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voidstore_messages_handled_total",
				Help: "Messages applied by the owner loop, by kind",
			},
			[]string{"kind"},
		),
		spotlightRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voidstore_spotlight_refresh_total",
				Help: "Spotlight refreshes, by result",
			},
			[]string{"result"},
		),
		spotlightSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voidstore_spotlight_cache_entries",
			Help: "Packages in the spotlight cache",
		}),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voidstore_operations_total",
				Help: "Finalized package operations, by type and status",
			},
			[]string{"type", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			c.tasksSubmitted,
			c.taskDuration,
			c.messagesHandled,
			c.spotlightRuns,
			c.spotlightSize,
			c.operations,
		)
	}
	return c
}

// TaskStarted implements dispatch.Observer.
func (c *Collectors) TaskStarted(kind string) {
	c.tasksSubmitted.WithLabelValues(kind).Inc()
}

// TaskFinished implements dispatch.Observer.
func (c *Collectors) TaskFinished(kind string, elapsed time.Duration) {
	c.taskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// MessageHandled implements agent.Recorder.
func (c *Collectors) MessageHandled(kind string) {
	c.messagesHandled.WithLabelValues(kind).Inc()
}

// SpotlightRefreshed implements agent.Recorder.
func (c *Collectors) SpotlightRefreshed(result string, entries int) {
	c.spotlightRuns.WithLabelValues(result).Inc()
	c.spotlightSize.Set(float64(entries))
}

// OperationFinished implements agent.Recorder.
func (c *Collectors) OperationFinished(kind operations.Kind, status operations.Status) {
	c.operations.WithLabelValues(string(kind), string(status)).Inc()
}
