// Package observability exposes engine lifecycle events as Prometheus metrics.
package observability

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parley"

// Metrics holds the collectors fed by the engine's lifecycle hooks.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	CycleSteps    prometheus.Histogram
	StateEntries  *prometheus.CounterVec
	ActionCalls   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Processed inbound events by flow and outcome status.",
		}, []string{"flow", "status"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent processing one inbound event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		CycleSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_steps",
			Help:      "States and jumps chained within one cycle.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
		StateEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_entries_total",
			Help:      "State entries by flow and state.",
		}, []string{"flow", "state"}),
		ActionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_calls_total",
			Help:      "Invoked actions by function and result kind.",
		}, []string{"function", "result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Cycles, m.CycleDuration, m.CycleSteps, m.StateEntries, m.ActionCalls)
	}
	return m
}

// Hooks returns lifecycle hooks that update the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.StateEntries.WithLabelValues(e.FlowID, e.State).Inc()
		},
		OnActionReturn: func(_ context.Context, e *domain.ActionEvent) {
			m.ActionCalls.WithLabelValues(e.Function, e.Result.String()).Inc()
		},
		OnCycleEnd: func(_ context.Context, e *domain.CycleEvent) {
			m.Cycles.WithLabelValues(e.FlowID, e.Status).Inc()
			m.CycleDuration.WithLabelValues(e.Status).Observe(e.Duration.Seconds())
			m.CycleSteps.Observe(float64(e.Steps))
		},
	}
}
