// Package promsink exports facade events as Prometheus metrics.
package promsink

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/surrealdb/migrator/pkg/events"
)

const subsystem = "facade"

// Sink counts events per component and operation.
type Sink struct {
	inconsistencies *prometheus.CounterVec
	slowCalls       *prometheus.CounterVec
	slowDuration    *prometheus.HistogramVec
	timeouts        *prometheus.CounterVec
	swallowed       *prometheus.CounterVec
}

var _ events.Sink = (*Sink)(nil)

// New creates the metrics under namespace and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Sink, error) {
	s := &Sink{
		inconsistencies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "inconsistencies_total",
				Help:      "Calls whose source and destination results differed.",
			},
			[]string{"component", "operation", "kind"},
		),
		slowCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "slow_destination_calls_total",
				Help:      "Destination calls slower than the slow-call threshold.",
			},
			[]string{"component", "operation", "kind"},
		),
		slowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "slow_destination_call_duration_seconds",
				Help:      "Duration of destination calls slower than the slow-call threshold.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component", "operation"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "destination_timeouts_total",
				Help:      "Destination calls the facade stopped waiting for.",
			},
			[]string{"component", "operation", "kind", "interrupted"},
		),
		swallowed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "swallowed_destination_errors_total",
				Help:      "Destination failures masked by the source result.",
			},
			[]string{"component", "operation", "kind"},
		),
	}

	for _, c := range []prometheus.Collector{s.inconsistencies, s.slowCalls, s.slowDuration, s.timeouts, s.swallowed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sink) Inconsistent(_ context.Context, e events.InconsistencyEvent) {
	s.inconsistencies.WithLabelValues(e.Component, e.Operation, string(e.Kind)).Inc()
}

func (s *Sink) SlowCall(_ context.Context, e events.SlowCallEvent) {
	s.slowCalls.WithLabelValues(e.Component, e.Operation, string(e.Kind)).Inc()
	s.slowDuration.WithLabelValues(e.Component, e.Operation).Observe(e.Elapsed.Seconds())
}

func (s *Sink) Timeout(_ context.Context, e events.TimeoutEvent) {
	s.timeouts.WithLabelValues(e.Component, e.Operation, string(e.Kind), strconv.FormatBool(e.Interrupted)).Inc()
}

func (s *Sink) Swallowed(_ context.Context, e events.SwallowedEvent) {
	s.swallowed.WithLabelValues(e.Component, e.Operation, string(e.Kind)).Inc()
}
