// Package events carries what the facade observes about a call to the host's
// observability pipeline.
//
// The facade never logs directly. It reports inconsistencies, slow
// destination calls, timeouts and swallowed destination failures to a [Sink]
// the host injects; [LogSink] is the default.
package events

import (
	"context"
	"time"

	"github.com/surrealdb/migrator/pkg/consistency"
	"github.com/surrealdb/migrator/pkg/operation"
)

// Call names the facade call an event belongs to.
type Call struct {
	Component string
	Operation string
	Kind      operation.Kind
}

// InconsistencyEvent is reported when both results were compared and differ.
type InconsistencyEvent struct {
	Call
	Result consistency.Result
}

// SlowCallEvent is reported when the destination answered in time but slower
// than the slow-call threshold.
type SlowCallEvent struct {
	Call
	Elapsed   time.Duration
	Threshold time.Duration
}

// TimeoutEvent is reported when the facade stopped waiting for the
// destination.
type TimeoutEvent struct {
	Call
	Wait time.Duration
	// Interrupted is set when the destination call was cancelled.
	Interrupted bool
	// FellBack is set when the source result was returned instead.
	FellBack bool
}

// SwallowedEvent is reported when a destination failure was masked by
// returning the source result.
type SwallowedEvent struct {
	Call
	Err error
}

type Sink interface {
	Inconsistent(ctx context.Context, e InconsistencyEvent)
	SlowCall(ctx context.Context, e SlowCallEvent)
	Timeout(ctx context.Context, e TimeoutEvent)
	Swallowed(ctx context.Context, e SwallowedEvent)
}

// Nop ignores every event. Embed it to implement only some of Sink.
type Nop struct{}

func (Nop) Inconsistent(context.Context, InconsistencyEvent) {}
func (Nop) SlowCall(context.Context, SlowCallEvent)         {}
func (Nop) Timeout(context.Context, TimeoutEvent)           {}
func (Nop) Swallowed(context.Context, SwallowedEvent)       {}

// Listener is told about every swallowed destination failure, for alerting.
type Listener func(err error, component string)

// ListenerSink adapts a Listener to a Sink reacting to swallowed failures only.
func ListenerSink(l Listener) Sink {
	return listenerSink{l: l}
}

type listenerSink struct {
	Nop
	l Listener
}

func (s listenerSink) Swallowed(_ context.Context, e SwallowedEvent) {
	s.l(e.Err, e.Component)
}

// Multi forwards every event to all sinks, in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Inconsistent(ctx context.Context, e InconsistencyEvent) {
	for _, s := range m {
		s.Inconsistent(ctx, e)
	}
}

func (m multi) SlowCall(ctx context.Context, e SlowCallEvent) {
	for _, s := range m {
		s.SlowCall(ctx, e)
	}
}

func (m multi) Timeout(ctx context.Context, e TimeoutEvent) {
	for _, s := range m {
		s.Timeout(ctx, e)
	}
}

func (m multi) Swallowed(ctx context.Context, e SwallowedEvent) {
	for _, s := range m {
		s.Swallowed(ctx, e)
	}
}
