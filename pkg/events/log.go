package events

import (
	"context"
	"errors"

	"github.com/surrealdb/migrator/pkg/constants"
	"github.com/surrealdb/migrator/pkg/logger"
)

// LogSink writes events to a Logger. Divergences are size-bounded: see
// consistency.Report.Log.
type LogSink struct {
	logger logger.Logger
	limit  int
}

type LogSinkOption func(*LogSink)

// WithLogLimit sets the byte limit of a divergence logged in full at warn.
func WithLogLimit(n int) LogSinkOption {
	return func(s *LogSink) {
		s.limit = n
	}
}

func NewLogSink(l logger.Logger, opts ...LogSinkOption) *LogSink {
	s := &LogSink{logger: l, limit: constants.DefaultLogLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LogSink) Inconsistent(_ context.Context, e InconsistencyEvent) {
	e.Result.Report().Log(s.logger, s.limit,
		"component", e.Component,
		"operation", e.Operation,
		"kind", string(e.Kind),
	)
}

func (s *LogSink) SlowCall(_ context.Context, e SlowCallEvent) {
	s.logger.Warn("slow destination call",
		"component", e.Component,
		"operation", e.Operation,
		"elapsed", e.Elapsed,
		"threshold", e.Threshold,
	)
}

func (s *LogSink) Timeout(_ context.Context, e TimeoutEvent) {
	s.logger.Warn("destination call timed out",
		"component", e.Component,
		"operation", e.Operation,
		"wait", e.Wait,
		"interrupted", e.Interrupted,
		"fell_back", e.FellBack,
	)
}

// Swallowed logs at warn, except timeouts that Timeout already reported.
func (s *LogSink) Swallowed(_ context.Context, e SwallowedEvent) {
	args := []any{
		"component", e.Component,
		"operation", e.Operation,
		"error", e.Err,
	}
	if errors.Is(e.Err, constants.ErrTimeout) {
		s.logger.Debug("destination timeout swallowed, returning source result", args...)
		return
	}
	s.logger.Warn("destination failure swallowed, returning source result", args...)
}
