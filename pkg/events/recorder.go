package events

import (
	"context"
	"sync"
)

// Recorder keeps every event it receives. It is meant for tests.
type Recorder struct {
	mu           sync.Mutex
	inconsistent []InconsistencyEvent
	slow         []SlowCallEvent
	timeouts     []TimeoutEvent
	swallowed    []SwallowedEvent
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Inconsistent(_ context.Context, e InconsistencyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inconsistent = append(r.inconsistent, e)
}

func (r *Recorder) SlowCall(_ context.Context, e SlowCallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slow = append(r.slow, e)
}

func (r *Recorder) Timeout(_ context.Context, e TimeoutEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, e)
}

func (r *Recorder) Swallowed(_ context.Context, e SwallowedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swallowed = append(r.swallowed, e)
}

func (r *Recorder) Inconsistencies() []InconsistencyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InconsistencyEvent(nil), r.inconsistent...)
}

func (r *Recorder) SlowCalls() []SlowCallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SlowCallEvent(nil), r.slow...)
}

func (r *Recorder) Timeouts() []TimeoutEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TimeoutEvent(nil), r.timeouts...)
}

func (r *Recorder) SwallowedErrors() []SwallowedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SwallowedEvent(nil), r.swallowed...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inconsistent = nil
	r.slow = nil
	r.timeouts = nil
	r.swallowed = nil
}
