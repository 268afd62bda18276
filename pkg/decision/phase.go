package decision

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/surrealdb/migrator/pkg/constants"
	"github.com/surrealdb/migrator/pkg/operation"
)

// Phase is a stage of the migration.
type Phase string

const (
	// PhaseSourceOnly uses only the source store, before the migration starts.
	// The destination is never called.
	PhaseSourceOnly Phase = "source_only"

	// PhaseDualRead reads from both stores and compares the results. Writes
	// still go to the source only.
	PhaseDualRead Phase = "dual_read"

	// PhaseDualWrite reads and writes both stores. The source stays
	// authoritative and every result pair is compared.
	PhaseDualWrite Phase = "dual_write"

	// PhaseDestinationRead serves reads from the destination, falling back to
	// the source when the destination fails. Writes go to both stores and are
	// compared.
	PhaseDestinationRead Phase = "destination_read"

	// PhaseDestinationOnly uses only the destination store, after cutover.
	// Destination failures are no longer masked.
	PhaseDestinationOnly Phase = "destination_only"
)

var phases = []Phase{
	PhaseSourceOnly,
	PhaseDualRead,
	PhaseDualWrite,
	PhaseDestinationRead,
	PhaseDestinationOnly,
}

// Phases returns every phase in migration order.
func Phases() []Phase {
	return append([]Phase(nil), phases...)
}

func (p Phase) index() int {
	for i, q := range phases {
		if q == p {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool {
	return p.index() >= 0
}

// Before reports whether p comes earlier in the migration than q.
func (p Phase) Before(q Phase) bool {
	return p.index() < q.index()
}

func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", constants.ErrInvalidPhase, s)
	}
	return p, nil
}

// Decision returns the dispatch answer of phase p for kind.
func (p Phase) Decision(kind operation.Kind) Decision {
	read := kind == operation.Read
	d := Decision{Phase: p}
	switch p {
	case PhaseSourceOnly:
		d.CallSource = true
	case PhaseDualRead:
		d.CallSource = true
		d.CallDestination = read
		d.VerifyConsistency = read
	case PhaseDualWrite:
		d.CallSource = true
		d.CallDestination = true
		d.VerifyConsistency = true
	case PhaseDestinationRead:
		d.CallSource = true
		d.CallDestination = true
		d.VerifyConsistency = !read
	case PhaseDestinationOnly:
		d.CallDestination = true
		d.DestinationOnly = true
	default:
		d.CallSource = true
	}
	return d
}

// Observer is told about every successful transition.
type Observer func(from, to Phase)

// PhaseProvider is an in-process Provider driven by an explicit phase.
//
// Transitions may move one step forward, or any number of steps back to roll
// the migration back.
type PhaseProvider struct {
	mu        sync.RWMutex
	phase     Phase
	observers []Observer
}

func NewPhaseProvider(initial Phase) (*PhaseProvider, error) {
	if !initial.Valid() {
		return nil, fmt.Errorf("%w: %q", constants.ErrInvalidPhase, initial)
	}
	return &PhaseProvider{phase: initial}, nil
}

func (p *PhaseProvider) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// SetPhase moves the migration to phase. Setting the current phase is a no-op.
func (p *PhaseProvider) SetPhase(phase Phase) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", constants.ErrInvalidPhase, phase)
	}

	p.mu.Lock()
	from := p.phase
	if from == phase {
		p.mu.Unlock()
		return nil
	}
	if phase.index() > from.index()+1 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s to %s skips a phase", constants.ErrInvalidPhaseTransition, from, phase)
	}
	p.phase = phase
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	for _, o := range observers {
		o(from, phase)
	}
	return nil
}

// Observe registers o for future transitions.
func (p *PhaseProvider) Observe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *PhaseProvider) Decide(_ context.Context, _ string, kind operation.Kind) Decision {
	return p.Phase().Decision(kind)
}
