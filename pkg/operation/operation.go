// Package operation holds the vocabulary shared by the facade and its policies:
// what kind of call an operation is, how its destination call is scheduled and
// which store it targets.
package operation

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind tells whether an operation only reads or also mutates a store.
type Kind string

const (
	Read  Kind = "READ"
	Write Kind = "WRITE"
)

func (k Kind) Valid() bool {
	return k == Read || k == Write
}

// ParseKind accepts the kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown operation kind: %q", s)
	}
	return k, nil
}

// Mode decides when the destination call is submitted relative to the source call.
type Mode int

const (
	// Parallel submits the destination call before the source call starts.
	Parallel Mode = iota
	// Serial submits the destination call only after the source call succeeded.
	Serial
)

func (m Mode) String() string {
	switch m {
	case Parallel:
		return "parallel"
	case Serial:
		return "serial"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Target pins an operation to one store regardless of the migration phase.
type Target int

const (
	// TargetPhase follows the dispatch decision for the current phase.
	TargetPhase Target = iota
	// TargetSourceOnly never calls the destination.
	TargetSourceOnly
	// TargetDestinationOnly never calls the source.
	TargetDestinationOnly
)

func (t Target) String() string {
	switch t {
	case TargetPhase:
		return "phase"
	case TargetSourceOnly:
		return "source_only"
	case TargetDestinationOnly:
		return "destination_only"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// Descriptor identifies one business call. It is built at call entry and not
// modified afterwards.
type Descriptor struct {
	Component  string
	Name       string
	Kind       Kind
	Args       []any
	ResultType reflect.Type
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s.%s(%s)", d.Component, d.Name, d.Kind)
}
