package migrator

import (
	"context"
	"fmt"

	"github.com/surrealdb/migrator/pkg/constants"
	"github.com/surrealdb/migrator/pkg/consistency"
	"github.com/surrealdb/migrator/pkg/operation"
)

// Handler is one store's implementation of an operation.
type Handler[A, R any] func(ctx context.Context, args A) (R, error)

// OperationSpec is the per-operation configuration given at registration.
type OperationSpec struct {
	Kind operation.Kind
	Mode operation.Mode
	// Target pins the operation to one store regardless of the phase.
	Target operation.Target
	// UnorderedArrays compares sequences in the results as multisets.
	UnorderedArrays bool
	// Fields limits what is compared and logged.
	Fields consistency.FieldRules
}

func (s OperationSpec) rules() consistency.Rules {
	return consistency.Rules{UnorderedArrays: s.UnorderedArrays, Fields: s.Fields}
}

type invoker interface {
	operationSpec() OperationSpec
}

type registration[A, R any] struct {
	name        string
	spec        OperationSpec
	source      Handler[A, R]
	destination Handler[A, R]
}

func (r *registration[A, R]) operationSpec() OperationSpec {
	return r.spec
}

// Register adds operation name to f. A handler may be nil only when the
// operation is pinned to the other store.
func Register[A, R any](f *Facade, name string, spec OperationSpec, source, destination Handler[A, R]) error {
	opErr := func(err error) error {
		return &OperationError{Component: f.component, Operation: name, Err: err}
	}

	if name == "" {
		return opErr(fmt.Errorf("%w: empty name", constants.ErrUnknownOperation))
	}
	if !spec.Kind.Valid() {
		return opErr(fmt.Errorf("invalid operation kind %q", spec.Kind))
	}
	if source == nil && spec.Target != operation.TargetDestinationOnly {
		return opErr(fmt.Errorf("%w: source", constants.ErrNoHandler))
	}
	if destination == nil && spec.Target != operation.TargetSourceOnly {
		return opErr(fmt.Errorf("%w: destination", constants.ErrNoHandler))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ops[name]; ok {
		return opErr(constants.ErrDuplicateOperation)
	}
	f.ops[name] = &registration[A, R]{
		name:        name,
		spec:        spec,
		source:      source,
		destination: destination,
	}
	return nil
}

func lookup[A, R any](f *Facade, name string) (*registration[A, R], error) {
	f.mu.RLock()
	op, ok := f.ops[name]
	f.mu.RUnlock()
	if !ok {
		return nil, &OperationError{Component: f.component, Operation: name, Err: constants.ErrUnknownOperation}
	}
	reg, ok := op.(*registration[A, R])
	if !ok {
		var (
			a A
			r R
		)
		return nil, &OperationError{
			Component: f.component,
			Operation: name,
			Err:       fmt.Errorf("%w: no handler for arguments %T returning %T", constants.ErrUnknownOperation, a, r),
		}
	}
	return reg, nil
}
