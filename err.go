package migrator

import (
	"fmt"
	"time"

	"github.com/surrealdb/migrator/pkg/constants"
)

// OperationError reports a violation of the facade's own contract: an
// operation that is not registered, registered twice or with the wrong
// types, or a facade that was closed.
type OperationError struct {
	Component string
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Component, e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when the destination did not answer in time and
// there was no source result to fall back to.
type TimeoutError struct {
	Component string
	Operation string
	Wait      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("destination call %s.%s timed out after %s", e.Component, e.Operation, e.Wait)
}

func (e *TimeoutError) Unwrap() error {
	return constants.ErrTimeout
}
