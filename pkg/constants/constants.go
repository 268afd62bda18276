package constants

import "errors"

// Errors
var (
	ErrTimeout                = errors.New("timeout")
	ErrInterrupted            = errors.New("interrupted after timeout")
	ErrNoToken                = errors.New("no token in shared identifier store")
	ErrUnknownOperation       = errors.New("unknown operation")
	ErrDuplicateOperation     = errors.New("operation already registered")
	ErrNoHandler              = errors.New("handler is not set")
	ErrInvalidPhase           = errors.New("invalid migration phase")
	ErrInvalidPhaseTransition = errors.New("invalid migration phase transition")
	ErrClosed                 = errors.New("facade is closed")
)

const (
	// DefaultTimeoutMillis is applied to destination calls when no timeout property matches.
	DefaultTimeoutMillis = 2000

	// DefaultPropertyPrefix prefixes every timeout policy key.
	DefaultPropertyPrefix = "migrator"

	// DefaultLogLimit bounds the size of a divergence message logged at warn level.
	DefaultLogLimit = 10 * 1024

	// DefaultMaxFullDiffBytes bounds the serialized size compared with the full diff.
	DefaultMaxFullDiffBytes = 64 * 1024
)
