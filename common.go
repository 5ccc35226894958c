package aprt

import (
	"errors"

	"go.uber.org/zap"

	"github.com/exascience/aprt/internal"
)

// Error kinds shared by all subpackages. Use errors.Is to test for them;
// the values returned by the subpackages usually wrap one of these with
// more context.
//
// Unsupported operations are reported with errors.ErrUnsupported from the
// standard library.
var (
	// ErrIllegalArgument is wrapped by the panics raised for invalid
	// ranges, precisions, or processor counts.
	ErrIllegalArgument = errors.New("illegal argument")

	// ErrRuntimeState is returned when an object is used after its owner
	// has torn it down.
	ErrRuntimeState = errors.New("illegal runtime state")

	// ErrLossOfPrecision signals that an extended computation produced no
	// net real precision. It must not be retried with the same inputs.
	ErrLossOfPrecision = errors.New("loss of precision")

	// ErrStreamFailure poisons a stream: broken pipe, interruption, or a
	// failed producer.
	ErrStreamFailure = errors.New("stream failure")

	// ErrNoSuchElement is returned when there is no element left to take.
	ErrNoSuchElement = errors.New("no such element")
)

/*
SetLogger installs the logger used by all subpackages.

The library does not log unless a logger is installed. Passing nil
restores the default no-op logger.
*/
func SetLogger(logger *zap.Logger) {
	internal.SetLogger(logger)
}

// Logger returns the currently installed logger.
func Logger() *zap.Logger {
	return internal.Logger()
}
