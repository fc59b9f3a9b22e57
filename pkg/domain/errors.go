package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors of the measurement failure taxonomy. Failures are matched
// with errors.Is, so instrument drivers and measurements wrap these with
// fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrCompliance signals an instrument protection limit was reached.
	// Terminal for the measurement, never auto-retried.
	ErrCompliance = errors.New("compliance tripped")

	// ErrAnalysis signals a post-acquisition data quality check failure.
	// The only failure kind eligible for automatic retry.
	ErrAnalysis = errors.New("analysis failed")

	// ErrResource signals a communication failure on an instrument
	// resource (socket or serial layer).
	ErrResource = errors.New("resource error")

	// ErrStopRequested signals cooperative cancellation. It is not a
	// failure: it surfaces as StateStopped, never as an error past the
	// worker boundary.
	ErrStopRequested = errors.New("stop requested")
)

// TableError is a firmware error reported by the table controller.
type TableError struct {
	Code    int
	Message string
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table error %d: %s", e.Code, e.Message)
}

// TableMachineError is a hardware fault reported by the table controller.
type TableMachineError struct {
	Code    int
	Message string
}

func (e *TableMachineError) Error() string {
	return fmt.Sprintf("table machine error %d: %s", e.Code, e.Message)
}

// TableCalibrationError signals that the table requires calibration before
// motion commands are accepted.
type TableCalibrationError struct {
	Caldone Caldone
}

func (e *TableCalibrationError) Error() string {
	return fmt.Sprintf("table requires calibration (caldone %d, %d, %d)", e.Caldone.X, e.Caldone.Y, e.Caldone.Z)
}

// StateForError maps a measurement failure to the node state recorded on
// the tree.
func StateForError(err error) NodeState {
	switch {
	case err == nil:
		return StateSuccess
	case errors.Is(err, ErrStopRequested):
		return StateStopped
	case errors.Is(err, ErrCompliance):
		return StateCompliance
	case errors.Is(err, ErrAnalysis):
		return StateAnalysisError
	case errors.Is(err, ErrResource):
		return StateTimeout
	default:
		return StateError
	}
}
