// Package errkind defines the controller's typed error kinds, so that
// callers can distinguish propagation behaviour (retry, fall back, fail the
// cycle, fail fatally at startup) with errors.As instead of string matching.
package errkind

import "fmt"

// ConfigInvalid is a fatal startup error: the process configuration could
// not be parsed or is missing a required field.
type ConfigInvalid struct {
	Reason string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("config invalid: %s", e.Reason)
}

// DataUnavailable is returned when an external data fetch (Core API) could
// not be satisfied after its bounded retry budget was exhausted.
type DataUnavailable struct {
	Reason string
	Err    error
}

func (e *DataUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("data unavailable: %s", e.Reason)
}

func (e *DataUnavailable) Unwrap() error { return e.Err }

// HorizonInvalid is returned when a planning request's horizon fails
// validation. It causes an immediate negative ack
// with no state mutation.
type HorizonInvalid struct {
	Reason string
}

func (e *HorizonInvalid) Error() string {
	return fmt.Sprintf("horizon invalid: %s", e.Reason)
}

// ModelLoadFailed is returned when the persisted thermal-model artifact
// could not be loaded or parsed.
type ModelLoadFailed struct {
	Path string
	Err  error
}

func (e *ModelLoadFailed) Error() string {
	return fmt.Sprintf("thermal model load failed: %s: %v", e.Path, e.Err)
}

func (e *ModelLoadFailed) Unwrap() error { return e.Err }

// ModelLearnFailed is returned when the thermal-model learner could not
// converge (infeasible, solver error, or insufficient samples). This is
// never fatal to the planner - the caller falls back to the previous or a
// default model.
type ModelLearnFailed struct {
	Reason string
	Err    error
}

func (e *ModelLearnFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("thermal model learn failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("thermal model learn failed: %s", e.Reason)
}

func (e *ModelLearnFailed) Unwrap() error { return e.Err }

// SolverInfeasible is returned when the convex solver reports INFEASIBLE or
// UNBOUNDED for a planning cycle.
type SolverInfeasible struct {
	Status string
}

func (e *SolverInfeasible) Error() string {
	return fmt.Sprintf("solver infeasible: status=%s", e.Status)
}

// SolverError is returned when the convex solver itself errors out (as
// opposed to determining infeasibility).
type SolverError struct {
	Err error
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("solver error: %v", e.Err)
}

func (e *SolverError) Unwrap() error { return e.Err }

// WriteFailed is returned when a single setpoint or schedule write to the
// Core API or TSDB fails. This is logged and execution continues - it is
// never fatal.
type WriteFailed struct {
	Target string
	Err    error
}

func (e *WriteFailed) Error() string {
	return fmt.Sprintf("write failed: %s: %v", e.Target, e.Err)
}

func (e *WriteFailed) Unwrap() error { return e.Err }

// BusTransient is returned for a recoverable message-bus error (connection
// drop, momentary broker unavailability).
type BusTransient struct {
	Err error
}

func (e *BusTransient) Error() string {
	return fmt.Sprintf("bus transient error: %v", e.Err)
}

func (e *BusTransient) Unwrap() error { return e.Err }
