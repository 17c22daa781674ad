package districtcooling

import (
	"fmt"
)

// ConfigurationError reports malformed parameters or a topology that is not a
// spanning tree rooted at a single reference node.
type ConfigurationError struct {
	Reason string
}

func configErrorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// OutOfRangeError is returned when the friction correlation is evaluated
// outside its valid Reynolds number / relative roughness domain.
type OutOfRangeError struct {
	Reynolds          float64 // -
	RelativeRoughness float64 // -
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("friction factor out of range: Re=%g, relative roughness=%g", e.Reynolds, e.RelativeRoughness)
}

// SolveStatus is the outcome reported by the LP engine.
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "optimal"
	StatusInfeasible SolveStatus = "infeasible"
	StatusUnbounded  SolveStatus = "unbounded"
	StatusFailed     SolveStatus = "failed"
)

// SolveError carries the solver status of a dispatch problem that did not
// reach an optimum.
type SolveError struct {
	Status SolveStatus
	Err    error
}

func (e *SolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("solve: %s", e.Status)
	}
	return fmt.Sprintf("solve: %s: %v", e.Status, e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }

// NonConvergenceError is returned when the fixed-point iteration exceeds its
// iteration bound.
type NonConvergenceError struct {
	Iterations int
	MaxDelta   float64 // m3/s
	Tolerance  float64 // m3/s
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("no convergence after %d iterations: max delta %g >= tolerance %g",
		e.Iterations, e.MaxDelta, e.Tolerance)
}
