package districtcooling

import (
	"context"
	"fmt"
)

// CouplerState is the phase of the fixed-point iteration.
type CouplerState string

const (
	StateInitializing CouplerState = "initializing"
	StateIterating    CouplerState = "iterating"
	StateConverged    CouplerState = "converged"
	StateFailed       CouplerState = "failed"
)

// Dispatcher is implemented by *DispatchOptimizer.
var _ Dispatcher = (*DispatchOptimizer)(nil)

// EquilibriumCoupler alternates the hydraulic solve and the dispatch until the
// building flows the dispatch asks for and the flows the head differences
// were computed from agree.
type EquilibriumCoupler struct {
	hydraulics *HydraulicSolver
	dispatcher Dispatcher
	steps      int
	opts       options
}

// Equilibrium is the converged pair of hydraulic state and schedule.
type Equilibrium struct {
	State          CouplerState
	Iterations     int
	Flows          *TimeSeries // building flows of the last hydraulic solve, m3/s, [b, T]
	HeadDifference *TimeSeries // m, [b, T]
	Schedule       *Schedule
	Hydraulics     *GridEquilibrium
}

// NewEquilibriumCoupler returns a coupler over the horizon of the dispatcher.
func NewEquilibriumCoupler(hydraulics *HydraulicSolver, dispatcher Dispatcher, steps int, opts ...Option) (*EquilibriumCoupler, error) {
	if hydraulics == nil || dispatcher == nil {
		return nil, configErrorf("coupler needs a hydraulic solver and a dispatcher")
	}
	if steps <= 0 {
		return nil, configErrorf("coupler needs at least one step, got %d", steps)
	}
	o := newOptions(opts)
	if !(o.tolerance > 0) {
		return nil, configErrorf("convergence tolerance must be positive, got %g", o.tolerance)
	}
	if o.maxIterations <= 0 {
		return nil, configErrorf("iteration bound must be positive, got %d", o.maxIterations)
	}
	return &EquilibriumCoupler{hydraulics: hydraulics, dispatcher: dispatcher, steps: steps, opts: o}, nil
}

/*
Runs the fixed-point iteration.

	Returns:
		the equilibrium, or *NonConvergenceError once the iteration bound is hit
	Notes:
		The estimate starts at zero flow. Each iteration solves the grid for
		the estimate, dispatches against the resulting head differences and
		moves the estimate half way to the dispatched flows. It stops when no
		building flow moved by the tolerance or more.
*/
func (c *EquilibriumCoupler) Run(ctx context.Context) (*Equilibrium, error) {
	log := c.opts.logger
	ids := c.hydraulics.Topology().BuildingIDs()
	estimate := NewTimeSeries(ids, c.steps)
	state := StateInitializing
	log.Info().Str("state", string(state)).Int("buildings", len(ids)).Int("steps", c.steps).Msg("equilibrium")

	delta := 0.0
	for it := 1; it <= c.opts.maxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state = StateIterating

		eq, err := c.hydraulics.Solve(ctx, estimate)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: hydraulics: %w", it, err)
		}
		schedule, err := c.dispatcher.Optimize(ctx, eq.ETSHeadDifference)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		if !estimate.SameShape(schedule.ETSFlows) {
			return nil, configErrorf("dispatch returned building flows of a different shape")
		}

		next := estimate.Mean(schedule.ETSFlows)
		delta = next.MaxAbsDiff(estimate)
		log.Info().
			Int("iteration", it).
			Float64("max_delta", delta).
			Float64("objective", schedule.Objective).
			Msg("iteration")

		if delta < c.opts.tolerance {
			state = StateConverged
			log.Info().Str("state", string(state)).Int("iterations", it).Msg("converged")
			return &Equilibrium{
				State:          state,
				Iterations:     it,
				Flows:          estimate,
				HeadDifference: eq.ETSHeadDifference,
				Schedule:       schedule,
				Hydraulics:     eq,
			}, nil
		}
		estimate = next
	}

	state = StateFailed
	log.Warn().Str("state", string(state)).Float64("max_delta", delta).Msg("no convergence")
	return nil, &NonConvergenceError{Iterations: c.opts.maxIterations, MaxDelta: delta, Tolerance: c.opts.tolerance}
}
