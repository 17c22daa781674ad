package districtcooling

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constantDispatcher always asks for the same building flows and remembers
// the head differences it was given.
type constantDispatcher struct {
	flows *TimeSeries
	heads []*TimeSeries
	err   error
}

func (d *constantDispatcher) Optimize(ctx context.Context, headDiff *TimeSeries) (*Schedule, error) {
	d.heads = append(d.heads, headDiff.Clone())
	if d.err != nil {
		return nil, d.err
	}
	return &Schedule{Objective: 1, ETSFlows: d.flows.Clone()}, nil
}

func TestEquilibriumCouplerConverges(t *testing.T) {
	q := 0.01
	hydraulics := newHydraulicSolver(t, threeNodeTopology(t))
	dispatcher := &constantDispatcher{flows: ConstantTimeSeries([]string{"2"}, 3, q)}

	c, err := NewEquilibriumCoupler(hydraulics, dispatcher, 3, WithTolerance(1e-6))
	require.NoError(t, err)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	// the estimate closes half of the gap per iteration
	assert.Equal(t, StateConverged, res.State)
	assert.Equal(t, 14, res.Iterations)
	assert.Len(t, dispatcher.heads, 14)
	for step := 0; step < 3; step++ {
		assert.InDelta(t, q*(1-math.Pow(2, -13)), res.Flows.At("2", step), 1e-15)
	}

	// the first solve sees an idle grid, the last one the returned estimate
	assert.Equal(t, []float64{5, 5, 5}, dispatcher.heads[0].Row("2"))
	assert.Equal(t, dispatcher.heads[13].Row("2"), res.HeadDifference.Row("2"))
	assert.Equal(t, res.Flows.Row("2"), res.Hydraulics.NodalConsumption.Row("2"))

	// solving the grid for the dispatched flows reproduces the head difference
	eq, err := hydraulics.Solve(context.Background(), res.Schedule.ETSFlows)
	require.NoError(t, err)
	for step := 0; step < 3; step++ {
		assert.InEpsilon(t, eq.ETSHeadDifference.At("2", step), res.HeadDifference.At("2", step), 1e-3)
	}
}

func TestEquilibriumCouplerNonConvergence(t *testing.T) {
	q := 0.01
	hydraulics := newHydraulicSolver(t, threeNodeTopology(t))
	dispatcher := &constantDispatcher{flows: ConstantTimeSeries([]string{"2"}, 1, q)}

	c, err := NewEquilibriumCoupler(hydraulics, dispatcher, 1, WithMaxIterations(5))
	require.NoError(t, err)
	res, err := c.Run(context.Background())
	assert.Nil(t, res)

	var nce *NonConvergenceError
	require.True(t, errors.As(err, &nce))
	assert.Equal(t, 5, nce.Iterations)
	assert.InDelta(t, q/32, nce.MaxDelta, 1e-15)
	assert.Equal(t, DefaultTolerance, nce.Tolerance)
}

func TestEquilibriumCouplerDispatchError(t *testing.T) {
	hydraulics := newHydraulicSolver(t, threeNodeTopology(t))
	dispatcher := &constantDispatcher{err: &SolveError{Status: StatusInfeasible}}

	c, err := NewEquilibriumCoupler(hydraulics, dispatcher, 2)
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	assertSolveStatus(t, err, StatusInfeasible)
	assert.Len(t, dispatcher.heads, 1)
}

func TestEquilibriumCouplerShapeMismatch(t *testing.T) {
	hydraulics := newHydraulicSolver(t, threeNodeTopology(t))
	dispatcher := &constantDispatcher{flows: ConstantTimeSeries([]string{"2"}, 3, 0.01)}

	c, err := NewEquilibriumCoupler(hydraulics, dispatcher, 2)
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	assertConfigError(t, err)
}

func TestEquilibriumCouplerCancelled(t *testing.T) {
	hydraulics := newHydraulicSolver(t, threeNodeTopology(t))
	dispatcher := &constantDispatcher{flows: ConstantTimeSeries([]string{"2"}, 1, 0.01)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := NewEquilibriumCoupler(hydraulics, dispatcher, 1)
	require.NoError(t, err)
	_, err = c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dispatcher.heads)
}

func TestNewEquilibriumCouplerInvalid(t *testing.T) {
	hydraulics := newHydraulicSolver(t, threeNodeTopology(t))
	dispatcher := &constantDispatcher{}

	_, err := NewEquilibriumCoupler(nil, dispatcher, 1)
	assertConfigError(t, err)
	_, err = NewEquilibriumCoupler(hydraulics, nil, 1)
	assertConfigError(t, err)
	_, err = NewEquilibriumCoupler(hydraulics, dispatcher, 0)
	assertConfigError(t, err)
	_, err = NewEquilibriumCoupler(hydraulics, dispatcher, 1, WithTolerance(0))
	assertConfigError(t, err)
	_, err = NewEquilibriumCoupler(hydraulics, dispatcher, 1, WithMaxIterations(0))
	assertConfigError(t, err)
}

func TestEquilibriumWithDispatchOptimizer(t *testing.T) {
	load := 5.0e5
	topo := threeNodeTopology(t)
	hydraulics := newHydraulicSolver(t, topo)
	d := newDispatchOptimizer(t, newPlant(t, DefaultPlantParameters()), 1, nil,
		WithCoolingLoads(ConstantTimeSeries([]string{"2"}, 1, load)))

	c, err := NewEquilibriumCoupler(hydraulics, d, d.Steps())
	require.NoError(t, err)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	q := load / d.plant.CoolingPowerCoefficient()
	assert.Equal(t, StateConverged, res.State)
	assert.InDelta(t, q, res.Flows.At("2", 0), 2*DefaultTolerance)
	assert.InDelta(t, q, res.Schedule.ETSFlows.At("2", 0), 1e-9)
	assert.InDelta(t, q, res.Hydraulics.LineFlows.At("a", 0), 2*DefaultTolerance)
	assert.Greater(t, res.HeadDifference.At("2", 0), DefaultDistributionSystem().ETSHeadLoss)
}
