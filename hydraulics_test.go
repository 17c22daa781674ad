package districtcooling

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func newHydraulicSolver(t *testing.T, topo *Topology, opts ...Option) *HydraulicSolver {
	t.Helper()
	s, err := NewHydraulicSolver(topo, DefaultPhysics(), DefaultDistributionSystem(), opts...)
	require.NoError(t, err)
	return s
}

func TestHydraulicSolverThreeNodes(t *testing.T) {
	topo := threeNodeTopology(t)
	s := newHydraulicSolver(t, topo)
	q := 0.01

	eq, err := s.Solve(context.Background(), ConstantTimeSeries([]string{"2"}, 1, q))
	require.NoError(t, err)
	require.Equal(t, 1, eq.Steps())

	assert.InDelta(t, q, eq.LineFlows.At("a", 0), 1e-12)
	assert.InDelta(t, q, eq.LineFlows.At("b", 0), 1e-12)
	assert.InDelta(t, -q, eq.ReferenceConsumption[0], 1e-12)
	assert.Equal(t, []float64{-q, 0, q}, eq.NodalConsumption.Column(0))

	phy := DefaultPhysics()
	hl, err := HeadLoss(q, 0.1, 0.1, 100, phy.KinematicViscosity, phy.Gravity)
	require.NoError(t, err)
	assert.InDelta(t, hl, eq.LineHeadLoss.At("a", 0), 1e-12)
	assert.InDelta(t, hl, eq.LineHeadLoss.At("b", 0), 1e-12)

	assert.Equal(t, 0.0, eq.NodalHeads.At("0", 0))
	assert.InDelta(t, -hl, eq.NodalHeads.At("1", 0), 1e-9)
	assert.InDelta(t, -2*hl, eq.NodalHeads.At("2", 0), 1e-9)
	assert.InDelta(t, 4*hl+DefaultDistributionSystem().ETSHeadLoss, eq.ETSHeadDifference.At("2", 0), 1e-9)
}

func TestHydraulicSolverZeroDemand(t *testing.T) {
	s := newHydraulicSolver(t, branchedTopology(t))
	eq, err := s.Solve(context.Background(), NewTimeSeries([]string{"2", "3", "5"}, 2))
	require.NoError(t, err)

	assert.Equal(t, 0.0, eq.LineFlows.Total())
	assert.Equal(t, 0.0, eq.LineHeadLoss.Total())
	assert.Equal(t, 0.0, eq.NodalHeads.Total())
	for _, h := range eq.ETSHeadDifference.data {
		assert.Equal(t, DefaultDistributionSystem().ETSHeadLoss, h)
	}
}

func TestHydraulicSolverConservesMass(t *testing.T) {
	topo := branchedTopology(t)
	s := newHydraulicSolver(t, topo, WithParallelism(2))

	demand := NewTimeSeries([]string{"2", "3", "5"}, 4)
	demand.SetRow("2", []float64{0.010, 0.020, 0.000, 0.005})
	demand.SetRow("3", []float64{0.030, 0.000, 0.010, 0.005})
	demand.SetRow("5", []float64{0.020, 0.010, 0.040, 0.005})

	eq, err := s.Solve(context.Background(), demand)
	require.NoError(t, err)

	inc := topo.Incidence()
	for step := 0; step < 4; step++ {
		var net mat.VecDense
		net.MulVec(inc.T(), mat.NewVecDense(5, eq.LineFlows.Column(step)))
		for n, c := range eq.NodalConsumption.Column(step) {
			assert.InDelta(t, c, net.AtVec(n), 1e-12, "node %d step %d", n, step)
		}
		assert.InDelta(t, -floats.Sum(demand.Column(step)), eq.ReferenceConsumption[step], 1e-12)

		// a parent node never sits below its children in head
		for _, id := range []string{"2", "3", "5"} {
			assert.LessOrEqual(t, eq.NodalHeads.At(id, step), 0.0)
		}
		assert.InDelta(t, demand.At("5", step), eq.LineFlows.At("e", step), 1e-12)
		assert.InDelta(t, floats.Sum(demand.Column(step)), eq.LineFlows.At("a", step), 1e-12)
	}
}

func TestHydraulicSolverInvalidDemand(t *testing.T) {
	s := newHydraulicSolver(t, threeNodeTopology(t))
	ctx := context.Background()

	_, err := s.Solve(ctx, nil)
	assertConfigError(t, err)

	_, err = s.Solve(ctx, ConstantTimeSeries([]string{"1"}, 1, 0.01))
	assertConfigError(t, err)

	_, err = s.Solve(ctx, NewTimeSeries([]string{"2"}, 0))
	assertConfigError(t, err)

	_, err = s.Solve(ctx, ConstantTimeSeries([]string{"2"}, 2, -0.01))
	assertConfigError(t, err)

	_, err = s.Solve(ctx, ConstantTimeSeries([]string{"2"}, 2, math.NaN()))
	assertConfigError(t, err)
}

func TestHydraulicSolverOutOfRange(t *testing.T) {
	nodes, lines := threeNodeGrid()
	lines[1].Roughness = 0
	topo, err := NewTopology(nodes, lines)
	require.NoError(t, err)

	_, err = newHydraulicSolver(t, topo).Solve(context.Background(), ConstantTimeSeries([]string{"2"}, 3, 0.01))
	var oor *OutOfRangeError
	assert.True(t, errors.As(err, &oor))
}

func TestHydraulicSolverCancelled(t *testing.T) {
	s := newHydraulicSolver(t, threeNodeTopology(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Solve(ctx, ConstantTimeSeries([]string{"2"}, 3, 0.01))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHydraulicSolverInvalid(t *testing.T) {
	topo := threeNodeTopology(t)

	_, err := NewHydraulicSolver(nil, DefaultPhysics(), DefaultDistributionSystem())
	assertConfigError(t, err)

	phy := DefaultPhysics()
	phy.KinematicViscosity = 0
	_, err = NewHydraulicSolver(topo, phy, DefaultDistributionSystem())
	assertConfigError(t, err)

	dist := DefaultDistributionSystem()
	dist.MinVelocity = 4
	_, err = NewHydraulicSolver(topo, DefaultPhysics(), dist)
	assertConfigError(t, err)
}

func TestPumping(t *testing.T) {
	topo := branchedTopology(t)
	s := newHydraulicSolver(t, topo)
	demand := NewTimeSeries([]string{"2", "3", "5"}, 1)
	demand.SetRow("2", []float64{0.01})
	demand.SetRow("3", []float64{0.02})
	demand.SetRow("5", []float64{0.03})

	eq, err := s.Solve(context.Background(), demand)
	require.NoError(t, err)
	p := s.Pumping(eq)

	phy, dist := DefaultPhysics(), DefaultDistributionSystem()
	k := phy.WaterDensity * phy.Gravity / dist.PumpEfficiency
	heads := eq.ETSHeadDifference.Column(0)
	maxHead := math.Max(heads[0], math.Max(heads[1], heads[2]))

	assert.InDelta(t, k*maxHead*0.06, p.Central[0], 1e-9)
	assert.InDelta(t, k*heads[2]*0.03, p.Distributed.At("5", 0), 1e-9)
	assert.InDelta(t, k*(heads[0]*0.01+heads[1]*0.02+heads[2]*0.03), p.DistributedTotal[0], 1e-9)
	assert.LessOrEqual(t, p.DistributedTotal[0], p.Central[0])

	assert.InDelta(t, p.Central[0], CentralPumping{}.Power(k, heads, eq.ReferenceConsumption[0], nil), 1e-9)
	assert.InDelta(t, p.DistributedTotal[0], DistributedPumping{}.Power(k, heads, 0, demand.Column(0)), 1e-9)
}

func TestDesignFlowsAndDiameters(t *testing.T) {
	topo := branchedTopology(t)
	s := newHydraulicSolver(t, topo)

	flows, err := s.DesignFlows(map[string]float64{"2": 0.01, "3": 0.02, "5": 0.03})
	require.NoError(t, err)
	assert.InDelta(t, 0.06, flows["a"], 1e-12)
	assert.InDelta(t, 0.03, flows["d"], 1e-12)
	assert.InDelta(t, 0.03, flows["e"], 1e-12)

	diameters, err := SizeDiameters(topo, flows, 2.0)
	require.NoError(t, err)
	for id, d := range diameters {
		assert.InDelta(t, 2.0, Velocity(flows[id], d), 1e-9, "line %s", id)
	}
	assert.Greater(t, diameters["a"], diameters["b"])

	_, err = s.DesignFlows(map[string]float64{"1": 0.01})
	assertConfigError(t, err)
	_, err = SizeDiameters(topo, flows, 0)
	assertConfigError(t, err)
	_, err = SizeDiameters(topo, map[string]float64{"a": 0.01}, 2.0)
	assertConfigError(t, err)
}
