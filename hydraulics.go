package districtcooling

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// HydraulicSolver computes the steady-state flows and heads of the grid for a
// given building demand.
type HydraulicSolver struct {
	topo    *Topology
	physics Physics
	dist    DistributionSystem
	opts    options
}

// GridEquilibrium is the hydraulic state of the grid over the horizon.
type GridEquilibrium struct {
	NodalConsumption     *TimeSeries // net flow drawn at each node, m3/s, [n, T]
	ReferenceConsumption []float64   // m3/s, [T]
	LineFlows            *TimeSeries // m3/s, [l, T]
	LineHeadLoss         *TimeSeries // m, [l, T]
	NodalHeads           *TimeSeries // m, reference node at 0, [n, T]
	ETSHeadDifference    *TimeSeries // head to overcome at each building, m, [b, T]
}

// Steps returns the horizon length.
func (e *GridEquilibrium) Steps() int { return e.LineFlows.Steps() }

// NewHydraulicSolver returns a solver for the given grid.
func NewHydraulicSolver(topo *Topology, physics Physics, dist DistributionSystem, opts ...Option) (*HydraulicSolver, error) {
	if topo == nil {
		return nil, configErrorf("hydraulic solver needs a topology")
	}
	if err := physics.validate(); err != nil {
		return nil, err
	}
	if err := dist.validate(); err != nil {
		return nil, err
	}
	return &HydraulicSolver{topo: topo, physics: physics, dist: dist, opts: newOptions(opts)}, nil
}

// Topology returns the grid the solver works on.
func (s *HydraulicSolver) Topology() *Topology { return s.topo }

/*
Solves the grid for every step of the demand horizon.

	Args:
		demand: flow drawn at each building, m3/s, [b, T], rows in building order
	Returns:
		the grid equilibrium
	Notes:
		Steps are independent and solved concurrently. Friction factors outside
		the correlation range fail the whole solve with *OutOfRangeError.
*/
func (s *HydraulicSolver) Solve(ctx context.Context, demand *TimeSeries) (*GridEquilibrium, error) {
	if err := s.checkDemand(demand); err != nil {
		return nil, err
	}
	steps := demand.Steps()
	eq := &GridEquilibrium{
		NodalConsumption:     NewTimeSeries(s.topo.NodeIDs(), steps),
		ReferenceConsumption: make([]float64, steps),
		LineFlows:            NewTimeSeries(s.topo.LineIDs(), steps),
		LineHeadLoss:         NewTimeSeries(s.topo.LineIDs(), steps),
		NodalHeads:           NewTimeSeries(s.topo.NodeIDs(), steps),
		ETSHeadDifference:    NewTimeSeries(s.topo.BuildingIDs(), steps),
	}

	s.opts.logger.Debug().Int("steps", steps).Int("lines", len(s.topo.lines)).Msg("hydraulic solve")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.parallelism)
	for t := 0; t < steps; t++ {
		t := t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.solveStep(t, demand, eq)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return eq, nil
}

func (s *HydraulicSolver) checkDemand(demand *TimeSeries) error {
	if demand == nil {
		return configErrorf("no demand series")
	}
	if ids := s.topo.BuildingIDs(); !sameIDs(demand.ids, ids) {
		return configErrorf("demand series ids %v do not match building ids %v", demand.ids, ids)
	}
	if demand.Steps() == 0 {
		return configErrorf("demand series has no steps")
	}
	for i, v := range demand.data {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return configErrorf("demand of building %q at step %d is %g, want a finite non-negative flow",
				demand.ids[i/demand.steps], i%demand.steps, v)
		}
	}
	return nil
}

// solveStep fills column t of every series in eq. Only column t is written.
func (s *HydraulicSolver) solveStep(t int, demand *TimeSeries, eq *GridEquilibrium) error {
	topo := s.topo
	nR := len(topo.reducedNodes)

	// nodal consumption
	consumption := make([]float64, nR)
	for j, n := range topo.reducedNodes {
		node := topo.nodes[n]
		if node.Type == NodeBuilding {
			consumption[j] = demand.At(node.ID, t)
		}
		eq.NodalConsumption.SetIndex(n, t, consumption[j])
	}
	ref := -floats.Sum(consumption)
	eq.ReferenceConsumption[t] = ref
	eq.NodalConsumption.SetIndex(topo.reference, t, ref)

	// line flows
	flows := mat.NewVecDense(nR, nil)
	if err := topo.solveLineFlows(flows, mat.NewVecDense(nR, consumption)); err != nil {
		return fmt.Errorf("line flows at step %d: %w", t, err)
	}

	// head losses
	negLoss := make([]float64, len(topo.lines))
	for i, l := range topo.lines {
		q := flows.AtVec(i)
		hl, err := HeadLoss(q, l.Diameter, l.Roughness, l.Length, s.physics.KinematicViscosity, s.physics.Gravity)
		if err != nil {
			return fmt.Errorf("line %q at step %d: %w", l.ID, t, err)
		}
		eq.LineFlows.SetIndex(i, t, q)
		eq.LineHeadLoss.SetIndex(i, t, hl)
		negLoss[i] = -hl
	}

	// nodal heads
	heads := mat.NewVecDense(nR, nil)
	if err := topo.solveHeads(heads, mat.NewVecDense(len(negLoss), negLoss)); err != nil {
		return fmt.Errorf("nodal heads at step %d: %w", t, err)
	}
	eq.NodalHeads.SetIndex(topo.reference, t, 0)
	for j, n := range topo.reducedNodes {
		eq.NodalHeads.SetIndex(n, t, heads.AtVec(j))
	}

	// head difference over the ETSs, supply and return
	for i, id := range eq.ETSHeadDifference.ids {
		n := topo.nodeIndex[id]
		eq.ETSHeadDifference.SetIndex(i, t, 2.0*math.Abs(eq.NodalHeads.AtIndex(n, t))+s.dist.ETSHeadLoss)
	}
	return nil
}

// GridPumping is the secondary pumping power needed to drive a grid equilibrium.
type GridPumping struct {
	Central          []float64   // one pump at the plant sized to the worst building, W, [T]
	Distributed      *TimeSeries // one pump per ETS, W, [b, T]
	DistributedTotal []float64   // W, [T]
}

/*
Secondary pumping power of a solved grid under both pumping layouts.

	Notes:
		central: rho g max_b(H_b) / eta * |reference consumption|
		distributed: rho g H_b / eta * |consumption_b|, per building
*/
func (s *HydraulicSolver) Pumping(eq *GridEquilibrium) *GridPumping {
	steps := eq.Steps()
	k := s.physics.WaterDensity * s.physics.Gravity / s.dist.PumpEfficiency
	p := &GridPumping{
		Central:          make([]float64, steps),
		Distributed:      NewTimeSeries(eq.ETSHeadDifference.ids, steps),
		DistributedTotal: make([]float64, steps),
	}
	for t := 0; t < steps; t++ {
		maxHead := 0.0
		for i, id := range eq.ETSHeadDifference.ids {
			h := eq.ETSHeadDifference.AtIndex(i, t)
			maxHead = math.Max(maxHead, h)
			w := k * h * math.Abs(eq.NodalConsumption.At(id, t))
			p.Distributed.SetIndex(i, t, w)
			p.DistributedTotal[t] += w
		}
		p.Central[t] = k * maxHead * math.Abs(eq.ReferenceConsumption[t])
	}
	return p
}

// DesignFlows returns the flow in every line when each building draws its
// peak flow at the same time, m3/s, keyed by line id.
func (s *HydraulicSolver) DesignFlows(peak map[string]float64) (map[string]float64, error) {
	topo := s.topo
	consumption := make([]float64, len(topo.reducedNodes))
	for id := range peak {
		n, ok := topo.nodeIndex[id]
		if !ok || topo.nodes[n].Type != NodeBuilding {
			return nil, configErrorf("peak flow given for %q which is not a building", id)
		}
	}
	for j, n := range topo.reducedNodes {
		if topo.nodes[n].Type == NodeBuilding {
			consumption[j] = peak[topo.nodes[n].ID]
		}
	}
	flows := mat.NewVecDense(len(consumption), nil)
	if err := topo.solveLineFlows(flows, mat.NewVecDense(len(consumption), consumption)); err != nil {
		return nil, fmt.Errorf("design flows: %w", err)
	}
	out := make(map[string]float64, len(topo.lines))
	for i, l := range topo.lines {
		out[l.ID] = flows.AtVec(i)
	}
	return out, nil
}

// SizeDiameters returns, per line, the smallest diameter that keeps the
// velocity of the given flow at or below maxVelocity, m.
func SizeDiameters(topo *Topology, lineFlows map[string]float64, maxVelocity float64) (map[string]float64, error) {
	if maxVelocity <= 0 {
		return nil, configErrorf("maximum velocity must be positive, got %g", maxVelocity)
	}
	out := make(map[string]float64, len(topo.lines))
	for _, l := range topo.lines {
		q, ok := lineFlows[l.ID]
		if !ok {
			return nil, configErrorf("no design flow for line %q", l.ID)
		}
		out[l.ID] = DiameterForVelocity(q, maxVelocity)
	}
	return out, nil
}
