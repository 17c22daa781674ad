package districtcooling

import (
	"context"
	"fmt"
	"math"
)

// Dispatcher schedules the plant for given head differences over the ETSs.
type Dispatcher interface {
	Optimize(ctx context.Context, headDiff *TimeSeries) (*Schedule, error)
}

// DispatchOptimizer builds and solves the multi-period dispatch problem of
// the plant, its storage and the grid.
type DispatchOptimizer struct {
	topo   *Topology
	plant  *Plant
	dist   DistributionSystem
	env    *Environment
	solver Solver
	opts   options
}

// Schedule is the optimal operation over the horizon.
type Schedule struct {
	Objective      float64     // electricity cost, price unit
	ChillerFlow    []float64   // m3/s, [T]
	StorageFlow    []float64   // out of the storage into the grid, m3/s, [T]
	ChillerCooling []float64   // W, [T]
	StorageEnergy  []float64   // J, [T]
	TotalFlow      []float64   // drawn from the reference node, m3/s, [T]
	PlantPower     []float64   // W, [T]
	PumpingPower   []float64   // W, [T]
	ETSFlows       *TimeSeries // m3/s, [b, T]
	HeatInflow     *TimeSeries // W, [b, T]
	LineFlows      *TimeSeries // m3/s, [l, T]
	LineVelocity   *TimeSeries // m/s, [l, T]

	BuildingStates   map[string]*TimeSeries
	BuildingControls map[string]*TimeSeries
	BuildingOutputs  map[string]*TimeSeries
}

/*
Returns a dispatch optimizer.

	Args:
		topo: grid topology
		plant: plant model, also providing the physical constants
		dist: distribution system constants
		env: price and wet-bulb series, defines the horizon
		solver: LP engine
	Notes:
		Building dynamics, cooling loads, pumping scheme and price unit are set
		with options.
*/
func NewDispatchOptimizer(topo *Topology, plant *Plant, dist DistributionSystem, env *Environment, solver Solver, opts ...Option) (*DispatchOptimizer, error) {
	if topo == nil || plant == nil || env == nil || solver == nil {
		return nil, configErrorf("dispatch optimizer needs a topology, a plant, an environment and a solver")
	}
	if err := dist.validate(); err != nil {
		return nil, err
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	if o.pumping == nil {
		return nil, configErrorf("no pumping scheme")
	}
	if !(o.priceUnit > 0) {
		return nil, configErrorf("price unit must be positive, got %g", o.priceUnit)
	}
	steps := env.Steps()
	for id, m := range o.buildings {
		n, ok := topo.nodeIndex[id]
		if !ok || topo.nodes[n].Type != NodeBuilding {
			return nil, configErrorf("building model given for %q which is not a building node", id)
		}
		if m == nil {
			return nil, configErrorf("nil building model for %q", id)
		}
		if err := m.validate(steps); err != nil {
			return nil, fmt.Errorf("building %q: %w", id, err)
		}
	}
	if o.coolingLoads != nil {
		if !sameIDs(o.coolingLoads.ids, topo.BuildingIDs()) || o.coolingLoads.Steps() != steps {
			return nil, configErrorf("cooling loads must cover buildings %v over %d steps", topo.BuildingIDs(), steps)
		}
	}
	return &DispatchOptimizer{topo: topo, plant: plant, dist: dist, env: env, solver: solver, opts: o}, nil
}

// Steps returns the horizon length.
func (d *DispatchOptimizer) Steps() int { return d.env.Steps() }

// DispatchModel is one instance of the dispatch LP together with the columns
// of every variable family.
type DispatchModel struct {
	Model *Model

	steps       int
	buildingIDs []string
	lineIDs     []string

	chillerFlow    []int
	storageFlow    []int
	chillerCooling []int
	storageEnergy  []int
	totalFlow      []int
	plantPower     []int
	pumpingPower   []int
	etsFlow        [][]int // [b][t]
	heatInflow     [][]int // [b][t]
	lineFlow       [][]int // [l][t]
	lineVelocity   [][]int // [l][t]

	buildings map[string]*buildingVars
}

type buildingVars struct {
	model   *StateSpaceModel
	state   [][]int // [x][t]
	control [][]int // [u][t]
	output  [][]int // [y][t]
}

func varName(family string, t int) string { return fmt.Sprintf("%s[%d]", family, t) }

func elemName(family, id string, t int) string { return fmt.Sprintf("%s[%s,%d]", family, id, t) }

/*
Builds the dispatch LP for given head differences.

	Args:
		headDiff: head difference over each ETS, m, [b, T]
	Returns:
		the model and its variable columns
*/
func (d *DispatchOptimizer) BuildModel(headDiff *TimeSeries) (*DispatchModel, error) {
	steps := d.env.Steps()
	buildingIDs := d.topo.BuildingIDs()
	if headDiff == nil || !sameIDs(headDiff.ids, buildingIDs) || headDiff.Steps() != steps {
		return nil, configErrorf("head differences must cover buildings %v over %d steps", buildingIDs, steps)
	}

	phy := d.plant.Physics()
	pp := d.plant.Parameters()
	inf := math.Inf(1)
	m := NewModel()
	dm := &DispatchModel{
		Model:       m,
		steps:       steps,
		buildingIDs: buildingIDs,
		lineIDs:     d.topo.LineIDs(),
		buildings:   map[string]*buildingVars{},
	}

	// variables
	for t := 0; t < steps; t++ {
		dm.chillerFlow = append(dm.chillerFlow, m.AddVariable(varName("chiller_flow", t), 0, inf))
		dm.storageFlow = append(dm.storageFlow, m.AddVariable(varName("storage_flow", t), -inf, inf))
		dm.chillerCooling = append(dm.chillerCooling, m.AddVariable(varName("chiller_cooling", t), 0, pp.ChillerCapacity))
		dm.storageEnergy = append(dm.storageEnergy, m.AddVariable(varName("storage_energy", t), 0, pp.StorageCapacity))
		dm.totalFlow = append(dm.totalFlow, m.AddVariable(varName("total_flow", t), 0, inf))
		dm.plantPower = append(dm.plantPower, m.AddVariable(varName("plant_power", t), 0, inf))
		dm.pumpingPower = append(dm.pumpingPower, m.AddVariable(varName("pumping_power", t), 0, inf))
	}
	dm.etsFlow = make([][]int, len(buildingIDs))
	dm.heatInflow = make([][]int, len(buildingIDs))
	for b, id := range buildingIDs {
		for t := 0; t < steps; t++ {
			load := 0.0
			if d.opts.coolingLoads != nil {
				load = d.opts.coolingLoads.AtIndex(b, t)
			}
			dm.etsFlow[b] = append(dm.etsFlow[b], m.AddVariable(elemName("ets_flow", id, t), 0, inf))
			dm.heatInflow[b] = append(dm.heatInflow[b], m.AddVariable(elemName("heat_inflow", id, t), math.Max(0, load), inf))
		}
	}
	dm.lineFlow = make([][]int, len(d.topo.lines))
	dm.lineVelocity = make([][]int, len(d.topo.lines))
	for l, line := range d.topo.lines {
		for t := 0; t < steps; t++ {
			dm.lineFlow[l] = append(dm.lineFlow[l], m.AddVariable(elemName("line_flow", line.ID, t), 0, inf))
			dm.lineVelocity[l] = append(dm.lineVelocity[l],
				m.AddVariable(elemName("line_velocity", line.ID, t), d.dist.MinVelocity, d.dist.MaxVelocity))
		}
	}

	heat := d.plant.CoolingPowerCoefficient()
	k := phy.WaterDensity * phy.Gravity / d.dist.PumpEfficiency
	storageChange := d.plant.StorageChangeCoefficient()

	for t := 0; t < steps; t++ {
		// chiller cooling power follows chiller flow
		m.AddConstraint(varName("chiller_cooling", t), []Term{
			{dm.chillerCooling[t], 1}, {dm.chillerFlow[t], -heat},
		}, Equal, 0)

		// storage energy recurrence, step 0 anchored to the initial charge
		if t == 0 {
			m.AddConstraint(varName("storage_energy", t), []Term{
				{dm.storageEnergy[t], 1}, {dm.storageFlow[t], -storageChange},
			}, Equal, d.plant.InitialStorageEnergy())
		} else {
			m.AddConstraint(varName("storage_energy", t), []Term{
				{dm.storageEnergy[t], 1}, {dm.storageEnergy[t-1], -1}, {dm.storageFlow[t], -storageChange},
			}, Equal, 0)
		}

		// the grid draws from chillers and storage
		m.AddConstraint(varName("total_flow", t), []Term{
			{dm.totalFlow[t], 1}, {dm.chillerFlow[t], -1}, {dm.storageFlow[t], -1},
		}, Equal, 0)

		// nodal balance, consumption = inflow - outflow
		for n, node := range d.topo.nodes {
			var terms []Term
			for _, l := range d.topo.inflow[n] {
				terms = append(terms, Term{dm.lineFlow[l][t], -1})
			}
			for _, l := range d.topo.outflow[n] {
				terms = append(terms, Term{dm.lineFlow[l][t], 1})
			}
			switch node.Type {
			case NodeBuilding:
				b, _ := headDiff.Index(node.ID)
				terms = append(terms, Term{dm.etsFlow[b][t], 1})
			case NodeReference:
				terms = append(terms, Term{dm.totalFlow[t], -1})
			}
			m.AddConstraint(elemName("balance", node.ID, t), terms, Equal, 0)
		}

		// velocity
		for l, line := range d.topo.lines {
			m.AddConstraint(elemName("line_velocity", line.ID, t), []Term{
				{dm.lineVelocity[l][t], 1}, {dm.lineFlow[l][t], -VelocityCoefficient(line.Diameter)},
			}, Equal, 0)
		}

		// heat drawn by each building
		for b, id := range buildingIDs {
			m.AddConstraint(elemName("heat_inflow", id, t), []Term{
				{dm.heatInflow[b][t], 1}, {dm.etsFlow[b][t], -heat},
			}, Equal, 0)
		}

		// distribution pumping
		ets := make([]int, len(buildingIDs))
		for b := range buildingIDs {
			ets[b] = dm.etsFlow[b][t]
		}
		terms := []Term{{dm.pumpingPower[t], 1}}
		for _, pt := range d.opts.pumping.PowerTerms(k, headDiff.Column(t), dm.totalFlow[t], ets) {
			terms = append(terms, Term{pt.Var, -pt.Coef})
		}
		m.AddConstraint(varName("pumping_power", t), terms, Equal, 0)

		// plant power
		a, bq, err := d.plant.PowerCoefficients(d.env.WetBulb[t])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		m.AddConstraint(varName("plant_power", t), []Term{
			{dm.plantPower[t], 1}, {dm.chillerFlow[t], -a}, {dm.storageFlow[t], -bq},
		}, Equal, 0)

		// cost
		w := d.env.Price[t] / d.opts.priceUnit * phy.StepHours()
		m.AddObjective(dm.pumpingPower[t], w)
		m.AddObjective(dm.plantPower[t], w)
	}

	m.AddConstraint("storage_terminal", []Term{{dm.storageEnergy[steps-1], 1}}, Equal, d.plant.TerminalStorageEnergy())

	for b, id := range buildingIDs {
		if sm, ok := d.opts.buildings[id]; ok {
			dm.buildings[id] = addBuilding(m, id, sm, steps, dm.heatInflow[b])
		}
	}
	return dm, nil
}

// addBuilding adds the state, output and grid coupling equations of one building.
func addBuilding(m *Model, id string, sm *StateSpaceModel, steps int, heatInflow []int) *buildingVars {
	inf := math.Inf(1)
	bv := &buildingVars{
		model:   sm,
		state:   make([][]int, len(sm.States)),
		control: make([][]int, len(sm.Controls)),
		output:  make([][]int, len(sm.Outputs)),
	}
	for i, s := range sm.States {
		for t := 0; t < steps; t++ {
			lo, up := -inf, inf
			if t == 0 {
				lo, up = sm.InitialState[i], sm.InitialState[i]
			}
			bv.state[i] = append(bv.state[i], m.AddVariable(elemName("state", id+"/"+s, t), lo, up))
		}
	}
	for i, u := range sm.Controls {
		for t := 0; t < steps; t++ {
			bv.control[i] = append(bv.control[i], m.AddVariable(elemName("control", id+"/"+u, t), 0, inf))
		}
	}
	for i, y := range sm.Outputs {
		for t := 0; t < steps; t++ {
			lo, up := -inf, inf
			if sm.OutputMinimum != nil {
				lo = sm.OutputMinimum.At(i, t)
			}
			if sm.OutputMaximum != nil {
				up = sm.OutputMaximum.At(i, t)
			}
			bv.output[i] = append(bv.output[i], m.AddVariable(elemName("output", id+"/"+y, t), lo, up))
		}
	}

	disturbance := func(j, t int) float64 { return sm.DisturbanceSeries.At(j, t) }

	for t := 0; t < steps; t++ {
		// x[t+1] = A x[t] + B u[t] + D d[t]
		if t < steps-1 {
			for i, s := range sm.States {
				terms := []Term{{bv.state[i][t+1], 1}}
				for j := range sm.States {
					terms = appendNonZero(terms, bv.state[j][t], -sm.StateMatrix.At(i, j))
				}
				for j := range sm.Controls {
					terms = appendNonZero(terms, bv.control[j][t], -sm.ControlMatrix.At(i, j))
				}
				rhs := 0.0
				for j := range sm.Disturbances {
					rhs += sm.DisturbanceMatrix.At(i, j) * disturbance(j, t)
				}
				m.AddConstraint(elemName("state", id+"/"+s, t+1), terms, Equal, rhs)
			}
		}

		// y[t] = C x[t] + Cu u[t] + Cd d[t]
		for i, y := range sm.Outputs {
			terms := []Term{{bv.output[i][t], 1}}
			for j := range sm.States {
				terms = appendNonZero(terms, bv.state[j][t], -sm.StateOutputMatrix.At(i, j))
			}
			for j := range sm.Controls {
				terms = appendNonZero(terms, bv.control[j][t], -sm.ControlOutputMatrix.At(i, j))
			}
			rhs := 0.0
			for j := range sm.Disturbances {
				rhs += sm.DisturbanceOutputMatrix.At(i, j) * disturbance(j, t)
			}
			m.AddConstraint(elemName("output", id+"/"+y, t), terms, Equal, rhs)
		}

		// grid heat
		terms := []Term{{heatInflow[t], 1}}
		for _, o := range sm.HeatOutputs {
			terms = append(terms, Term{bv.output[o][t], -1})
		}
		m.AddConstraint(elemName("building_heat", id, t), terms, Equal, 0)
	}
	return bv
}

func appendNonZero(terms []Term, v int, c float64) []Term {
	if c == 0 {
		return terms
	}
	return append(terms, Term{v, c})
}

// Schedule extracts the schedule from a solution of the model. Values past
// a bound by no more than round-off are moved onto the bound.
func (dm *DispatchModel) Schedule(sol *Solution) *Schedule {
	x := sol.X
	value := func(c int) float64 {
		v, lo, up := x[c], dm.Model.vars[c].Lower, dm.Model.vars[c].Upper
		switch {
		case v < lo && lo-v <= presolveTolerance*(1+math.Abs(lo)):
			return lo
		case v > up && v-up <= presolveTolerance*(1+math.Abs(up)):
			return up
		}
		return v
	}
	pick := func(cols []int) []float64 {
		out := make([]float64, len(cols))
		for i, c := range cols {
			out[i] = value(c)
		}
		return out
	}
	table := func(ids []string, cols [][]int) *TimeSeries {
		s := NewTimeSeries(ids, dm.steps)
		for i := range ids {
			for t := 0; t < dm.steps; t++ {
				s.SetIndex(i, t, value(cols[i][t]))
			}
		}
		return s
	}

	s := &Schedule{
		Objective:        sol.Objective,
		ChillerFlow:      pick(dm.chillerFlow),
		StorageFlow:      pick(dm.storageFlow),
		ChillerCooling:   pick(dm.chillerCooling),
		StorageEnergy:    pick(dm.storageEnergy),
		TotalFlow:        pick(dm.totalFlow),
		PlantPower:       pick(dm.plantPower),
		PumpingPower:     pick(dm.pumpingPower),
		ETSFlows:         table(dm.buildingIDs, dm.etsFlow),
		HeatInflow:       table(dm.buildingIDs, dm.heatInflow),
		LineFlows:        table(dm.lineIDs, dm.lineFlow),
		LineVelocity:     table(dm.lineIDs, dm.lineVelocity),
		BuildingStates:   map[string]*TimeSeries{},
		BuildingControls: map[string]*TimeSeries{},
		BuildingOutputs:  map[string]*TimeSeries{},
	}
	for id, bv := range dm.buildings {
		if len(bv.model.States) > 0 {
			s.BuildingStates[id] = table(bv.model.States, bv.state)
		}
		if len(bv.model.Controls) > 0 {
			s.BuildingControls[id] = table(bv.model.Controls, bv.control)
		}
		if len(bv.model.Outputs) > 0 {
			s.BuildingOutputs[id] = table(bv.model.Outputs, bv.output)
		}
	}
	return s
}

/*
Schedules the plant for given head differences over the ETSs.

	Args:
		headDiff: head difference over each ETS, m, [b, T]
	Returns:
		the optimal schedule, or a *SolveError when the solver finds none
*/
func (d *DispatchOptimizer) Optimize(ctx context.Context, headDiff *TimeSeries) (*Schedule, error) {
	dm, err := d.BuildModel(headDiff)
	if err != nil {
		return nil, err
	}
	d.opts.logger.Debug().
		Int("variables", dm.Model.NumVariables()).
		Int("constraints", dm.Model.NumConstraints()).
		Str("pumping", d.opts.pumping.Name()).
		Msg("dispatch model")

	sol, err := d.solver.Solve(ctx, dm.Model)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	if sol == nil || sol.Status != StatusOptimal || len(sol.X) != dm.Model.NumVariables() {
		status := StatusFailed
		if sol != nil && sol.Status != "" && sol.Status != StatusOptimal {
			status = sol.Status
		}
		return nil, &SolveError{Status: status, Err: fmt.Errorf("solver returned no optimal assignment")}
	}
	s := dm.Schedule(sol)
	d.opts.logger.Debug().Float64("objective", s.Objective).Msg("dispatch solved")
	return s, nil
}
