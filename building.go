package districtcooling

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// StateSpaceModel is the discrete linear thermal model of one building:
//
//	x[t+1] = A x[t] + B u[t] + D d[t]
//	y[t]   = C x[t] + Cu u[t] + Cd d[t]
//
// with x[0] fixed, u >= 0 and y bounded per step. The outputs listed in
// HeatOutputs sum to the heat the building draws from the grid, W.
type StateSpaceModel struct {
	States       []string
	Controls     []string
	Disturbances []string
	Outputs      []string

	StateMatrix             *mat.Dense // A, [x, x]
	ControlMatrix           *mat.Dense // B, [x, u]
	DisturbanceMatrix       *mat.Dense // D, [x, d]
	StateOutputMatrix       *mat.Dense // C, [y, x]
	ControlOutputMatrix     *mat.Dense // Cu, [y, u]
	DisturbanceOutputMatrix *mat.Dense // Cd, [y, d]

	InitialState      []float64  // [x]
	DisturbanceSeries *mat.Dense // [d, T]
	OutputMinimum     *mat.Dense // [y, T], -Inf for none
	OutputMaximum     *mat.Dense // [y, T], +Inf for none

	HeatOutputs []int
}

// validate checks every matrix against the declared dimensions and the horizon.
// Matrices of a dimension that is empty may be nil.
func (m *StateSpaceModel) validate(steps int) error {
	nx, nu, nd, ny := len(m.States), len(m.Controls), len(m.Disturbances), len(m.Outputs)
	checks := []struct {
		name       string
		m          *mat.Dense
		rows, cols int
	}{
		{"state matrix", m.StateMatrix, nx, nx},
		{"control matrix", m.ControlMatrix, nx, nu},
		{"disturbance matrix", m.DisturbanceMatrix, nx, nd},
		{"state output matrix", m.StateOutputMatrix, ny, nx},
		{"control output matrix", m.ControlOutputMatrix, ny, nu},
		{"disturbance output matrix", m.DisturbanceOutputMatrix, ny, nd},
		{"disturbance series", m.DisturbanceSeries, nd, steps},
		{"output minimum", m.OutputMinimum, ny, steps},
		{"output maximum", m.OutputMaximum, ny, steps},
	}
	for _, c := range checks {
		if c.rows == 0 || c.cols == 0 {
			continue
		}
		if c.m == nil {
			return configErrorf("building model: missing %s", c.name)
		}
		if r, k := c.m.Dims(); r != c.rows || k != c.cols {
			return configErrorf("building model: %s is %dx%d, want %dx%d", c.name, r, k, c.rows, c.cols)
		}
	}
	if len(m.InitialState) != nx {
		return configErrorf("building model: %d initial states for %d states", len(m.InitialState), nx)
	}
	if len(m.HeatOutputs) == 0 {
		return configErrorf("building model: no output carries the grid heat")
	}
	for _, o := range m.HeatOutputs {
		if o < 0 || o >= ny {
			return configErrorf("building model: heat output %d out of range", o)
		}
	}
	return nil
}

// Physical properties of the cubic building.
const (
	airDensity           = 1.19   // kg/m3
	airHeatCapacity      = 1005.0 // J/kgK
	concreteDensity      = 2100.0 // kg/m3
	concreteHeatCapacity = 880.0  // J/kgK
	airShare             = 0.95   // volumetric share, -
	concreteShare        = 0.05   // volumetric share, -
	envelopeU            = 5.0    // overall heat transfer coefficient of the outer surface, W/m2K
)

// CubicBuilding is a single zone cube of air and concrete that gains heat
// through its envelope at a constant temperature difference.
type CubicBuilding struct {
	EdgeLength           float64 // m
	InitialTemperature   float64 // degree C
	MinTemperature       float64 // degree C
	MaxTemperature       float64 // degree C
	OutdoorTemperature   float64 // degree C
	ReferenceTemperature float64 // temperature the envelope gain is evaluated at, degree C
}

// NewCubicBuilding returns a building with a 28 degree C outdoor and 21 degree C
// reference temperature, allowed to float between 20 and 26 degree C.
func NewCubicBuilding(edgeLength, initialTemperature float64) CubicBuilding {
	return CubicBuilding{
		EdgeLength:           edgeLength,
		InitialTemperature:   initialTemperature,
		MinTemperature:       20.0,
		MaxTemperature:       26.0,
		OutdoorTemperature:   28.0,
		ReferenceTemperature: 21.0,
	}
}

// Surface returns the envelope area, m2
func (b CubicBuilding) Surface() float64 { return 6.0 * b.EdgeLength * b.EdgeLength }

// Volume returns m3
func (b CubicBuilding) Volume() float64 { return math.Pow(b.EdgeLength, 3) }

// HeatCapacity returns the heat capacity of the whole building, J/K
func (b CubicBuilding) HeatCapacity() float64 {
	v := b.Volume()
	return airHeatCapacity*airShare*v*airDensity + concreteHeatCapacity*concreteShare*v*concreteDensity
}

// HeatGain returns the envelope heat gain, W
func (b CubicBuilding) HeatGain() float64 {
	return envelopeU * b.Surface() * (b.OutdoorTemperature - b.ReferenceTemperature)
}

/*
Temperature at the end of a step for a given cooling schedule.

	Args:
		step: 0-based step index
		cooling: heat drawn from the building at each step, W, [T]
		stepDuration: s
	Returns:
		indoor temperature, degree C
*/
func (b CubicBuilding) Temperature(step int, cooling []float64, stepDuration float64) float64 {
	t := b.InitialTemperature
	for k := 0; k <= step && k < len(cooling); k++ {
		t += stepDuration * (b.HeatGain() - cooling[k]) / b.HeatCapacity()
	}
	return t
}

/*
Builds the state-space model of the building.

	Args:
		stepDuration: s
		steps: horizon length
	Returns:
		one state (indoor temperature), one control (cooling power from the
		grid, W), one disturbance (envelope gain, W) and two outputs
		(temperature, bounded; grid heat)
*/
func (b CubicBuilding) Model(stepDuration float64, steps int) (*StateSpaceModel, error) {
	if b.EdgeLength <= 0 {
		return nil, configErrorf("building edge length must be positive, got %g", b.EdgeLength)
	}
	if b.MinTemperature > b.MaxTemperature {
		return nil, configErrorf("building temperature bounds [%g, %g] are empty", b.MinTemperature, b.MaxTemperature)
	}
	if steps <= 0 {
		return nil, configErrorf("building model needs at least one step")
	}
	k := stepDuration / b.HeatCapacity()

	gain := mat.NewDense(1, steps, nil)
	outMin := mat.NewDense(2, steps, nil)
	outMax := mat.NewDense(2, steps, nil)
	for t := 0; t < steps; t++ {
		gain.Set(0, t, b.HeatGain())
		outMin.Set(0, t, b.MinTemperature)
		outMax.Set(0, t, b.MaxTemperature)
		outMin.Set(1, t, 0)
		outMax.Set(1, t, math.Inf(1))
	}

	return &StateSpaceModel{
		States:       []string{"indoor_temperature"},
		Controls:     []string{"cooling_power"},
		Disturbances: []string{"envelope_gain"},
		Outputs:      []string{"indoor_temperature", "grid_heat"},

		StateMatrix:             mat.NewDense(1, 1, []float64{1}),
		ControlMatrix:           mat.NewDense(1, 1, []float64{-k}),
		DisturbanceMatrix:       mat.NewDense(1, 1, []float64{k}),
		StateOutputMatrix:       mat.NewDense(2, 1, []float64{1, 0}),
		ControlOutputMatrix:     mat.NewDense(2, 1, []float64{0, 1}),
		DisturbanceOutputMatrix: mat.NewDense(2, 1, []float64{0, 0}),

		InitialState:      []float64{b.InitialTemperature},
		DisturbanceSeries: gain,
		OutputMinimum:     outMin,
		OutputMaximum:     outMax,

		HeatOutputs: []int{1},
	}, nil
}
