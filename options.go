package districtcooling

import (
	"runtime"

	"github.com/rs/zerolog"
)

const (
	DefaultTolerance     = 1.0e-6 // m3/s
	DefaultMaxIterations = 100
	DefaultPriceUnit     = 1.0e6 // W per price unit, price given per MWh
)

// Option configures the solvers of this package. Each constructor reads the
// settings it needs and ignores the rest.
type Option func(*options)

type options struct {
	logger        zerolog.Logger
	parallelism   int
	pumping       PumpingScheme
	buildings     map[string]*StateSpaceModel
	coolingLoads  *TimeSeries
	priceUnit     float64
	tolerance     float64
	maxIterations int
}

func newOptions(opts []Option) options {
	o := options{
		logger:        zerolog.Nop(),
		parallelism:   runtime.GOMAXPROCS(0),
		pumping:       CentralPumping{},
		buildings:     map[string]*StateSpaceModel{},
		priceUnit:     DefaultPriceUnit,
		tolerance:     DefaultTolerance,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger progress is reported to.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithParallelism bounds the number of time steps solved concurrently.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithPumpingScheme selects how distribution pumping power is modelled.
func WithPumpingScheme(s PumpingScheme) Option {
	return func(o *options) { o.pumping = s }
}

// WithBuildingModel attaches thermal dynamics to a building node.
func WithBuildingModel(buildingID string, m *StateSpaceModel) Option {
	return func(o *options) { o.buildings[buildingID] = m }
}

// WithCoolingLoads sets a lower bound on the heat each building draws from
// the grid, W, per building and step.
func WithCoolingLoads(loads *TimeSeries) Option {
	return func(o *options) { o.coolingLoads = loads }
}

// WithPriceUnit sets the power, W, one unit of the price series refers to.
func WithPriceUnit(w float64) Option {
	return func(o *options) { o.priceUnit = w }
}

// WithTolerance sets the convergence threshold on building flows, m3/s.
func WithTolerance(eps float64) Option {
	return func(o *options) { o.tolerance = eps }
}

// WithMaxIterations bounds the fixed-point iteration.
func WithMaxIterations(n int) Option {
	return func(o *options) { o.maxIterations = n }
}
