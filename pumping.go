package districtcooling

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// PumpingScheme decides how the distribution pumping power depends on the
// building flows and head differences at one step.
type PumpingScheme interface {
	Name() string
	// PowerTerms returns the linear terms of the pumping power, W. k is
	// rho g / eta, heads are the ETS head differences in building order,
	// total is the column of the total grid flow and ets the columns of the
	// building flows.
	PowerTerms(k float64, heads []float64, total int, ets []int) []Term
	// Power evaluates the same expression for given flows, W.
	Power(k float64, heads []float64, total float64, ets []float64) float64
}

// CentralPumping sizes one pump at the plant to the worst head difference
// over all buildings and moves the total grid flow.
type CentralPumping struct{}

func (CentralPumping) Name() string { return "central" }

func (CentralPumping) PowerTerms(k float64, heads []float64, total int, ets []int) []Term {
	return []Term{{Var: total, Coef: k * maxHead(heads)}}
}

func (CentralPumping) Power(k float64, heads []float64, total float64, ets []float64) float64 {
	return k * maxHead(heads) * math.Abs(total)
}

// DistributedPumping puts a pump at every ETS that lifts its own flow over
// its own head difference.
type DistributedPumping struct{}

func (DistributedPumping) Name() string { return "distributed" }

func (DistributedPumping) PowerTerms(k float64, heads []float64, total int, ets []int) []Term {
	terms := make([]Term, len(ets))
	for i, v := range ets {
		terms[i] = Term{Var: v, Coef: k * heads[i]}
	}
	return terms
}

func (DistributedPumping) Power(k float64, heads []float64, total float64, ets []float64) float64 {
	p := 0.0
	for i, q := range ets {
		p += k * heads[i] * math.Abs(q)
	}
	return p
}

func maxHead(heads []float64) float64 {
	if len(heads) == 0 {
		return 0
	}
	return math.Max(0, floats.Max(heads))
}

// ParsePumpingScheme returns the scheme with the given name.
func ParsePumpingScheme(name string) (PumpingScheme, error) {
	switch name {
	case "central", "":
		return CentralPumping{}, nil
	case "distributed":
		return DistributedPumping{}, nil
	default:
		return nil, configErrorf("unknown pumping scheme %q", name)
	}
}
