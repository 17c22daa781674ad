package districtcooling

import (
	"math"
)

const (
	laminarLimit         = 4000.0 // Reynolds number below which flow is laminar
	turbulentLimit       = 1.0e8  // upper Reynolds bound of the Swamee-Jain correlation
	minRelativeRoughness = 1.0e-6
	maxRelativeRoughness = 1.0e-2
)

/*
Mean flow velocity in a circular pipe.

	Args:
		flow: volumetric flow, m3/s
		diameter: internal diameter, m
	Returns:
		velocity, m/s, with the sign of flow
*/
func Velocity(flow, diameter float64) float64 {
	return 4.0 * flow / (math.Pi * diameter * diameter)
}

// VelocityCoefficient returns the factor k such that velocity = k * flow, s/m2
func VelocityCoefficient(diameter float64) float64 {
	return 4.0 / (math.Pi * diameter * diameter)
}

/*
Reynolds number of pipe flow.

	Args:
		flow: volumetric flow, m3/s
		diameter: internal diameter, m
		nu: kinematic viscosity, m2/s
	Returns:
		Reynolds number, -
*/
func Reynolds(flow, diameter, nu float64) float64 {
	return math.Abs(Velocity(flow, diameter)) * diameter / nu
}

/*
Darcy friction factor.

	Args:
		flow: volumetric flow, m3/s
		diameter: internal diameter, m
		roughnessMM: absolute roughness, mm
		nu: kinematic viscosity, m2/s
	Returns:
		friction factor, -
	Notes:
		Re = 0: 0
		0 < Re < 4000: Hagen-Poiseuille 64/Re
		4000 <= Re <= 1e8 with relative roughness in [1e-6, 1e-2]: Swamee-Jain
		anything else returns *OutOfRangeError
*/
func FrictionFactor(flow, diameter, roughnessMM, nu float64) (float64, error) {
	re := Reynolds(flow, diameter, nu)
	roughness := roughnessMM / 1000.0
	relative := roughness / diameter

	switch {
	case re == 0:
		return 0, nil
	case re < laminarLimit:
		return 64.0 / re, nil
	case re <= turbulentLimit && relative >= minRelativeRoughness && relative <= maxRelativeRoughness:
		l := math.Log(roughness/(3.7*diameter) + 5.74/math.Pow(re, 0.9))
		return 1.325 / (l * l), nil
	default:
		return 0, &OutOfRangeError{Reynolds: re, RelativeRoughness: relative}
	}
}

/*
Darcy-Weisbach head loss along a pipe.

	Args:
		flow: volumetric flow, m3/s
		diameter: internal diameter, m
		roughnessMM: absolute roughness, mm
		length: pipe length, m
		nu: kinematic viscosity, m2/s
		gravity: gravitational acceleration, m/s2
	Returns:
		head loss, m, with the sign of flow
*/
func HeadLoss(flow, diameter, roughnessMM, length, nu, gravity float64) (float64, error) {
	f, err := FrictionFactor(flow, diameter, roughnessMM, nu)
	if err != nil {
		return 0, err
	}
	return f * 8.0 * length * flow * math.Abs(flow) / (gravity * math.Pi * math.Pi * math.Pow(diameter, 5)), nil
}

/*
Smallest internal diameter that keeps the mean velocity at or below a limit.

	Args:
		flow: design flow, m3/s
		maxVelocity: velocity limit, m/s
	Returns:
		diameter, m
*/
func DiameterForVelocity(flow, maxVelocity float64) float64 {
	return math.Sqrt(4.0 / math.Pi * math.Abs(flow) / maxVelocity)
}
