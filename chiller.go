package districtcooling

const (
	absoluteZero = 273.15 // K
)

// ChillerModel maps the condensation temperature of the chiller set to its
// inverse coefficient of performance, electrical power per unit of cooling.
type ChillerModel interface {
	InverseCOP(condensationTemperature float64) float64
}

// CondensationTemperature is the chiller condensation temperature correlated
// with the ambient wet-bulb temperature, degree C.
func CondensationTemperature(wetBulb float64) float64 {
	return 12.47 + 0.727*wetBulb
}

// CarnotChiller derates the Carnot COP between evaporation and condensation
// temperature by a constant efficiency.
type CarnotChiller struct {
	Efficiency             float64 // -
	EvaporationTemperature float64 // degree C
}

/*
Inverse of the Carnot based COP.

	Notes:
		COP = eta * (T_evap + 273.15) / (T_cond - T_evap)
*/
func (c CarnotChiller) InverseCOP(condensationTemperature float64) float64 {
	return (condensationTemperature - c.EvaporationTemperature) /
		(c.Efficiency * (c.EvaporationTemperature + absoluteZero))
}

// COP returns the coefficient of performance at a condensation temperature.
func (c CarnotChiller) COP(condensationTemperature float64) float64 {
	return 1.0 / c.InverseCOP(condensationTemperature)
}

// LinearChiller fits the inverse COP as a straight line in the
// condensation temperature.
type LinearChiller struct {
	Beta0 float64 // -
	Beta1 float64 // 1/K
}

func (c LinearChiller) InverseCOP(condensationTemperature float64) float64 {
	return c.Beta0 + c.Beta1*condensationTemperature
}

// Chiller model names accepted in the plant parameters.
const (
	ChillerCarnot = "carnot"
	ChillerLinear = "linear"
)
