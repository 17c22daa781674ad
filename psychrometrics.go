package districtcooling

import (
	"math"
)

const (
	atmosphericPressure = 101325.0 // Pa
	wetBulbIterations   = 100
	wetBulbTolerance    = 1.0e-6 // K
)

/*
Saturation vapour pressure of water over liquid water or ice.

	Args:
		theta: air temperature, degree C
	Returns:
		saturation vapour pressure, Pa
	Notes:
		Wexler-Hyland form.
*/
func SaturationVaporPressure(theta float64) float64 {
	t := theta + absoluteZero

	const a1 = -6096.9385
	const a2 = 21.2409642
	const a3 = -0.02711193
	const a4 = 0.00001673952
	const a5 = 2.433502
	const b1 = -6024.5282
	const b2 = 29.32707
	const b3 = 0.010613863
	const b4 = -0.000013198825
	const b5 = -0.49382577

	if theta >= 0.0 {
		return math.Exp(a1/t + a2 + a3*t + a4*t*t + a5*math.Log(t))
	}
	return math.Exp(b1/t + b2 + b3*t + b4*t*t + b5*math.Log(t))
}

/*
Absolute humidity from vapour pressure.

	Args:
		pv: vapour pressure, Pa
	Returns:
		absolute humidity, kg/kg(DA)
*/
func AbsoluteHumidity(pv float64) float64 {
	return 0.622 * pv / (atmosphericPressure - pv)
}

// VaporPressure returns the vapour pressure, Pa, of air with absolute humidity x, kg/kg(DA).
func VaporPressure(x float64) float64 {
	return atmosphericPressure * x / (x + 0.62198)
}

// RelativeHumidity returns pv / pvs, %
func RelativeHumidity(pv, pvs float64) float64 {
	return pv / pvs * 100.0
}

/*
Thermodynamic wet-bulb temperature of moist air at atmospheric pressure.

	Args:
		dryBulb: air temperature, degree C
		relativeHumidity: %
	Returns:
		wet-bulb temperature, degree C
	Notes:
		Bisection on the adiabatic saturation balance
		x = ((2501 - 2.326 twb) xs(twb) - 1.006 (t - twb)) / (2501 + 1.86 t - 4.186 twb)
*/
func WetBulbTemperature(dryBulb, relativeHumidity float64) (float64, error) {
	if relativeHumidity <= 0 || relativeHumidity > 100 {
		return 0, configErrorf("relative humidity %g%% outside (0, 100]", relativeHumidity)
	}
	x := AbsoluteHumidity(SaturationVaporPressure(dryBulb) * relativeHumidity / 100.0)

	balance := func(twb float64) float64 {
		xs := AbsoluteHumidity(SaturationVaporPressure(twb))
		return ((2501.0-2.326*twb)*xs-1.006*(dryBulb-twb))/(2501.0+1.86*dryBulb-4.186*twb) - x
	}

	lo, hi := dryBulb-60.0, dryBulb
	if balance(hi) < 0 {
		// numerically saturated
		return dryBulb, nil
	}
	for i := 0; i < wetBulbIterations && hi-lo > wetBulbTolerance; i++ {
		mid := 0.5 * (lo + hi)
		if balance(mid) < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi), nil
}
