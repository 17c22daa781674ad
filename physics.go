package districtcooling

// Physics holds the physical constants shared by the grid and plant models.
type Physics struct {
	WaterDensity          float64 // kg/m3
	Gravity               float64 // m/s2
	KinematicViscosity    float64 // m2/s
	EnthalpyDifference    float64 // specific enthalpy difference supply/return of distribution water, J/kg
	EnthalpyCondenserWarm float64 // J/kg
	EnthalpyCondenserCold float64 // J/kg
	StepDuration          float64 // s
}

// DefaultPhysics returns constants for chilled water at about 6 degree C supply
// and 14 degree C return, with a 32/37 degree C condenser circuit and 30 min steps.
func DefaultPhysics() Physics {
	return Physics{
		WaterDensity:          1000.0,
		Gravity:               9.81,
		KinematicViscosity:    1.3e-6,
		EnthalpyDifference:    4186.0 * 8.0,
		EnthalpyCondenserWarm: 4186.0 * 37.0,
		EnthalpyCondenserCold: 4186.0 * 32.0,
		StepDuration:          IntervalM30.Seconds(),
	}
}

// StepHours returns the step duration, h
func (p Physics) StepHours() float64 {
	return p.StepDuration / 3600.0
}

// validate rejects constants that would make the models divide by zero or
// flip sign.
func (p Physics) validate() error {
	switch {
	case p.WaterDensity <= 0:
		return configErrorf("water density must be positive, got %g", p.WaterDensity)
	case p.Gravity <= 0:
		return configErrorf("gravitational acceleration must be positive, got %g", p.Gravity)
	case p.KinematicViscosity <= 0:
		return configErrorf("kinematic viscosity must be positive, got %g", p.KinematicViscosity)
	case p.EnthalpyDifference <= 0:
		return configErrorf("specific enthalpy difference must be positive, got %g", p.EnthalpyDifference)
	case p.EnthalpyCondenserWarm <= p.EnthalpyCondenserCold:
		return configErrorf("condenser warm enthalpy %g must exceed cold enthalpy %g",
			p.EnthalpyCondenserWarm, p.EnthalpyCondenserCold)
	case p.StepDuration <= 0:
		return configErrorf("step duration must be positive, got %g", p.StepDuration)
	}
	return nil
}
