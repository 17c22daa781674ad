package districtcooling

import (
	"fmt"
	"math"
)

// PlantParameters describes the central cooling plant: chiller set, condenser
// circuit, cooling towers and thermal energy storage.
type PlantParameters struct {
	ChillerCapacity          float64 // cooling capacity of the chiller set, W
	EvaporatorPumpHead       float64 // m
	EvaporatorPumpEfficiency float64 // -
	CondenserPumpHead        float64 // m
	CondenserPumpEfficiency  float64 // -
	StoragePumpHead          float64 // m
	StoragePumpEfficiency    float64 // -
	CoolingTowerVentilation  float64 // fan power per condenser heat, J/J
	StorageCapacity          float64 // J
	StorageInitialCharge     float64 // -
	StorageTerminalCharge    float64 // -
	ChillerType              string  // carnot or linear
	COPEfficiency            float64 // carnot, -
	EvaporationTemperature   float64 // carnot, degree C
	Beta0                    float64 // linear, -
	Beta1                    float64 // linear, 1/K
}

// DefaultPlantParameters returns a plant with no storage and a Carnot chiller.
func DefaultPlantParameters() PlantParameters {
	return PlantParameters{
		ChillerCapacity:          20.0e6,
		EvaporatorPumpHead:       20.0,
		EvaporatorPumpEfficiency: 0.8,
		CondenserPumpHead:        15.0,
		CondenserPumpEfficiency:  0.8,
		StoragePumpHead:          10.0,
		StoragePumpEfficiency:    0.8,
		CoolingTowerVentilation:  0.01,
		ChillerType:              ChillerCarnot,
		COPEfficiency:            0.5,
		EvaporationTemperature:   4.0,
	}
}

// Chiller returns the chiller model the parameters select.
func (p PlantParameters) Chiller() (ChillerModel, error) {
	switch p.ChillerType {
	case ChillerCarnot, "":
		if p.COPEfficiency <= 0 {
			return nil, configErrorf("COP efficiency must be positive, got %g", p.COPEfficiency)
		}
		return CarnotChiller{Efficiency: p.COPEfficiency, EvaporationTemperature: p.EvaporationTemperature}, nil
	case ChillerLinear:
		return LinearChiller{Beta0: p.Beta0, Beta1: p.Beta1}, nil
	default:
		return nil, configErrorf("unknown chiller type %q", p.ChillerType)
	}
}

func (p PlantParameters) validate() error {
	switch {
	case p.ChillerCapacity < 0:
		return configErrorf("chiller capacity must not be negative, got %g", p.ChillerCapacity)
	case p.StorageCapacity < 0:
		return configErrorf("storage capacity must not be negative, got %g", p.StorageCapacity)
	case p.EvaporatorPumpEfficiency <= 0, p.CondenserPumpEfficiency <= 0, p.StoragePumpEfficiency <= 0:
		return configErrorf("pump efficiencies must be positive")
	case p.EvaporatorPumpHead < 0, p.CondenserPumpHead < 0, p.StoragePumpHead < 0:
		return configErrorf("pump heads must not be negative")
	case p.CoolingTowerVentilation < 0:
		return configErrorf("cooling tower ventilation factor must not be negative, got %g", p.CoolingTowerVentilation)
	case p.StorageInitialCharge < 0 || p.StorageInitialCharge > 1:
		return configErrorf("storage initial charge ratio %g outside [0, 1]", p.StorageInitialCharge)
	case p.StorageTerminalCharge < 0 || p.StorageTerminalCharge > 1:
		return configErrorf("storage terminal charge ratio %g outside [0, 1]", p.StorageTerminalCharge)
	}
	return nil
}

// Plant evaluates the power drawn by the cooling plant for given chiller and
// storage flows. Positive storage flow discharges the storage into the grid.
type Plant struct {
	physics Physics
	params  PlantParameters
	chiller ChillerModel
}

// NewPlant returns a plant model. A nil chiller selects the one named in params.
func NewPlant(physics Physics, params PlantParameters, chiller ChillerModel) (*Plant, error) {
	if err := physics.validate(); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if chiller == nil {
		c, err := params.Chiller()
		if err != nil {
			return nil, err
		}
		chiller = c
	}
	return &Plant{physics: physics, params: params, chiller: chiller}, nil
}

func (p *Plant) Physics() Physics            { return p.physics }
func (p *Plant) Parameters() PlantParameters { return p.params }

// CoolingPowerCoefficient returns rho * dh, the cooling power per unit of
// chiller flow, J/m3.
func (p *Plant) CoolingPowerCoefficient() float64 {
	return p.physics.WaterDensity * p.physics.EnthalpyDifference
}

// EvaporatorHeat returns the heat drawn from the distribution water, W
func (p *Plant) EvaporatorHeat(chillerFlow float64) float64 {
	return p.CoolingPowerCoefficient() * chillerFlow
}

// InverseCOP returns the inverse COP of the chiller set at an ambient wet-bulb
// temperature. It fails when the chiller model yields a non-positive or
// non-finite value there.
func (p *Plant) InverseCOP(wetBulb float64) (float64, error) {
	tc := CondensationTemperature(wetBulb)
	inv := p.chiller.InverseCOP(tc)
	if !(inv > 0) || math.IsInf(inv, 0) {
		return 0, configErrorf("chiller inverse COP is %g at condensation temperature %g degree C", inv, tc)
	}
	return inv, nil
}

// pumpPower returns rho g H q / eta, W
func (p *Plant) pumpPower(head, efficiency, flow float64) float64 {
	return p.physics.WaterDensity * p.physics.Gravity * head * flow / efficiency
}

// condenserFlowPerHeat returns the condenser water flow per condenser heat, m3/J
func (p *Plant) condenserFlowPerHeat() float64 {
	return 1.0 / (p.physics.WaterDensity * (p.physics.EnthalpyCondenserWarm - p.physics.EnthalpyCondenserCold))
}

// PlantState holds every intermediate quantity of the plant at one operating point.
type PlantState struct {
	ChillerFlow             float64 // m3/s
	StorageFlow             float64 // m3/s
	WetBulb                 float64 // degree C
	CondensationTemperature float64 // degree C
	COP                     float64 // -
	EvaporatorHeat          float64 // W
	ChillerPower            float64 // W
	CondenserHeat           float64 // W
	CondenserFlow           float64 // m3/s
	EvaporatorPumpPower     float64 // W
	CondenserPumpPower      float64 // W
	CoolingTowerPower       float64 // W
	StoragePumpPower        float64 // W
	TotalPower              float64 // W
}

/*
Evaluates the plant at one operating point.

	Args:
		chillerFlow: distribution water flow through the evaporators, m3/s
		storageFlow: water flow out of the storage into the grid, m3/s
		wetBulb: ambient wet-bulb temperature, degree C
	Returns:
		the plant state
*/
func (p *Plant) Simulate(chillerFlow, storageFlow, wetBulb float64) (PlantState, error) {
	inv, err := p.InverseCOP(wetBulb)
	if err != nil {
		return PlantState{}, err
	}
	s := PlantState{
		ChillerFlow:             chillerFlow,
		StorageFlow:             storageFlow,
		WetBulb:                 wetBulb,
		CondensationTemperature: CondensationTemperature(wetBulb),
		COP:                     1.0 / inv,
		EvaporatorHeat:          p.EvaporatorHeat(chillerFlow),
	}
	s.ChillerPower = s.EvaporatorHeat * inv
	s.CondenserHeat = s.EvaporatorHeat + s.ChillerPower
	s.CondenserFlow = s.CondenserHeat * p.condenserFlowPerHeat()
	s.EvaporatorPumpPower = p.pumpPower(p.params.EvaporatorPumpHead, p.params.EvaporatorPumpEfficiency, chillerFlow)
	s.CondenserPumpPower = p.pumpPower(p.params.CondenserPumpHead, p.params.CondenserPumpEfficiency, s.CondenserFlow)
	s.CoolingTowerPower = p.params.CoolingTowerVentilation * s.CondenserHeat
	s.StoragePumpPower = p.pumpPower(p.params.StoragePumpHead, p.params.StoragePumpEfficiency, storageFlow)
	s.TotalPower = s.ChillerPower + s.EvaporatorPumpPower + s.CondenserPumpPower + s.CoolingTowerPower + s.StoragePumpPower
	return s, nil
}

/*
Linear coefficients of the total plant power at a wet-bulb temperature.

	Returns:
		perChillerFlow: W per m3/s of chiller flow
		perStorageFlow: W per m3/s of storage flow
	Notes:
		TotalPower(qc, qs) = perChillerFlow * qc + perStorageFlow * qs
*/
func (p *Plant) PowerCoefficients(wetBulb float64) (perChillerFlow, perStorageFlow float64, err error) {
	inv, err := p.InverseCOP(wetBulb)
	if err != nil {
		return 0, 0, err
	}
	heat := p.CoolingPowerCoefficient()
	condenserHeat := heat * (1.0 + inv)
	perChillerFlow = heat*inv +
		p.pumpPower(p.params.EvaporatorPumpHead, p.params.EvaporatorPumpEfficiency, 1.0) +
		p.pumpPower(p.params.CondenserPumpHead, p.params.CondenserPumpEfficiency, condenserHeat*p.condenserFlowPerHeat()) +
		p.params.CoolingTowerVentilation*condenserHeat
	perStorageFlow = p.pumpPower(p.params.StoragePumpHead, p.params.StoragePumpEfficiency, 1.0)
	return perChillerFlow, perStorageFlow, nil
}

// StorageChangeCoefficient returns the storage energy change per unit of
// storage flow over one step, J per m3/s.
func (p *Plant) StorageChangeCoefficient() float64 {
	return -p.CoolingPowerCoefficient() * p.physics.StepDuration
}

// StorageEnergyChange returns the change of stored energy over one step, J
func (p *Plant) StorageEnergyChange(storageFlow float64) float64 {
	return p.StorageChangeCoefficient() * storageFlow
}

// InitialStorageEnergy returns capacity * initial charge ratio, J
func (p *Plant) InitialStorageEnergy() float64 {
	return p.params.StorageCapacity * p.params.StorageInitialCharge
}

// TerminalStorageEnergy returns capacity * terminal charge ratio, J
func (p *Plant) TerminalStorageEnergy() float64 {
	return p.params.StorageCapacity * p.params.StorageTerminalCharge
}

/*
Stored energy at the end of a step.

	Args:
		step: 0-based step index
		storageFlows: storage flow of every step, m3/s, [T]
	Returns:
		energy content, J
*/
func (p *Plant) StorageEnergyContent(step int, storageFlows []float64) (float64, error) {
	if step < 0 || step >= len(storageFlows) {
		return 0, fmt.Errorf("step %d outside horizon of %d steps", step, len(storageFlows))
	}
	e := p.InitialStorageEnergy()
	for k := 0; k <= step; k++ {
		e += p.StorageEnergyChange(storageFlows[k])
	}
	return e, nil
}
