package districtcooling

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// DistributionSystem holds the constants of the secondary distribution.
type DistributionSystem struct {
	PumpEfficiency float64 // secondary pump, -
	MinVelocity    float64 // m/s
	MaxVelocity    float64 // m/s
	ETSHeadLoss    float64 // head loss over the ETS heat exchanger, m
	PumpingScheme  string  // central or distributed
}

func DefaultDistributionSystem() DistributionSystem {
	return DistributionSystem{
		PumpEfficiency: 0.8,
		MinVelocity:    0.0,
		MaxVelocity:    3.0,
		ETSHeadLoss:    5.0,
		PumpingScheme:  "central",
	}
}

func (d DistributionSystem) validate() error {
	switch {
	case d.PumpEfficiency <= 0:
		return configErrorf("secondary pump efficiency must be positive, got %g", d.PumpEfficiency)
	case d.MinVelocity < 0 || d.MinVelocity > d.MaxVelocity:
		return configErrorf("pipe velocity bounds [%g, %g] are invalid", d.MinVelocity, d.MaxVelocity)
	case d.ETSHeadLoss < 0:
		return configErrorf("ETS head loss must not be negative, got %g", d.ETSHeadLoss)
	}
	return nil
}

// Environment holds the per step price and ambient conditions. Its length
// defines the horizon.
type Environment struct {
	Price   []float64 // price per MWh, [T]
	WetBulb []float64 // degree C, [T]
}

func NewEnvironment(price, wetBulb []float64) (*Environment, error) {
	e := &Environment{Price: price, WetBulb: wetBulb}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Environment) Steps() int { return len(e.Price) }

func (e *Environment) validate() error {
	if len(e.Price) == 0 {
		return configErrorf("environment has no steps")
	}
	if len(e.WetBulb) != len(e.Price) {
		return configErrorf("environment has %d prices but %d wet-bulb temperatures", len(e.Price), len(e.WetBulb))
	}
	return nil
}

// BuildingParameters describes the optional cubic thermal model of a building.
type BuildingParameters struct {
	ID                 string  `csv:"id"`
	EdgeLength         float64 `csv:"edge_length"`         // m
	InitialTemperature float64 `csv:"initial_temperature"` // degree C
	MinTemperature     float64 `csv:"min_temperature"`     // degree C
	MaxTemperature     float64 `csv:"max_temperature"`     // degree C
}

// Cubic returns the cubic building the parameters describe.
func (b BuildingParameters) Cubic() CubicBuilding {
	c := NewCubicBuilding(b.EdgeLength, b.InitialTemperature)
	if b.MinTemperature != 0 || b.MaxTemperature != 0 {
		c.MinTemperature, c.MaxTemperature = b.MinTemperature, b.MaxTemperature
	}
	return c
}

// Parameters is everything needed to build the grid, the plant and the
// dispatch problem.
type Parameters struct {
	Nodes        []Node
	Lines        []Line
	Buildings    []BuildingParameters
	Physics      Physics
	Distribution DistributionSystem
	Plant        PlantParameters
	Environment  *Environment
	CoolingLoads map[string][]float64 // W per building, [T]
}

// Topology builds the grid topology.
func (p *Parameters) Topology() (*Topology, error) {
	return NewTopology(p.Nodes, p.Lines)
}

// Options returns the solver options the parameters imply: pumping scheme,
// building models and cooling loads.
func (p *Parameters) Options(topo *Topology) ([]Option, error) {
	scheme, err := ParsePumpingScheme(p.Distribution.PumpingScheme)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithPumpingScheme(scheme)}

	steps := p.Environment.Steps()
	for _, b := range p.Buildings {
		m, err := b.Cubic().Model(p.Physics.StepDuration, steps)
		if err != nil {
			return nil, fmt.Errorf("building %q: %w", b.ID, err)
		}
		opts = append(opts, WithBuildingModel(b.ID, m))
	}

	if len(p.CoolingLoads) > 0 {
		loads := NewTimeSeries(topo.BuildingIDs(), steps)
		for id, row := range p.CoolingLoads {
			if _, ok := loads.Index(id); !ok {
				return nil, configErrorf("cooling load given for %q which is not a building", id)
			}
			if len(row) != steps {
				return nil, configErrorf("cooling load of %q has %d steps, want %d", id, len(row), steps)
			}
			loads.SetRow(id, row)
		}
		opts = append(opts, WithCoolingLoads(loads))
	}
	return opts, nil
}

type nodeRow struct {
	ID   string  `csv:"id"`
	Type string  `csv:"type"`
	X    float64 `csv:"x"`
	Y    float64 `csv:"y"`
}

type lineRow struct {
	ID        string  `csv:"id"`
	Start     string  `csv:"start"`
	End       string  `csv:"end"`
	Length    float64 `csv:"length"`
	Diameter  float64 `csv:"diameter"`
	Roughness float64 `csv:"roughness"`
}

type environmentRow struct {
	Step             int     `csv:"step"`
	Price            float64 `csv:"price"`
	WetBulb          string  `csv:"wet_bulb"`
	DryBulb          string  `csv:"dry_bulb"`
	RelativeHumidity string  `csv:"relative_humidity"`
	AbsoluteHumidity string  `csv:"absolute_humidity"`
}

type coolingLoadRow struct {
	Building string  `csv:"building"`
	Step     int     `csv:"step"`
	Load     float64 `csv:"load"`
}

type namedValue struct {
	Name  string `csv:"name"`
	Value string `csv:"value"`
}

/*
Reads all parameter tables from a directory.

	Args:
		dir: directory holding nodes.csv, lines.csv, environment.csv and
			optionally buildings.csv, cooling_loads.csv, physics.csv,
			distribution_system.csv, cooling_plant.csv
	Returns:
		the parameters; missing optional tables keep their defaults
	Notes:
		Steps in environment.csv and cooling_loads.csv are 1-based.
*/
func LoadParameters(dir string) (*Parameters, error) {
	p := &Parameters{
		Physics:      DefaultPhysics(),
		Distribution: DefaultDistributionSystem(),
		Plant:        DefaultPlantParameters(),
	}

	var nodes []*nodeRow
	if err := readTable(dir, "nodes.csv", true, &nodes); err != nil {
		return nil, err
	}
	for _, r := range nodes {
		t, err := ParseNodeType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("nodes.csv: %w", err)
		}
		p.Nodes = append(p.Nodes, Node{ID: r.ID, Type: t, X: r.X, Y: r.Y})
	}

	var lines []*lineRow
	if err := readTable(dir, "lines.csv", true, &lines); err != nil {
		return nil, err
	}
	for _, r := range lines {
		p.Lines = append(p.Lines, Line{ID: r.ID, Start: r.Start, End: r.End, Length: r.Length, Diameter: r.Diameter, Roughness: r.Roughness})
	}

	var buildings []*BuildingParameters
	if err := readTable(dir, "buildings.csv", false, &buildings); err != nil {
		return nil, err
	}
	for _, b := range buildings {
		p.Buildings = append(p.Buildings, *b)
	}

	if err := readNamedValues(dir, "physics.csv", map[string]*float64{
		"water_density":           &p.Physics.WaterDensity,
		"gravity":                 &p.Physics.Gravity,
		"kinematic_viscosity":     &p.Physics.KinematicViscosity,
		"enthalpy_difference":     &p.Physics.EnthalpyDifference,
		"enthalpy_condenser_warm": &p.Physics.EnthalpyCondenserWarm,
		"enthalpy_condenser_cold": &p.Physics.EnthalpyCondenserCold,
		"step_duration":           &p.Physics.StepDuration,
	}, map[string]func(string) error{
		"interval": func(v string) error {
			itv, err := ParseInterval(v)
			if err != nil {
				return err
			}
			p.Physics.StepDuration = itv.Seconds()
			return nil
		},
	}); err != nil {
		return nil, err
	}

	if err := readNamedValues(dir, "distribution_system.csv", map[string]*float64{
		"pump_efficiency": &p.Distribution.PumpEfficiency,
		"min_velocity":    &p.Distribution.MinVelocity,
		"max_velocity":    &p.Distribution.MaxVelocity,
		"ets_head_loss":   &p.Distribution.ETSHeadLoss,
	}, map[string]func(string) error{
		"pumping_scheme": func(v string) error {
			p.Distribution.PumpingScheme = v
			return nil
		},
	}); err != nil {
		return nil, err
	}

	if err := readNamedValues(dir, "cooling_plant.csv", map[string]*float64{
		"chiller_capacity":           &p.Plant.ChillerCapacity,
		"evaporator_pump_head":       &p.Plant.EvaporatorPumpHead,
		"evaporator_pump_efficiency": &p.Plant.EvaporatorPumpEfficiency,
		"condenser_pump_head":        &p.Plant.CondenserPumpHead,
		"condenser_pump_efficiency":  &p.Plant.CondenserPumpEfficiency,
		"storage_pump_head":          &p.Plant.StoragePumpHead,
		"storage_pump_efficiency":    &p.Plant.StoragePumpEfficiency,
		"cooling_tower_ventilation":  &p.Plant.CoolingTowerVentilation,
		"storage_capacity":           &p.Plant.StorageCapacity,
		"storage_initial_charge":     &p.Plant.StorageInitialCharge,
		"storage_terminal_charge":    &p.Plant.StorageTerminalCharge,
		"cop_efficiency":             &p.Plant.COPEfficiency,
		"evaporation_temperature":    &p.Plant.EvaporationTemperature,
		"beta0":                      &p.Plant.Beta0,
		"beta1":                      &p.Plant.Beta1,
	}, map[string]func(string) error{
		"chiller_type": func(v string) error {
			p.Plant.ChillerType = v
			return nil
		},
	}); err != nil {
		return nil, err
	}

	env, err := loadEnvironment(dir)
	if err != nil {
		return nil, err
	}
	p.Environment = env

	var loads []*coolingLoadRow
	if err := readTable(dir, "cooling_loads.csv", false, &loads); err != nil {
		return nil, err
	}
	if len(loads) > 0 {
		p.CoolingLoads = map[string][]float64{}
		for _, r := range loads {
			if r.Step < 1 || r.Step > env.Steps() {
				return nil, configErrorf("cooling_loads.csv: step %d outside 1..%d", r.Step, env.Steps())
			}
			row, ok := p.CoolingLoads[r.Building]
			if !ok {
				row = make([]float64, env.Steps())
				p.CoolingLoads[r.Building] = row
			}
			row[r.Step-1] = r.Load
		}
	}
	return p, nil
}

func loadEnvironment(dir string) (*Environment, error) {
	var rows []*environmentRow
	if err := readTable(dir, "environment.csv", true, &rows); err != nil {
		return nil, err
	}
	env := &Environment{Price: make([]float64, len(rows)), WetBulb: make([]float64, len(rows))}
	for i, r := range rows {
		if r.Step != 0 && r.Step != i+1 {
			return nil, configErrorf("environment.csv: row %d has step %d, want %d", i+1, r.Step, i+1)
		}
		env.Price[i] = r.Price
		twb, err := wetBulbOf(r)
		if err != nil {
			return nil, fmt.Errorf("environment.csv: step %d: %w", i+1, err)
		}
		env.WetBulb[i] = twb
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// wetBulbOf returns the wet-bulb temperature of a row, derived from dry-bulb
// temperature and relative or absolute humidity when no wet-bulb is given.
func wetBulbOf(r *environmentRow) (float64, error) {
	if s := strings.TrimSpace(r.WetBulb); s != "" {
		return strconv.ParseFloat(s, 64)
	}
	db := strings.TrimSpace(r.DryBulb)
	rh, ah := strings.TrimSpace(r.RelativeHumidity), strings.TrimSpace(r.AbsoluteHumidity)
	if db == "" || (rh == "" && ah == "") {
		return 0, configErrorf("neither wet_bulb nor dry_bulb with relative_humidity or absolute_humidity given")
	}
	t, err := strconv.ParseFloat(db, 64)
	if err != nil {
		return 0, err
	}
	var h float64
	if rh != "" {
		if h, err = strconv.ParseFloat(rh, 64); err != nil {
			return 0, err
		}
	} else {
		x, err := strconv.ParseFloat(ah, 64)
		if err != nil {
			return 0, err
		}
		h = RelativeHumidity(VaporPressure(x), SaturationVaporPressure(t))
	}
	return WetBulbTemperature(t, h)
}

// readTable unmarshals a CSV file of the directory into out. A missing
// optional file leaves out untouched.
func readTable(dir, name string, required bool, out interface{}) error {
	path := filepath.Join(dir, name)
	file, err := os.Open(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return configErrorf("%s: %v", name, err)
	}
	defer file.Close()

	if err := gocsv.UnmarshalFile(file, out); err != nil {
		return configErrorf("%s: %v", name, err)
	}
	return nil
}

// readNamedValues reads an optional name,value table and stores each value
// in the float field or hands it to the setter registered under its name.
func readNamedValues(dir, name string, fields map[string]*float64, setters map[string]func(string) error) error {
	var rows []*namedValue
	if err := readTable(dir, name, false, &rows); err != nil {
		return err
	}
	for _, r := range rows {
		key := strings.TrimSpace(r.Name)
		value := strings.TrimSpace(r.Value)
		if f, ok := fields[key]; ok {
			v, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(v) {
				return configErrorf("%s: %s: invalid number %q", name, key, value)
			}
			*f = v
			continue
		}
		if set, ok := setters[key]; ok {
			if err := set(value); err != nil {
				return fmt.Errorf("%s: %s: %w", name, key, err)
			}
			continue
		}
		return configErrorf("%s: unknown parameter %q", name, key)
	}
	return nil
}
