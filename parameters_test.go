package districtcooling

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func gridFiles() map[string]string {
	return map[string]string{
		"nodes.csv": "id,type,x,y\n" +
			"0,reference,0,0\n" +
			"1,junction,100,0\n" +
			"2,building,200,0\n",
		"lines.csv": "id,start,end,length,diameter,roughness\n" +
			"a,0,1,100,0.1,0.1\n" +
			"b,1,2,100,0.1,0.1\n",
		"environment.csv": "step,price,wet_bulb\n" +
			"1,100,20\n" +
			"2,50,24\n",
	}
}

func TestLoadParametersDefaults(t *testing.T) {
	p, err := LoadParameters(writeFiles(t, gridFiles()))
	require.NoError(t, err)

	assert.Len(t, p.Nodes, 3)
	assert.Equal(t, NodeBuilding, p.Nodes[2].Type)
	assert.Equal(t, 200.0, p.Nodes[2].X)
	assert.Equal(t, Line{ID: "b", Start: "1", End: "2", Length: 100, Diameter: 0.1, Roughness: 0.1}, p.Lines[1])
	assert.Equal(t, DefaultPhysics(), p.Physics)
	assert.Equal(t, DefaultDistributionSystem(), p.Distribution)
	assert.Equal(t, DefaultPlantParameters(), p.Plant)
	assert.Equal(t, []float64{100, 50}, p.Environment.Price)
	assert.Equal(t, []float64{20, 24}, p.Environment.WetBulb)
	assert.Empty(t, p.Buildings)
	assert.Nil(t, p.CoolingLoads)

	topo, err := p.Topology()
	require.NoError(t, err)
	opts, err := p.Options(topo)
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}

func TestLoadParametersOverrides(t *testing.T) {
	files := gridFiles()
	files["physics.csv"] = "name,value\n" +
		"water_density,998\n" +
		"interval,1h\n"
	files["distribution_system.csv"] = "name,value\n" +
		"max_velocity,2.5\n" +
		"pumping_scheme,distributed\n"
	files["cooling_plant.csv"] = "name,value\n" +
		"storage_capacity,1e10\n" +
		"storage_initial_charge,0.5\n" +
		"chiller_type,linear\n" +
		"beta0,0.05\n" +
		"beta1,0.004\n"
	files["buildings.csv"] = "id,edge_length,initial_temperature\n" +
		"2,10,22\n"
	files["cooling_loads.csv"] = "building,step,load\n" +
		"2,2,5000\n"

	p, err := LoadParameters(writeFiles(t, files))
	require.NoError(t, err)

	assert.Equal(t, 998.0, p.Physics.WaterDensity)
	assert.Equal(t, 3600.0, p.Physics.StepDuration)
	assert.Equal(t, 2.5, p.Distribution.MaxVelocity)
	assert.Equal(t, "distributed", p.Distribution.PumpingScheme)
	assert.Equal(t, 1.0e10, p.Plant.StorageCapacity)
	assert.Equal(t, 0.5, p.Plant.StorageInitialCharge)
	assert.Equal(t, ChillerLinear, p.Plant.ChillerType)
	assert.Equal(t, map[string][]float64{"2": {0, 5000}}, p.CoolingLoads)

	require.Len(t, p.Buildings, 1)
	cube := p.Buildings[0].Cubic()
	assert.Equal(t, 10.0, cube.EdgeLength)
	assert.Equal(t, 20.0, cube.MinTemperature)
	assert.Equal(t, 26.0, cube.MaxTemperature)

	topo, err := p.Topology()
	require.NoError(t, err)
	opts, err := p.Options(topo)
	require.NoError(t, err)
	o := newOptions(opts)
	assert.Equal(t, DistributedPumping{}, o.pumping)
	require.Contains(t, o.buildings, "2")
	assert.Equal(t, []float64{0, 5000}, o.coolingLoads.Row("2"))

	plant, err := NewPlant(p.Physics, p.Plant, nil)
	require.NoError(t, err)
	_, err = NewDispatchOptimizer(topo, plant, p.Distribution, p.Environment, NewSimplexSolver(), opts...)
	assert.NoError(t, err)
}

func TestLoadParametersDryBulb(t *testing.T) {
	files := gridFiles()
	files["environment.csv"] = "step,price,dry_bulb,relative_humidity\n" +
		"1,100,30,100\n" +
		"2,100,30,50\n"

	p, err := LoadParameters(writeFiles(t, files))
	require.NoError(t, err)
	assert.InDelta(t, 30, p.Environment.WetBulb[0], 1e-3)
	assert.InDelta(t, 22, p.Environment.WetBulb[1], 0.5)
}

func TestLoadParametersAbsoluteHumidity(t *testing.T) {
	// 50 % at 30 degree C
	x := AbsoluteHumidity(0.5 * SaturationVaporPressure(30))
	files := gridFiles()
	files["environment.csv"] = "step,price,dry_bulb,absolute_humidity\n" +
		fmt.Sprintf("1,100,30,%v\n", x) +
		"2,100,30,0.05\n"

	_, err := LoadParameters(writeFiles(t, files))
	assertConfigError(t, err)

	files["environment.csv"] = "step,price,dry_bulb,absolute_humidity\n" +
		fmt.Sprintf("1,100,30,%v\n", x)
	p, err := LoadParameters(writeFiles(t, files))
	require.NoError(t, err)
	want, err := WetBulbTemperature(30, RelativeHumidity(VaporPressure(x), SaturationVaporPressure(30)))
	require.NoError(t, err)
	assert.Equal(t, want, p.Environment.WetBulb[0])
	assert.InDelta(t, 22, p.Environment.WetBulb[0], 0.5)
}

func TestLoadParametersInvalid(t *testing.T) {
	tests := map[string]func(files map[string]string){
		"missing nodes": func(files map[string]string) { delete(files, "nodes.csv") },
		"unknown node type": func(files map[string]string) {
			files["nodes.csv"] = "id,type,x,y\n0,reference,0,0\n1,plant,0,0\n"
		},
		"unknown parameter": func(files map[string]string) {
			files["physics.csv"] = "name,value\nwater_densty,998\n"
		},
		"bad number": func(files map[string]string) {
			files["cooling_plant.csv"] = "name,value\nchiller_capacity,lots\n"
		},
		"bad interval": func(files map[string]string) {
			files["physics.csv"] = "name,value\ninterval,10m\n"
		},
		"no weather": func(files map[string]string) {
			files["environment.csv"] = "step,price\n1,100\n"
		},
		"steps out of order": func(files map[string]string) {
			files["environment.csv"] = "step,price,wet_bulb\n2,100,20\n1,100,20\n"
		},
		"load step out of range": func(files map[string]string) {
			files["cooling_loads.csv"] = "building,step,load\n2,3,100\n"
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			files := gridFiles()
			mutate(files)
			_, err := LoadParameters(writeFiles(t, files))
			assertConfigError(t, err)
		})
	}
}

func TestParametersOptionsInvalidLoads(t *testing.T) {
	p, err := LoadParameters(writeFiles(t, gridFiles()))
	require.NoError(t, err)
	topo, err := p.Topology()
	require.NoError(t, err)

	p.CoolingLoads = map[string][]float64{"1": {1, 1}}
	_, err = p.Options(topo)
	assertConfigError(t, err)

	p.CoolingLoads = map[string][]float64{"2": {1}}
	_, err = p.Options(topo)
	assertConfigError(t, err)

	p.CoolingLoads = nil
	p.Distribution.PumpingScheme = "gravity"
	_, err = p.Options(topo)
	assertConfigError(t, err)
}

func TestInterval(t *testing.T) {
	i, err := ParseInterval("15m")
	require.NoError(t, err)
	assert.Equal(t, 4, i.StepsPerHour())
	assert.Equal(t, 900.0, i.Seconds())
	assert.Equal(t, 0.25, i.Hours())

	_, err = ParseInterval("2h")
	assertConfigError(t, err)
}
