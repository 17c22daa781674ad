package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dc "districtcooling"
)

func inputDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"nodes.csv":       "id,type,x,y\n0,reference,0,0\n1,junction,100,0\n2,building,200,0\n3,building,200,100\n",
		"lines.csv":       "id,start,end,length,diameter,roughness\na,0,1,100,0.2,0.1\nb,1,2,100,0.1,0.1\nc,1,3,150,0.1,0.1\n",
		"environment.csv": "step,price,wet_bulb\n1,100,20\n2,80,22\n3,120,25\n",
		"cooling_loads.csv": "building,step,load\n2,1,200000\n3,2,300000\n2,3,100000\n3,3,100000\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func testConfig(t *testing.T, mode string) Config {
	return Config{
		InputDir:      inputDir(t),
		OutputDir:     t.TempDir(),
		Mode:          mode,
		Flow:          0.01,
		ChillerFlow:   0.02,
		MaxVelocity:   2,
		Tolerance:     1e-6,
		MaxIterations: 30,
	}
}

func readRecords(t *testing.T, path string) []*dc.Record {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	var records []*dc.Record
	require.NoError(t, gocsv.UnmarshalFile(file, &records))
	return records
}

// values returns the values of one variable and element by 1-based step.
func values(records []*dc.Record, variable, id string) map[int]float64 {
	out := map[int]float64{}
	for _, r := range records {
		if r.Variable == variable && r.ID == id {
			out[r.Step] = r.Value
		}
	}
	return out
}

func TestRunModes(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			cfg := testConfig(t, mode)
			require.NoError(t, run(context.Background(), cfg, "test"))

			path := filepath.Join(cfg.OutputDir, "run-test", mode+".csv")
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Greater(t, info.Size(), int64(0))
			assert.NotEmpty(t, readRecords(t, path))
		})
	}
}

func TestRunDispatchesCoolingLoads(t *testing.T) {
	heat := dc.DefaultPhysics().WaterDensity * dc.DefaultPhysics().EnthalpyDifference
	want := map[string]map[int]float64{
		"2": {1: 200000 / heat, 2: 0, 3: 100000 / heat},
		"3": {1: 0, 2: 300000 / heat, 3: 100000 / heat},
	}
	for _, mode := range []string{"optimize", "equilibrium"} {
		t.Run(mode, func(t *testing.T) {
			cfg := testConfig(t, mode)
			require.NoError(t, run(context.Background(), cfg, "test"))
			records := readRecords(t, filepath.Join(cfg.OutputDir, "run-test", mode+".csv"))

			for id, steps := range want {
				got := values(records, "ets_flow", id)
				require.Len(t, got, 3, id)
				for step, q := range steps {
					assert.InDelta(t, q, got[step], 1e-9, "building %s step %d", id, step)
				}
			}
			for step, q := range values(records, "total_flow", "") {
				assert.InDelta(t, want["2"][step]+want["3"][step], q, 1e-9, "step %d", step)
			}
			if mode == "equilibrium" {
				est := values(records, "estimated_ets_flow", "3")
				assert.InDelta(t, want["3"][2], est[2], 2*cfg.Tolerance)
			}
		})
	}
}

func TestRunUnknownMode(t *testing.T) {
	err := run(context.Background(), testConfig(t, "calibrate"), "test")
	assert.ErrorContains(t, err, "unknown mode")
}

func TestRunMissingInput(t *testing.T) {
	cfg := testConfig(t, "simulate")
	cfg.InputDir = filepath.Join(cfg.OutputDir, "missing")
	assert.Error(t, run(context.Background(), cfg, "test"))
}
