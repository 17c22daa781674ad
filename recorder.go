package districtcooling

import (
	"io"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
)

// Record is one value of one result variable. Steps are 1-based.
type Record struct {
	Run      string  `csv:"run"`
	Variable string  `csv:"variable"`
	ID       string  `csv:"id"`
	Step     int     `csv:"step"`
	Value    float64 `csv:"value"`
}

// Recorder collects results in long format for CSV output.
type Recorder struct {
	run     string
	records []*Record
}

func NewRecorder(run string) *Recorder {
	return &Recorder{run: run}
}

func (r *Recorder) Records() []*Record { return r.records }

// RecordSeries adds every value of a series under the given variable name.
func (r *Recorder) RecordSeries(variable string, s *TimeSeries) {
	if s == nil {
		return
	}
	for i, id := range s.ids {
		for t := 0; t < s.steps; t++ {
			r.records = append(r.records, &Record{Run: r.run, Variable: variable, ID: id, Step: t + 1, Value: s.AtIndex(i, t)})
		}
	}
}

// RecordVector adds a per step quantity that belongs to no element.
func (r *Recorder) RecordVector(variable string, v []float64) {
	for t, x := range v {
		r.records = append(r.records, &Record{Run: r.run, Variable: variable, Step: t + 1, Value: x})
	}
}

func (r *Recorder) RecordEquilibrium(eq *GridEquilibrium) {
	r.RecordSeries("nodal_consumption", eq.NodalConsumption)
	r.RecordVector("reference_consumption", eq.ReferenceConsumption)
	r.RecordSeries("line_flow", eq.LineFlows)
	r.RecordSeries("line_head_loss", eq.LineHeadLoss)
	r.RecordSeries("nodal_head", eq.NodalHeads)
	r.RecordSeries("ets_head_difference", eq.ETSHeadDifference)
}

func (r *Recorder) RecordPumping(p *GridPumping) {
	r.RecordVector("central_pumping_power", p.Central)
	r.RecordSeries("distributed_pumping_power", p.Distributed)
	r.RecordVector("distributed_pumping_power_total", p.DistributedTotal)
}

func (r *Recorder) RecordSchedule(s *Schedule) {
	r.RecordVector("chiller_flow", s.ChillerFlow)
	r.RecordVector("storage_flow", s.StorageFlow)
	r.RecordVector("chiller_cooling", s.ChillerCooling)
	r.RecordVector("storage_energy", s.StorageEnergy)
	r.RecordVector("total_flow", s.TotalFlow)
	r.RecordVector("plant_power", s.PlantPower)
	r.RecordVector("pumping_power", s.PumpingPower)
	r.RecordSeries("ets_flow", s.ETSFlows)
	r.RecordSeries("heat_inflow", s.HeatInflow)
	r.RecordSeries("line_flow", s.LineFlows)
	r.RecordSeries("line_velocity", s.LineVelocity)
	for _, family := range []struct {
		name   string
		series map[string]*TimeSeries
	}{
		{"building_state", s.BuildingStates},
		{"building_control", s.BuildingControls},
		{"building_output", s.BuildingOutputs},
	} {
		ids := make([]string, 0, len(family.series))
		for id := range family.series {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			r.RecordSeries(family.name+"/"+id, family.series[id])
		}
	}
	r.records = append(r.records, &Record{Run: r.run, Variable: "objective", Value: s.Objective})
}

// RecordPlant adds the plant states of consecutive steps.
func (r *Recorder) RecordPlant(states []PlantState) {
	columns := []struct {
		name string
		get  func(PlantState) float64
	}{
		{"chiller_flow", func(s PlantState) float64 { return s.ChillerFlow }},
		{"storage_flow", func(s PlantState) float64 { return s.StorageFlow }},
		{"condensation_temperature", func(s PlantState) float64 { return s.CondensationTemperature }},
		{"cop", func(s PlantState) float64 { return s.COP }},
		{"evaporator_heat", func(s PlantState) float64 { return s.EvaporatorHeat }},
		{"chiller_power", func(s PlantState) float64 { return s.ChillerPower }},
		{"condenser_heat", func(s PlantState) float64 { return s.CondenserHeat }},
		{"condenser_flow", func(s PlantState) float64 { return s.CondenserFlow }},
		{"evaporator_pump_power", func(s PlantState) float64 { return s.EvaporatorPumpPower }},
		{"condenser_pump_power", func(s PlantState) float64 { return s.CondenserPumpPower }},
		{"cooling_tower_power", func(s PlantState) float64 { return s.CoolingTowerPower }},
		{"storage_pump_power", func(s PlantState) float64 { return s.StoragePumpPower }},
		{"plant_power", func(s PlantState) float64 { return s.TotalPower }},
	}
	for _, c := range columns {
		v := make([]float64, len(states))
		for t, s := range states {
			v[t] = c.get(s)
		}
		r.RecordVector(c.name, v)
	}
}

// Write writes all records as CSV.
func (r *Recorder) Write(w io.Writer) error {
	return gocsv.Marshal(&r.records, w)
}

// Save writes all records to a CSV file, replacing it.
func (r *Recorder) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	return r.writeClose(file)
}

// writeClose writes all records and closes w, returning the first error.
func (r *Recorder) writeClose(w io.WriteCloser) error {
	err := r.Write(w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
