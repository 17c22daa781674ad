package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	dc "districtcooling"
)

type Config struct {
	InputDir      string
	OutputDir     string
	Mode          string
	Flow          float64
	ChillerFlow   float64
	StorageFlow   float64
	MaxVelocity   float64
	Tolerance     float64
	MaxIterations int
	Parallelism   int
	Pumping       string
	LogLevel      string
}

var modes = []string{"simulate", "plant", "optimize", "equilibrium", "size"}

/*
Runs one mode against a parameter directory.

	Args:
		ctx: cancelled on interrupt
		cfg: command line configuration
		runID: identifier of this run, used for the output directory
*/
func run(ctx context.Context, cfg Config, runID string) error {
	log.Info().Str("input", cfg.InputDir).Msg("load parameters")
	params, err := dc.LoadParameters(cfg.InputDir)
	if err != nil {
		return err
	}
	if cfg.Pumping != "" {
		params.Distribution.PumpingScheme = cfg.Pumping
	}

	topo, err := params.Topology()
	if err != nil {
		return err
	}
	steps := params.Environment.Steps()
	log.Info().
		Int("nodes", len(topo.Nodes())).
		Int("lines", len(topo.Lines())).
		Int("buildings", len(topo.Buildings())).
		Int("steps", steps).
		Msg("grid")

	logger := log.Logger
	common := []dc.Option{
		dc.WithLogger(logger),
		dc.WithParallelism(cfg.Parallelism),
		dc.WithTolerance(cfg.Tolerance),
		dc.WithMaxIterations(cfg.MaxIterations),
	}

	hydraulics, err := dc.NewHydraulicSolver(topo, params.Physics, params.Distribution, common...)
	if err != nil {
		return err
	}
	plant, err := dc.NewPlant(params.Physics, params.Plant, nil)
	if err != nil {
		return err
	}
	newDispatcher := func() (*dc.DispatchOptimizer, error) {
		extra, err := params.Options(topo)
		if err != nil {
			return nil, err
		}
		return dc.NewDispatchOptimizer(topo, plant, params.Distribution, params.Environment,
			dc.NewSimplexSolver(common...), append(common, extra...)...)
	}

	rec := dc.NewRecorder(runID)
	demand := dc.ConstantTimeSeries(topo.BuildingIDs(), steps, cfg.Flow)

	switch cfg.Mode {
	case "simulate":
		eq, err := hydraulics.Solve(ctx, demand)
		if err != nil {
			return err
		}
		rec.RecordEquilibrium(eq)
		rec.RecordPumping(hydraulics.Pumping(eq))

	case "plant":
		states := make([]dc.PlantState, steps)
		flows := make([]float64, steps)
		for t := range states {
			s, err := plant.Simulate(cfg.ChillerFlow, cfg.StorageFlow, params.Environment.WetBulb[t])
			if err != nil {
				return fmt.Errorf("step %d: %w", t+1, err)
			}
			states[t] = s
			flows[t] = cfg.StorageFlow
		}
		rec.RecordPlant(states)
		energy := make([]float64, steps)
		for t := range energy {
			if energy[t], err = plant.StorageEnergyContent(t, flows); err != nil {
				return fmt.Errorf("step %d: %w", t+1, err)
			}
		}
		rec.RecordVector("storage_energy", energy)

	case "optimize":
		eq, err := hydraulics.Solve(ctx, demand)
		if err != nil {
			return err
		}
		d, err := newDispatcher()
		if err != nil {
			return err
		}
		s, err := d.Optimize(ctx, eq.ETSHeadDifference)
		if err != nil {
			return err
		}
		log.Info().Float64("objective", s.Objective).Msg("schedule")
		rec.RecordEquilibrium(eq)
		rec.RecordSchedule(s)

	case "equilibrium":
		d, err := newDispatcher()
		if err != nil {
			return err
		}
		coupler, err := dc.NewEquilibriumCoupler(hydraulics, d, steps, common...)
		if err != nil {
			return err
		}
		res, err := coupler.Run(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("iterations", res.Iterations).Float64("objective", res.Schedule.Objective).Msg("equilibrium")
		rec.RecordSeries("estimated_ets_flow", res.Flows)
		rec.RecordEquilibrium(res.Hydraulics)
		rec.RecordPumping(hydraulics.Pumping(res.Hydraulics))
		rec.RecordSchedule(res.Schedule)

	case "size":
		peak := map[string]float64{}
		for _, id := range topo.BuildingIDs() {
			peak[id] = cfg.Flow
		}
		flows, err := hydraulics.DesignFlows(peak)
		if err != nil {
			return err
		}
		diameters, err := dc.SizeDiameters(topo, flows, cfg.MaxVelocity)
		if err != nil {
			return err
		}
		for _, id := range topo.LineIDs() {
			log.Info().Str("line", id).Float64("flow", flows[id]).Float64("diameter", diameters[id]).Msg("pipe")
			rec.RecordSeries("design_flow", dc.ConstantTimeSeries([]string{id}, 1, flows[id]))
			rec.RecordSeries("diameter", dc.ConstantTimeSeries([]string{id}, 1, diameters[id]))
		}

	default:
		return fmt.Errorf("unknown mode %q, want one of %s", cfg.Mode, strings.Join(modes, ", "))
	}

	outDir := filepath.Join(cfg.OutputDir, "run-"+runID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(outDir, cfg.Mode+".csv")
	log.Info().Str("path", path).Int("records", len(rec.Records())).Msg("save results")
	return rec.Save(path)
}

func main() {
	cfg := Config{
		InputDir:      "data",
		OutputDir:     ".",
		Mode:          "equilibrium",
		Flow:          0.05,
		MaxVelocity:   3.0,
		Tolerance:     dc.DefaultTolerance,
		MaxIterations: dc.DefaultMaxIterations,
		LogLevel:      "info",
	}

	pflag.StringVarP(&cfg.InputDir, "input", "i", cfg.InputDir, "directory holding the parameter CSV files")
	pflag.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "directory the run directory is created in")
	pflag.StringVarP(&cfg.Mode, "mode", "m", cfg.Mode, "one of "+strings.Join(modes, ", "))
	pflag.Float64Var(&cfg.Flow, "flow", cfg.Flow, "flow per building for simulate, optimize and size, m3/s")
	pflag.Float64Var(&cfg.ChillerFlow, "chiller-flow", cfg.ChillerFlow, "chiller flow for plant, m3/s")
	pflag.Float64Var(&cfg.StorageFlow, "storage-flow", cfg.StorageFlow, "storage discharge flow for plant, m3/s")
	pflag.Float64Var(&cfg.MaxVelocity, "max-velocity", cfg.MaxVelocity, "velocity limit for size, m/s")
	pflag.Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "convergence tolerance on building flows, m3/s")
	pflag.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, "iteration bound of the equilibrium")
	pflag.IntVar(&cfg.Parallelism, "parallelism", cfg.Parallelism, "time steps solved concurrently, 0 for GOMAXPROCS")
	pflag.StringVar(&cfg.Pumping, "pumping", cfg.Pumping, "override the pumping scheme: central or distributed")
	pflag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level")
	pflag.Parse()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		pflag.Usage()
		os.Exit(2)
	}
	zerolog.SetGlobalLevel(level)

	runID := uuid.NewString()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("run", runID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := run(ctx, cfg, runID); err != nil {
		log.Error().Err(err).Msg("run failed")
		stop()
		os.Exit(1)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("done")
}
