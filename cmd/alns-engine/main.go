// Command alns-engine is the thin entry point wiring configuration, logging
// and metrics to the SA-ALNS engine and the rolling-horizon driver: load
// config, load a problem instance, run, print the exported solution. No
// transport (gRPC, HTTP API) is bundled here; only a metrics endpoint for
// scraping, matching the ambient stack the rest of this module carries.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logistics-labs/alns-core/internal/engine"
	"github.com/logistics-labs/alns-core/internal/forecast"
	"github.com/logistics-labs/alns-core/internal/instance"
	"github.com/logistics-labs/alns-core/internal/penalty"
	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/internal/rolling"
	"github.com/logistics-labs/alns-core/internal/schedule"
	"github.com/logistics-labs/alns-core/internal/tour"
	"github.com/logistics-labs/alns-core/pkg/config"
	"github.com/logistics-labs/alns-core/pkg/logger"
	"github.com/logistics-labs/alns-core/pkg/metrics"
)

func main() {
	instancePath := flag.String("instance", "", "path to a benchmark text instance (required)")
	benchmarkType := flag.String("type", "irp", "benchmark flavor: irp, irp-dist, vrp, tsp")
	mode := flag.String("mode", "engine", "run mode: engine (single solve) or rolling (rolling-horizon driver)")
	sigma := flag.Float64("sigma", 5.0, "demand forecast error standard deviation used to rebuild tail-probability tables")
	outPath := flag.String("out", "", "output path for the exported solution JSON; empty writes to stdout")
	seed := flag.Int64("seed", -1, "random seed; negative uses engine.random_seed from config")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		logger.Info("metrics server listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	if *instancePath == "" {
		logger.Fatal("missing required -instance flag")
	}

	bType, err := parseBenchmarkType(*benchmarkType)
	if err != nil {
		logger.Fatal("invalid -type flag", "error", err)
	}

	loader := instance.NewBenchmarkTextLoader(bType)
	data, err := loader.Load(*instancePath)
	if err != nil {
		logger.Fatal("failed to load instance", "error", err)
	}

	provider := forecast.NewRollingProvider(forecast.NewGaussianProvider(), *sigma)
	rebuildTailTables(data, provider)

	resolvedSeed := cfg.Engine.RandomSeed
	if *seed >= 0 {
		resolvedSeed = *seed
	}

	engineParams := engineParamsFromConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var out any
	switch *mode {
	case "engine":
		sol, cancelled, err := engine.Run(ctx, data, resolvedSeed, engineParams, nil)
		if err != nil {
			logger.Fatal("engine run failed", "error", err)
		}
		logger.Info("engine run finished", "run_id", sol.RunID, "cost", sol.Cost, "cancelled", cancelled)
		out = sol.Schedule.Export(tour.Weights{}, schedule.Lambdas{})
	case "rolling":
		driver := rolling.New()
		res, err := driver.Run(ctx, data, resolvedSeed, rolling.Params{
			Config:       rolling.Config{HorizonLength: cfg.Rolling.HorizonLength, Rollovers: cfg.Rolling.Rollovers},
			EngineParams: engineParams,
			Provider:     provider,
		}, nil)
		if err != nil {
			logger.Fatal("rolling driver run failed", "error", err)
		}
		logger.Info("rolling driver finished", "rollovers", len(res.Rollovers), "total_cost", res.TotalCost)
		out = exportRollingResult(res)
	default:
		logger.Fatal("unknown -mode, want engine or rolling", "mode", *mode)
	}

	if err := writeOutput(*outPath, out); err != nil {
		logger.Fatal("failed to write output", "error", err)
	}
}

func parseBenchmarkType(s string) (instance.BenchmarkType, error) {
	switch s {
	case "irp":
		return instance.BenchmarkIRP, nil
	case "irp-dist":
		return instance.BenchmarkIRPDistribution, nil
	case "vrp":
		return instance.BenchmarkVRP, nil
	case "tsp":
		return instance.BenchmarkTSP, nil
	default:
		return 0, fmt.Errorf("unknown benchmark type %q", s)
	}
}

// rebuildTailTables overwrites every container's zero-valued tail tables
// (benchmark files carry no forecast column) with ones derived from
// provider, so overflow probability actually drives the search instead of
// staying uniformly zero.
func rebuildTailTables(data *problem.Data, provider forecast.Provider) {
	for i := range data.Points {
		if data.Points[i].Kind != problem.KindContainer {
			continue
		}
		c := &data.Points[i].Container
		c.Tail = forecast.BuildTailTables(provider, data.Points[i].ID, data.Horizon, c.EffectiveVolume, c.InitialVolumeLoad, c.ForecastVolumeDemand)
	}
}

func engineParamsFromConfig(cfg *config.Config) engine.Params {
	return engine.Params{
		InitialAcceptanceProbability: cfg.Engine.InitialAcceptanceProbability,
		CoolingFactor:                cfg.Engine.CoolingFactor,
		MinTemperature:               cfg.Engine.MinTemperature,
		MaxIterations:                cfg.Engine.MaxIterations,
		SegmentLength:                cfg.Engine.SegmentLength,
		ReheatingFactor:              cfg.Engine.ReheatingFactor,
		ReheatingTriggerSegments:     cfg.Engine.ReheatingTriggerSegments,
		ReactionRate:                 cfg.Engine.ReactionRate,
		EnableLocalSearch:            cfg.Engine.EnableLocalSearch,
		Timeout:                      cfg.Engine.Timeout,
		Relatedness:                  schedule.RelatednessWeights{Distance: 1, TimeWindow: 1, Overflow: 1},
		PenaltyParams:                penalty.DefaultParams(),
		PenaltyInitial:               penalty.DefaultInitial(),
	}
}

// rollingExport is the flat, serializable record of a rolling.Result: one
// exported schedule per rollover plus the accumulated day-0 cost.
type rollingExport struct {
	TotalCost float64          `json:"total_cost"`
	Rollovers []rolloverExport `json:"rollovers"`
}

type rolloverExport struct {
	Day         int             `json:"day"`
	DayZeroCost float64         `json:"day_zero_cost"`
	EngineCost  float64         `json:"engine_cost"`
	Cancelled   bool            `json:"cancelled"`
	Schedule    schedule.Export `json:"schedule"`
}

func exportRollingResult(res *rolling.Result) rollingExport {
	out := rollingExport{TotalCost: res.TotalCost}
	for _, r := range res.Rollovers {
		out.Rollovers = append(out.Rollovers, rolloverExport{
			Day:         r.Day,
			DayZeroCost: r.DayZeroCost,
			EngineCost:  r.Cost,
			Cancelled:   r.Cancelled,
			Schedule:    r.Schedule.Export(tour.Weights{}, schedule.Lambdas{}),
		})
	}
	return out
}

func writeOutput(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err := os.Stdout.Write(append(b, '\n'))
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
