package main

import (
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/game"
	"github.com/pthm-cable/fluidbridge/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	maxTicks    int32
	seeds       []int64
	baseConfig  *config.Config
	statsWindow float64
	targetFill  float64 // desired active/max particle ratio
	withForces  bool    // place the configured scene forces around the emitter

	mu          sync.Mutex
	bestFitness float64
	bestWindows []telemetry.WindowStats
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int32, seeds []int64, baseCfg *config.Config, targetFill float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		statsWindow: 2.0,
		targetFill:  targetFill,
		withForces:  true,
		bestFitness: math.Inf(1),
	}
}

// BestWindows returns the window stats from the best evaluation.
func (fe *FitnessEvaluator) BestWindows() []telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestWindows
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	quality float64
	windows []telemetry.WindowStats
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig.Clone()
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		slog.Warn("invalid parameters", "error", err)
		return math.Inf(1)
	}
	maxParticles := float64(cfg.Fluids[cfg.Derived.FluidIndex[fe.params.Fluid]].MaxParticles)

	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			windows, err := fe.runSimulation(cfg, s)
			if err != nil {
				slog.Warn("run failed", "seed", s, "error", err)
				results[idx] = seedResult{fitness: math.Inf(1)}
				return
			}
			quality := fe.computeQuality(windows, maxParticles)
			results[idx] = seedResult{
				fitness: -quality,
				quality: quality,
				windows: windows,
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalQuality float64
	bestSeed := 0
	for i, r := range results {
		totalFitness += r.fitness
		totalQuality += r.quality
		if r.fitness < results[bestSeed].fitness {
			bestSeed = i
		}
	}

	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestWindows = results[bestSeed].windows
	}
	fe.lastQuality = totalQuality / n
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes a single headless run with only the tuned emitter
// in the scene and returns every flushed stats window.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) ([]telemetry.WindowStats, error) {
	var windows []telemetry.WindowStats
	g, err := game.NewGame(game.Options{
		Seed:           seed,
		Headless:       true,
		SkipScene:      true,
		StatsWindowSec: fe.statsWindow,
		Config:         cfg,
		Logger:         slog.New(slog.DiscardHandler),
		StatsCallback: func(stats telemetry.WindowStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		return nil, err
	}
	defer g.Unload()

	if _, err := g.SpawnEmitter(fe.params.Emitter, r3.Vec{Z: 0.5}, 0); err != nil {
		return nil, err
	}
	if fe.withForces {
		for _, p := range cfg.Scene.Forces {
			pos := r3.Vec{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]}
			switch p.Kind {
			case "radial":
				_, err = g.SpawnRadialForce(p.Preset, pos, p.Lifespan)
			case "cylindrical":
				_, err = g.SpawnCylindricalForce(p.Preset, pos, p.Lifespan)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	for g.Tick() < fe.maxTicks {
		g.UpdateHeadless()
	}
	return windows, nil
}

// Quality component weights.
const (
	qualityWeightFill      = 0.50
	qualityWeightCull      = 0.25
	qualityWeightStability = 0.25

	qualityWarmupWindows = 2 // skip first N windows (warmup)
)

// computeQuality scores a run in [0, 1]: active particles near the target
// fill, few culled particles and a steady population.
func (fe *FitnessEvaluator) computeQuality(windows []telemetry.WindowStats, maxParticles float64) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	fills := make([]float64, 0, len(valid))
	var culled, created, softErrors float64
	for _, w := range valid {
		fills = append(fills, w.ActiveMean/maxParticles)
		culled += float64(w.Culled)
		created += float64(w.Created)
		softErrors += float64(w.SoftErrors)
	}

	meanFill, stdFill := stat.PopMeanStdDev(fills, nil)
	fillErr := (meanFill - fe.targetFill) / 0.2
	fillScore := math.Exp(-fillErr * fillErr)

	cullScore := 1.0
	if created > 0 {
		cullScore = 1 - math.Min(culled/created, 1)
	}

	stabilityScore := 0.0
	if meanFill > 0 {
		cv := stdFill / meanFill
		stabilityScore = math.Exp(-cv * cv)
	}

	quality := qualityWeightFill*fillScore +
		qualityWeightCull*cullScore +
		qualityWeightStability*stabilityScore
	if softErrors > 0 {
		quality *= 0.5
	}
	return clamp01(quality)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
