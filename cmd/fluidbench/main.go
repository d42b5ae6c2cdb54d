// Command fluidbench runs the configured scene headless across seeds and
// execution contexts and writes one summary row per run.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/game"
	"github.com/pthm-cable/fluidbridge/solver"
	"github.com/pthm-cable/fluidbridge/telemetry"
)

// runSummary is one CSV row of the benchmark output.
type runSummary struct {
	Seed        int64   `csv:"seed"`
	Context     string  `csv:"context"`
	Ticks       int32   `csv:"ticks"`
	WallMS      float64 `csv:"wall_ms"`
	TicksPerSec float64 `csv:"ticks_per_sec"`
	AvgTickUS   float64 `csv:"avg_tick_us"`
	MaxTickUS   float64 `csv:"max_tick_us"`
	Windows     int     `csv:"windows"`
	PeakActive  float64 `csv:"peak_active"`
	Created     int     `csv:"created"`
	Culled      int     `csv:"culled"`
	Rebuilds    int     `csv:"rebuilds"`
	Handoffs    int     `csv:"handoffs"`
	SoftErrors  int     `csv:"soft_errors"`
	Particles   int     `csv:"final_particles"`
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	ticks := flag.Int("ticks", 3600, "Ticks per run")
	seeds := flag.Int("seeds", 3, "Number of seeds")
	contexts := flag.String("contexts", "game", "Comma-separated execution contexts (game, editor)")
	switchAt := flag.Int("switch-at", 0, "Toggle the execution context at this tick (0 = never)")
	outputDir := flag.String("output-dir", "", "Write per-run telemetry under this directory")
	out := flag.String("out", "fluidbench.csv", "Summary CSV path")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var ctxs []solver.Context
	for _, name := range strings.Split(*contexts, ",") {
		switch strings.TrimSpace(name) {
		case "game":
			ctxs = append(ctxs, solver.ContextGame)
		case "editor":
			ctxs = append(ctxs, solver.ContextEditor)
		default:
			slog.Error("unknown context", "context", name)
			os.Exit(1)
		}
	}

	var rows []*runSummary
	for _, ctx := range ctxs {
		for i := range *seeds {
			seed := int64(i*1000 + 42)
			dir := ""
			if *outputDir != "" {
				dir = filepath.Join(*outputDir, fmt.Sprintf("%s-%d", ctx, seed))
			}
			row, err := run(seed, ctx, int32(*ticks), int32(*switchAt), dir)
			if err != nil {
				slog.Error("run failed", "seed", seed, "context", ctx.String(), "error", err)
				os.Exit(1)
			}
			fmt.Printf("%-6s seed=%-5d %6.0f ticks/s  avg=%6.1fus  peak=%5.0f  culled=%d  rebuilds=%d\n",
				row.Context, row.Seed, row.TicksPerSec, row.AvgTickUS, row.PeakActive, row.Culled, row.Rebuilds)
			rows = append(rows, row)
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		slog.Error("creating summary", "error", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		slog.Error("writing summary", "error", err)
		os.Exit(1)
	}
}

func run(seed int64, ctx solver.Context, ticks, switchAt int32, outputDir string) (*runSummary, error) {
	var windows []telemetry.WindowStats
	g, err := game.NewGame(game.Options{
		Seed:      seed,
		Context:   ctx,
		Headless:  true,
		OutputDir: outputDir,
		StatsCallback: func(s telemetry.WindowStats) {
			windows = append(windows, s)
		},
	})
	if err != nil {
		return nil, err
	}
	defer g.Unload()

	tickUS := make([]float64, 0, ticks)
	start := time.Now()
	for g.Tick() < ticks {
		if switchAt > 0 && g.Tick() == switchAt {
			if g.Context() == solver.ContextGame {
				g.SetContext(solver.ContextEditor)
			} else {
				g.SetContext(solver.ContextGame)
			}
		}
		t0 := time.Now()
		g.UpdateHeadless()
		tickUS = append(tickUS, float64(time.Since(t0).Microseconds()))
	}
	wall := time.Since(start)

	row := &runSummary{
		Seed:      seed,
		Context:   ctx.String(),
		Ticks:     ticks,
		WallMS:    float64(wall.Microseconds()) / 1000,
		Windows:   len(windows),
		Particles: g.ParticleCount(),
	}
	if wall > 0 {
		row.TicksPerSec = float64(ticks) / wall.Seconds()
	}
	if len(tickUS) > 0 {
		row.AvgTickUS = floats.Sum(tickUS) / float64(len(tickUS))
		row.MaxTickUS = floats.Max(tickUS)
	}
	for _, w := range windows {
		row.PeakActive = max(row.PeakActive, w.ActiveP90)
		row.Created += w.Created
		row.Culled += w.Culled
		row.Rebuilds += w.Rebuilds
		row.Handoffs += w.Handoffs
		row.SoftErrors += w.SoftErrors
	}
	return row, nil
}
