// Package game hosts a small scene of emitters and force fields on top of the
// fluid bridge. It owns the ECS world, the fluid system and telemetry.
package game

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/components"
	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/fluid"
	"github.com/pthm-cable/fluidbridge/solver"
	"github.com/pthm-cable/fluidbridge/solver/ballistic"
	"github.com/pthm-cable/fluidbridge/telemetry"
)

// Options configures a Game.
type Options struct {
	Seed           int64 // 0 = config seed
	Context        solver.Context
	LogStats       bool
	StatsWindowSec float64 // 0 = config telemetry window
	OutputDir      string
	Headless       bool
	SkipScene      bool // start with an empty scene
	StatsCallback  func(telemetry.WindowStats)
	Logger         *slog.Logger
	Config         *config.Config // nil = global config
}

// Game holds the scene and the fluid bridge.
type Game struct {
	cfg   *config.Config
	world *ecs.World
	rng   *rand.Rand
	log   *slog.Logger

	emitterMapper *ecs.Map2[components.Transform, components.Emitter]
	forceMapper   *ecs.Map2[components.Transform, components.ForceField]
	lifespanMap   *ecs.Map1[components.Lifespan]
	transformMap  *ecs.Map1[components.Transform]
	emitterMap    *ecs.Map1[components.Emitter]
	forceMap      *ecs.Map1[components.ForceField]

	emitterFilter  *ecs.Filter2[components.Transform, components.Emitter]
	forceFilter    *ecs.Filter2[components.Transform, components.ForceField]
	lifespanFilter *ecs.Filter1[components.Lifespan]

	sys    *fluid.System
	solver *ballistic.Solver

	// Telemetry
	perfCollector    *telemetry.PerfCollector
	collector        *telemetry.Collector
	bookmarkDetector *telemetry.BookmarkDetector
	outputManager    *telemetry.OutputManager
	statsCallback    func(telemetry.WindowStats)
	logStats         bool
	tickStats        []fluid.TickStats

	// State
	tick      int32
	dt        float64
	paused    bool
	forceGain float64
	suppress  bool

	// Viewer
	view *viewer
}

// NewGame builds a game from opts.Config, or the global config.
func NewGame(opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Physics.Seed
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	world := ecs.NewWorld()
	g := &Game{
		cfg:   cfg,
		world: world,
		rng:   rand.New(rand.NewSource(seed)),
		log:   logger,

		emitterMapper: ecs.NewMap2[components.Transform, components.Emitter](world),
		forceMapper:   ecs.NewMap2[components.Transform, components.ForceField](world),
		lifespanMap:   ecs.NewMap1[components.Lifespan](world),
		transformMap:  ecs.NewMap1[components.Transform](world),
		emitterMap:    ecs.NewMap1[components.Emitter](world),
		forceMap:      ecs.NewMap1[components.ForceField](world),

		emitterFilter:  ecs.NewFilter2[components.Transform, components.Emitter](world),
		forceFilter:    ecs.NewFilter2[components.Transform, components.ForceField](world),
		lifespanFilter: ecs.NewFilter1[components.Lifespan](world),

		statsCallback: opts.StatsCallback,
		logStats:      opts.LogStats,
		dt:            cfg.Physics.DT,
		forceGain:     1,
	}

	g.solver = ballistic.New(ballistic.Options{
		GroundHeight: cfg.Physics.GroundHeight,
		Restitution:  ballistic.DefaultOptions().Restitution,
		CellSize:     cfg.Physics.PacketCellSize,
		Seed:         seed,
	})
	g.sys = fluid.NewSystem(g.solver,
		fluid.WithLogger(logger),
		fluid.WithContext(opts.Context),
		fluid.WithMaxDeltaTime(cfg.Physics.MaxDeltaTime),
		fluid.WithGravity(vec(cfg.Physics.Gravity)),
	)

	statsWindow := opts.StatsWindowSec
	if statsWindow <= 0 {
		statsWindow = cfg.Telemetry.StatsWindow
	}
	g.perfCollector = telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	g.collector = telemetry.NewCollector(statsWindow, cfg.Derived.DT32)
	g.bookmarkDetector = telemetry.NewBookmarkDetector(10)

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	if !opts.Headless {
		g.view = newViewer(cfg)
	}

	if !opts.SkipScene {
		if err := g.loadScene(); err != nil {
			g.Unload()
			return nil, err
		}
	}
	return g, nil
}

// loadScene places the configured emitters and force fields.
func (g *Game) loadScene() error {
	for _, p := range g.cfg.Scene.Emitters {
		if _, err := g.SpawnEmitter(p.Preset, vec(p.Position), p.Lifespan); err != nil {
			return fmt.Errorf("scene emitter %q: %w", p.Preset, err)
		}
	}
	for _, p := range g.cfg.Scene.Forces {
		var err error
		switch p.Kind {
		case "radial":
			_, err = g.SpawnRadialForce(p.Preset, vec(p.Position), p.Lifespan)
		case "cylindrical":
			_, err = g.SpawnCylindricalForce(p.Preset, vec(p.Position), p.Lifespan)
		default:
			err = fmt.Errorf("unknown force kind %q", p.Kind)
		}
		if err != nil {
			return fmt.Errorf("scene force %q: %w", p.Preset, err)
		}
	}
	g.log.Info("scene loaded", "emitters", len(g.cfg.Scene.Emitters), "forces", len(g.cfg.Scene.Forces))
	return nil
}

// Update runs one tick unless paused. Used by the graphical loop.
func (g *Game) Update() {
	if g.view != nil {
		g.handleInput()
	}
	if g.paused {
		return
	}
	g.step()
}

// UpdateHeadless runs one tick without input handling.
func (g *Game) UpdateHeadless() {
	g.step()
}

// step runs the two tick phases with gameplay in between.
func (g *Game) step() {
	g.perfCollector.StartTick()

	g.perfCollector.StartPhase(telemetry.PhaseBeginTick)
	g.sys.BeginTick(g.dt)

	g.perfCollector.StartPhase(telemetry.PhaseGameplay)
	g.syncTransforms()
	g.applyForceFields()
	g.updateLifespans(g.dt)

	g.perfCollector.StartPhase(telemetry.PhaseEndTick)
	err := g.sys.EndTick()

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.tick++
	if err != nil {
		g.collector.RecordError()
		g.log.Warn("tick reported soft errors", "tick", g.tick, "error", err)
	}
	g.tickStats = g.tickStats[:0]
	for _, h := range g.sys.Handles() {
		g.tickStats = append(g.tickStats, h.Stats())
	}
	g.collector.RecordTick(g.tickStats)
	g.flushTelemetry()

	g.perfCollector.EndTick()
}

// SetContext switches the execution context. Every emitter recreates its
// fluid in the new context on the next tick.
func (g *Game) SetContext(ctx solver.Context) {
	g.sys.SetContext(ctx)
}

// Context returns the current execution context.
func (g *Game) Context() solver.Context { return g.sys.Context() }

// SuppressAll hides or shows every emitter.
func (g *Game) SuppressAll(on bool) {
	g.suppress = on
	query := g.emitterFilter.Query()
	for query.Next() {
		_, em := query.Get()
		em.Hidden = on
		em.Binding.Suppress(on)
	}
}

// Suppressed reports whether emitters are hidden.
func (g *Game) Suppressed() bool { return g.suppress }

// SetForceGain scales every force field.
func (g *Game) SetForceGain(gain float64) { g.forceGain = max(gain, 0) }

// ForceGain returns the force field scale.
func (g *Game) ForceGain() float64 { return g.forceGain }

// System exposes the fluid system.
func (g *Game) System() *fluid.System { return g.sys }

// Handles returns the live fluids.
func (g *Game) Handles() []*fluid.Handle { return g.sys.Handles() }

// Tick returns the current simulation tick.
func (g *Game) Tick() int32 { return g.tick }

// Paused reports whether the simulation is paused.
func (g *Game) Paused() bool { return g.paused }

// SetPaused pauses or resumes the simulation.
func (g *Game) SetPaused(p bool) { g.paused = p }

// ParticleCount sums the active particles over every fluid.
func (g *Game) ParticleCount() int {
	n := 0
	for _, h := range g.sys.Handles() {
		n += h.ActiveCount()
	}
	return n
}

// Unload releases every fluid and closes telemetry output.
func (g *Game) Unload() {
	if err := g.sys.Close(); err != nil {
		g.log.Warn("closing fluid system", "error", err)
	}
	if g.view != nil {
		g.view.unload()
	}
	if err := g.outputManager.Close(); err != nil {
		g.log.Error("closing output", "error", err)
	}
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }
