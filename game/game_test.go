package game

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/fluid"
	"github.com/pthm-cable/fluidbridge/solver"
	"github.com/pthm-cable/fluidbridge/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newTestGame(t *testing.T, cfg *config.Config, opts Options) *Game {
	t.Helper()
	opts.Headless = true
	opts.Config = cfg
	opts.Logger = slog.New(slog.DiscardHandler)
	g, err := NewGame(opts)
	require.NoError(t, err)
	t.Cleanup(g.Unload)
	return g
}

func run(g *Game, ticks int) {
	for range ticks {
		g.UpdateHeadless()
	}
}

func TestSceneLoads(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{})

	assert.Equal(t, 3, g.CountEmitters())
	assert.Equal(t, 1, g.CountForces())
	// fountain and spout share water; rubble owns debris.
	assert.Len(t, g.Handles(), 2)

	run(g, 30)
	assert.Equal(t, int32(30), g.Tick())
	assert.Positive(t, g.ParticleCount())
}

func TestSpawnAndRemoveEmitter(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{SkipScene: true})

	e, err := g.SpawnEmitter("fountain", r3.Vec{Z: 0.5}, 0)
	require.NoError(t, err)
	b, ok := g.EmitterBinding(e)
	require.True(t, ok)
	assert.Equal(t, fluid.StateActive, b.State())
	assert.True(t, b.IsPrimary())

	run(g, 20)
	assert.Positive(t, g.ParticleCount())
	assert.Equal(t, g.ParticleCount(), b.RenderCount())

	g.RemoveEntity(e)
	assert.Equal(t, fluid.StateReleased, b.State())
	assert.Empty(t, g.Handles())
	assert.Equal(t, 0, g.CountEmitters())

	_, ok = g.EmitterBinding(e)
	assert.False(t, ok)
}

func TestUnknownPresets(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{SkipScene: true})

	_, err := g.SpawnEmitter("geyser", r3.Vec{}, 0)
	assert.Error(t, err)
	_, err = g.SpawnRadialForce("implode", r3.Vec{}, 0)
	assert.Error(t, err)
	_, err = g.SpawnCylindricalForce("tornado", r3.Vec{}, 0)
	assert.Error(t, err)
	assert.Error(t, g.Pulse("implode", r3.Vec{}))

	assert.Equal(t, 0, g.CountEmitters())
	assert.Equal(t, 0, g.CountForces())
}

func TestPulseExpires(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{SkipScene: true})

	require.NoError(t, g.Pulse("blast", r3.Vec{Z: 1}))
	assert.Equal(t, 1, g.CountForces())

	run(g, 30)
	assert.Equal(t, 0, g.CountForces())
}

func TestDurationEmitterDespawns(t *testing.T) {
	cfg := testConfig(t)
	for i := range cfg.Emitters {
		if cfg.Emitters[i].Name == "spout" {
			cfg.Emitters[i].Duration = 0.1
			cfg.Emitters[i].ParticleLifetime = 0.2
		}
	}
	require.NoError(t, cfg.Refresh())
	g := newTestGame(t, cfg, Options{SkipScene: true})

	e, err := g.SpawnEmitter("spout", r3.Vec{Z: 3}, 0)
	require.NoError(t, err)
	b, _ := g.EmitterBinding(e)
	assert.InDelta(t, 0.3, b.MinOwnerLifespan(), 1e-9)

	run(g, 40)
	assert.Equal(t, 0, g.CountEmitters())
	assert.Equal(t, fluid.StateReleased, b.State())
	assert.Empty(t, g.Handles())
}

func TestMoveEntityUpdatesPose(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{SkipScene: true})

	e, err := g.SpawnEmitter("fountain", r3.Vec{}, 0)
	require.NoError(t, err)
	b, _ := g.EmitterBinding(e)

	target := r3.Vec{X: 2, Z: 1}
	require.True(t, g.MoveEntity(e, target))
	run(g, 1)
	assert.Equal(t, target, b.Pose().Position)

	g.RemoveEntity(e)
	assert.False(t, g.MoveEntity(e, target))
}

func TestSuppressAll(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{})

	g.SuppressAll(true)
	run(g, 1)
	assert.True(t, g.Suppressed())
	for _, b := range g.System().Bindings() {
		assert.False(t, b.Enabled(), b.Name())
	}

	// New emitters inherit suppression.
	e, err := g.SpawnEmitter("pebbles", r3.Vec{Z: 2}, 0)
	require.NoError(t, err)
	run(g, 1)
	b, _ := g.EmitterBinding(e)
	assert.False(t, b.Enabled())

	g.SuppressAll(false)
	run(g, 1)
	for _, b := range g.System().Bindings() {
		if b.Config().Duration == 0 {
			assert.True(t, b.Enabled(), b.Name())
		}
	}
}

func TestSetContextRecreatesFluids(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{})
	run(g, 5)
	require.Equal(t, solver.ContextGame, g.Context())

	g.SetContext(solver.ContextEditor)
	run(g, 3)

	assert.Equal(t, solver.ContextEditor, g.Context())
	require.NotEmpty(t, g.Handles())
	for _, h := range g.Handles() {
		assert.Equal(t, solver.ContextEditor, h.Context(), h.Name())
	}
}

func TestForceGain(t *testing.T) {
	g := newTestGame(t, testConfig(t), Options{SkipScene: true})
	assert.Equal(t, 1.0, g.ForceGain())

	g.SetForceGain(-3)
	assert.Equal(t, 0.0, g.ForceGain())
	g.SetForceGain(2.5)
	assert.Equal(t, 2.5, g.ForceGain())
}

func TestGainedScalesOutput(t *testing.T) {
	app := &gained{app: constantForce{X: 1}, gain: 3}
	out := []r3.Vec{{Z: 1}, {}}
	require.True(t, app.ComputeForce(make([]r3.Vec, 2), make([]r3.Vec, 2), out, r3.Box{}))
	assert.Equal(t, []r3.Vec{{X: 3, Z: 1}, {X: 3}}, out)
}

type constantForce r3.Vec

func (c constantForce) ComputeForce(_, _, out []r3.Vec, _ r3.Box) bool {
	for i := range out {
		out[i] = r3.Add(out[i], r3.Vec(c))
	}
	return true
}

func TestStatsCallbackAndOutput(t *testing.T) {
	dir := t.TempDir()
	var windows []telemetry.WindowStats
	cfg := testConfig(t)
	opts := Options{
		Headless:       true,
		Config:         cfg,
		Logger:         slog.New(slog.DiscardHandler),
		OutputDir:      dir,
		StatsWindowSec: 0.1,
		StatsCallback: func(s telemetry.WindowStats) {
			windows = append(windows, s)
		},
	}
	g, err := NewGame(opts)
	require.NoError(t, err)

	run(g, 30)
	g.Unload()

	require.NotEmpty(t, windows)
	last := windows[len(windows)-1]
	assert.Equal(t, 3, last.Bindings)
	assert.Equal(t, 2, last.Fluids)
	assert.Positive(t, last.Particles)

	for _, name := range []string{"fluid.csv", "perf.csv", "bookmarks.csv", "config.yaml"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, "fluid.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "particles")
}
