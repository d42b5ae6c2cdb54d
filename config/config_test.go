package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Greater(t, cfg.Physics.DT, 0.0)
	assert.Equal(t, float32(cfg.Physics.DT), cfg.Derived.DT32)
	assert.NotEmpty(t, cfg.Fluids)
	assert.NotEmpty(t, cfg.Emitters)

	water, ok := cfg.Fluid("water")
	require.True(t, ok)
	assert.Equal(t, "water", water.Name)

	for _, e := range cfg.Emitters {
		_, ok := cfg.Fluid(e.Fluid)
		assert.True(t, ok, "emitter %q fluid %q", e.Name, e.Fluid)
	}
	for _, p := range cfg.Scene.Emitters {
		_, ok := cfg.Emitter(p.Preset)
		assert.True(t, ok, "scene emitter %q", p.Preset)
	}

	_, ok = cfg.Radial("blast")
	assert.True(t, ok)
	_, ok = cfg.Cylindrical("vortex")
	assert.True(t, ok)
	_, ok = cfg.Emitter("missing")
	assert.False(t, ok)
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
physics:
  seed: 7
fluids:
  - name: slime
    max_particles: 10
    packet_budget: 50
    max_packets: 20
    packet_size_multiplier: 5
emitters:
  - name: drip
    fluid: slime
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Physics.Seed)
	assert.Greater(t, cfg.Physics.DT, 0.0, "unset fields keep defaults")

	require.Len(t, cfg.Fluids, 1, "lists replace wholesale")
	slime := cfg.Fluids[0]
	assert.Equal(t, 20, slime.PacketBudget, "budget clamped to max packets")
	assert.Equal(t, 8, slime.PacketSizeMultiplier, "rounded up to a power of two")
	assert.Equal(t, "sph", slime.SimulationMethod)
	assert.Equal(t, 1.0, slime.ForceScale)

	drip, ok := cfg.Emitter("drip")
	require.True(t, ok)
	assert.Equal(t, "constant_flow", drip.Type)
	assert.Equal(t, "rectangle", drip.Shape)
	assert.Equal(t, "none", drip.Orientation)
	assert.Equal(t, 0.1, drip.ParticleLifetime)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown fluid": "emitters:\n  - name: e\n    fluid: nope\n",
		"bad type":      "emitters:\n  - name: e\n    fluid: water\n    type: geyser\n",
		"bad method":    "fluids:\n  - name: water\n    simulation_method: lbm\n",
		"bad dt":        "physics:\n  dt: 0\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	c := cfg.Clone()
	c.Fluids[0].Damping = 99
	c.Emitters[0].Rate = 12345
	c.Physics.Seed = -1

	assert.NotEqual(t, 99.0, cfg.Fluids[0].Damping)
	assert.NotEqual(t, 12345.0, cfg.Emitters[0].Rate)
	assert.NotEqual(t, int64(-1), cfg.Physics.Seed)

	require.NoError(t, c.Refresh())
	e, ok := c.Emitter(c.Emitters[0].Name)
	require.True(t, ok)
	assert.Equal(t, 12345.0, e.Rate)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Physics.Seed = 99

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Physics, back.Physics)
	assert.Equal(t, cfg.Fluids, back.Fluids)
	assert.Equal(t, cfg.Emitters, back.Emitters)
}

func TestCfgBeforeInitPanics(t *testing.T) {
	saved := global
	global = nil
	defer func() { global = saved }()

	assert.Panics(t, func() { Cfg() })
	MustInit("")
	assert.NotNil(t, Cfg())
}
