// Package config provides configuration loading and access for the fluid bridge.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all runtime configuration.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Fluids    []FluidConfig   `yaml:"fluids"`
	Emitters  []EmitterConfig `yaml:"emitters"`
	Forces    ForcesConfig    `yaml:"forces"`
	Scene     SceneConfig     `yaml:"scene"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings for the graphical viewer.
type ScreenConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	TargetFPS      int     `yaml:"target_fps"`
	PixelsPerMeter float64 `yaml:"pixels_per_meter"`
}

// PhysicsConfig holds tick and reference-solver parameters.
type PhysicsConfig struct {
	DT             float64    `yaml:"dt"`
	MaxDeltaTime   float64    `yaml:"max_delta_time"` // Solver step is clamped to this
	Gravity        [3]float64 `yaml:"gravity"`
	GroundHeight   float64    `yaml:"ground_height"`
	PacketCellSize float64    `yaml:"packet_cell_size"` // Reference solver packet grid
	Seed           int64      `yaml:"seed"`
}

// FluidConfig describes one shared fluid. It is comparable: bindings whose
// fluid configs compare equal share a single solver object.
type FluidConfig struct {
	Name                   string     `yaml:"name"`
	MaxParticles           int        `yaml:"max_particles"`
	MaxPackets             int        `yaml:"max_packets"`
	PacketBudget           int        `yaml:"packet_budget"` // 0 disables culling
	RestParticlesPerMeter  float64    `yaml:"rest_particles_per_meter"`
	RestDensity            float64    `yaml:"rest_density"`
	KernelRadiusMultiplier float64    `yaml:"kernel_radius_multiplier"`
	PacketSizeMultiplier   int        `yaml:"packet_size_multiplier"`
	Stiffness              float64    `yaml:"stiffness"`
	Viscosity              float64    `yaml:"viscosity"`
	Damping                float64    `yaml:"damping"`
	ExternalAcceleration   [3]float64 `yaml:"external_acceleration"`
	ForceScale             float64    `yaml:"force_scale"`
	SimulationMethod       string     `yaml:"simulation_method"` // sph, no_particle_interaction, mixed
	NeedsExtendedData      bool       `yaml:"needs_extended_data"`
}

// EmitterConfig describes one logical emitter.
type EmitterConfig struct {
	Name                string     `yaml:"name"`
	Fluid               string     `yaml:"fluid"`
	Type                string     `yaml:"type"`  // constant_flow, constant_pressure, fill_volume
	Shape               string     `yaml:"shape"` // rectangle, ellipse
	Rate                float64    `yaml:"rate"`  // Particles per second
	ParticleLifetime    float64    `yaml:"particle_lifetime"`
	VelocityMagnitude   float64    `yaml:"velocity_magnitude"`
	RandomPos           [3]float64 `yaml:"random_pos"`
	RandomAngle         float64    `yaml:"random_angle"`
	Repulsion           float64    `yaml:"repulsion"`
	MaxParticles        int        `yaml:"max_particles"` // 0 = bounded by the fluid
	DimensionX          float64    `yaml:"dimension_x"`
	DimensionY          float64    `yaml:"dimension_y"`
	Duration            float64    `yaml:"duration"`    // Seconds of emission, 0 = forever
	Orientation         string     `yaml:"orientation"` // none, spherical, box
	RotationCoefficient float64    `yaml:"rotation_coefficient"`
	ParticleSize        float64    `yaml:"particle_size"`
}

// ForcesConfig holds named force field presets.
type ForcesConfig struct {
	Radial      []RadialForceConfig      `yaml:"radial"`
	Cylindrical []CylindricalForceConfig `yaml:"cylindrical"`
}

// RadialForceConfig is a point force with optional swirl.
type RadialForceConfig struct {
	Name     string  `yaml:"name"`
	Radius   float64 `yaml:"radius"`
	Strength float64 `yaml:"strength"` // Negative pulls inward
	Swirl    float64 `yaml:"swirl"`
	Falloff  string  `yaml:"falloff"` // constant, linear
}

// CylindricalForceConfig is a vortex-style force.
type CylindricalForceConfig struct {
	Name               string  `yaml:"name"`
	Radius             float64 `yaml:"radius"`
	RadiusTop          float64 `yaml:"radius_top"`
	Height             float64 `yaml:"height"`
	RadialStrength     float64 `yaml:"radial_strength"`
	RotationalStrength float64 `yaml:"rotational_strength"`
	LiftStrength       float64 `yaml:"lift_strength"`
	LiftFalloffHeight  float64 `yaml:"lift_falloff_height"` // Fraction of height where lift starts fading
	EscapeVelocity     float64 `yaml:"escape_velocity"`
	SpecialRadial      bool    `yaml:"special_radial"`
}

// SceneConfig lists what the host places at startup.
type SceneConfig struct {
	Emitters []ScenePlacement `yaml:"emitters"`
	Forces   []ScenePlacement `yaml:"forces"`
}

// ScenePlacement puts a named emitter or force preset at a position.
type ScenePlacement struct {
	Preset   string     `yaml:"preset"`
	Kind     string     `yaml:"kind"` // forces only: radial, cylindrical
	Position [3]float64 `yaml:"position"`
	Lifespan float64    `yaml:"lifespan"` // Seconds, 0 = forever
}

// TelemetryConfig holds telemetry and logging parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Seconds per stats window
	PerfWindow  int     `yaml:"perf_window"`  // Ticks in the rolling perf window
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32         float32        // Physics.DT as float32
	ScreenW32    float32        // Screen.Width as float32
	ScreenH32    float32        // Screen.Height as float32
	FluidIndex   map[string]int // name -> index into Fluids
	EmitterIndex map[string]int // name -> index into Emitters
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file; lists replace wholesale
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Fluid returns the named fluid config.
func (c *Config) Fluid(name string) (FluidConfig, bool) {
	i, ok := c.Derived.FluidIndex[name]
	if !ok {
		return FluidConfig{}, false
	}
	return c.Fluids[i], true
}

// Emitter returns the named emitter config.
func (c *Config) Emitter(name string) (EmitterConfig, bool) {
	i, ok := c.Derived.EmitterIndex[name]
	if !ok {
		return EmitterConfig{}, false
	}
	return c.Emitters[i], true
}

// Radial returns the named radial force preset.
func (c *Config) Radial(name string) (RadialForceConfig, bool) {
	for _, r := range c.Forces.Radial {
		if r.Name == name {
			return r, true
		}
	}
	return RadialForceConfig{}, false
}

// Cylindrical returns the named cylindrical force preset.
func (c *Config) Cylindrical(name string) (CylindricalForceConfig, bool) {
	for _, cy := range c.Forces.Cylindrical {
		if cy.Name == name {
			return cy, true
		}
	}
	return CylindricalForceConfig{}, false
}

// computeDerived calculates values derived from loaded config and clamps
// fluid and emitter parameters into the ranges the solver accepts.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)
	c.Derived.ScreenW32 = float32(c.Screen.Width)
	c.Derived.ScreenH32 = float32(c.Screen.Height)

	if c.Physics.MaxDeltaTime <= 0 {
		c.Physics.MaxDeltaTime = c.Physics.DT
	}

	c.Derived.FluidIndex = make(map[string]int, len(c.Fluids))
	for i := range c.Fluids {
		f := &c.Fluids[i]
		f.clamp()
		c.Derived.FluidIndex[f.Name] = i
	}

	c.Derived.EmitterIndex = make(map[string]int, len(c.Emitters))
	for i := range c.Emitters {
		e := &c.Emitters[i]
		e.clamp()
		c.Derived.EmitterIndex[e.Name] = i
	}
}

func (f *FluidConfig) clamp() {
	const eps = 1e-4
	f.MaxParticles = max(f.MaxParticles, 1)
	if f.MaxPackets <= 0 {
		f.MaxPackets = 1024
	}
	if f.PacketBudget > f.MaxPackets {
		f.PacketBudget = f.MaxPackets
	}
	f.RestParticlesPerMeter = math.Max(f.RestParticlesPerMeter, eps)
	f.RestDensity = math.Max(f.RestDensity, eps)
	f.KernelRadiusMultiplier = math.Max(f.KernelRadiusMultiplier, 1)
	f.Stiffness = math.Max(f.Stiffness, eps)
	f.Viscosity = math.Max(f.Viscosity, eps)
	f.Damping = math.Max(f.Damping, 0)
	if f.ForceScale == 0 {
		f.ForceScale = 1
	}
	if f.SimulationMethod == "" {
		f.SimulationMethod = "sph"
	}

	// Packet size multiplier must be a power of two, at least 4.
	p := 4
	for p < f.PacketSizeMultiplier {
		p <<= 1
	}
	f.PacketSizeMultiplier = p
}

func (e *EmitterConfig) clamp() {
	e.Rate = math.Max(e.Rate, 0)
	e.ParticleLifetime = math.Max(e.ParticleLifetime, 0.1)
	e.MaxParticles = max(e.MaxParticles, 0)
	e.Duration = math.Max(e.Duration, 0)
	if e.Type == "" {
		e.Type = "constant_flow"
	}
	if e.Shape == "" {
		e.Shape = "rectangle"
	}
	if e.Orientation == "" {
		e.Orientation = "none"
	}
	if e.RotationCoefficient == 0 {
		e.RotationCoefficient = 1
	}
	if e.ParticleSize <= 0 {
		e.ParticleSize = 1
	}
}

func (c *Config) validate() error {
	if c.Physics.DT <= 0 {
		return fmt.Errorf("physics.dt must be positive, got %v", c.Physics.DT)
	}
	for _, e := range c.Emitters {
		if _, ok := c.Derived.FluidIndex[e.Fluid]; !ok {
			return fmt.Errorf("emitter %q references unknown fluid %q", e.Name, e.Fluid)
		}
		switch e.Type {
		case "constant_flow", "constant_pressure", "fill_volume":
		default:
			return fmt.Errorf("emitter %q: unknown type %q", e.Name, e.Type)
		}
		switch e.Shape {
		case "rectangle", "ellipse":
		default:
			return fmt.Errorf("emitter %q: unknown shape %q", e.Name, e.Shape)
		}
		switch e.Orientation {
		case "none", "spherical", "box":
		default:
			return fmt.Errorf("emitter %q: unknown orientation %q", e.Name, e.Orientation)
		}
	}
	for _, f := range c.Fluids {
		switch f.SimulationMethod {
		case "sph", "no_particle_interaction", "mixed":
		default:
			return fmt.Errorf("fluid %q: unknown simulation method %q", f.Name, f.SimulationMethod)
		}
	}
	return nil
}

// Clone returns a deep copy that can be modified independently.
func (c *Config) Clone() *Config {
	out := *c
	out.Fluids = slices.Clone(c.Fluids)
	out.Emitters = slices.Clone(c.Emitters)
	out.Forces.Radial = slices.Clone(c.Forces.Radial)
	out.Forces.Cylindrical = slices.Clone(c.Forces.Cylindrical)
	out.Scene.Emitters = slices.Clone(c.Scene.Emitters)
	out.Scene.Forces = slices.Clone(c.Scene.Forces)
	out.computeDerived()
	return &out
}

// Refresh recomputes derived values and validates after in-place edits.
func (c *Config) Refresh() error {
	c.computeDerived()
	return c.validate()
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
