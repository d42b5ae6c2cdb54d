package main

import (
	"fmt"

	"github.com/pthm-cable/fluidbridge/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters for one fluid
// and one of its emitters.
type ParamVector struct {
	Specs   []ParamSpec
	Fluid   string
	Emitter string
}

// NewParamVector creates the standard parameter set, seeded with the
// current values from cfg.
func NewParamVector(cfg *config.Config, fluid, emitter string) (*ParamVector, error) {
	fl, ok := cfg.Fluid(fluid)
	if !ok {
		return nil, fmt.Errorf("unknown fluid %q", fluid)
	}
	em, ok := cfg.Emitter(emitter)
	if !ok {
		return nil, fmt.Errorf("unknown emitter %q", emitter)
	}
	if em.Fluid != fluid {
		return nil, fmt.Errorf("emitter %q feeds %q, not %q", emitter, em.Fluid, fluid)
	}

	pv := &ParamVector{
		Fluid:   fluid,
		Emitter: emitter,
		Specs: []ParamSpec{
			// Fluid
			{Name: "packet_budget", Path: "fluids." + fluid + ".packet_budget", Min: 8, Max: float64(fl.MaxPackets)},
			{Name: "damping", Path: "fluids." + fluid + ".damping", Min: 0, Max: 2},
			// Emitter
			{Name: "rate", Path: "emitters." + emitter + ".rate", Min: 20, Max: 1000},
			{Name: "particle_lifetime", Path: "emitters." + emitter + ".particle_lifetime", Min: 0.5, Max: 10},
			{Name: "velocity_magnitude", Path: "emitters." + emitter + ".velocity_magnitude", Min: 1, Max: 15},
			// Physics
			{Name: "max_delta_time", Path: "physics.max_delta_time", Min: cfg.Physics.DT, Max: 0.1},
		},
	}
	for i, v := range pv.ExtractFromConfig(cfg) {
		pv.Specs[i].Default = min(max(v, pv.Specs[i].Min), pv.Specs[i].Max)
	}
	return pv, nil
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to cfg and refreshes its derived
// values. Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	clamped := pv.Clamp(values)
	fi, ok := cfg.Derived.FluidIndex[pv.Fluid]
	if !ok {
		return fmt.Errorf("unknown fluid %q", pv.Fluid)
	}
	ei, ok := cfg.Derived.EmitterIndex[pv.Emitter]
	if !ok {
		return fmt.Errorf("unknown emitter %q", pv.Emitter)
	}
	fl := &cfg.Fluids[fi]
	em := &cfg.Emitters[ei]

	i := 0
	fl.PacketBudget = int(clamped[i])
	i++
	fl.Damping = clamped[i]
	i++
	em.Rate = clamped[i]
	i++
	em.ParticleLifetime = clamped[i]
	i++
	em.VelocityMagnitude = clamped[i]
	i++
	cfg.Physics.MaxDeltaTime = clamped[i]

	return cfg.Refresh()
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	fl, _ := cfg.Fluid(pv.Fluid)
	em, _ := cfg.Emitter(pv.Emitter)
	return []float64{
		float64(fl.PacketBudget),
		fl.Damping,
		em.Rate,
		em.ParticleLifetime,
		em.VelocityMagnitude,
		cfg.Physics.MaxDeltaTime,
	}
}
