package fluid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/solver"
)

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

func fluidDesc(cfg config.FluidConfig, ctx solver.Context, gravity r3.Vec) (solver.FluidDesc, error) {
	method, err := parseMethod(cfg.SimulationMethod)
	if err != nil {
		return solver.FluidDesc{}, err
	}
	return solver.FluidDesc{
		Context:                ctx,
		MaxParticles:           cfg.MaxParticles,
		MaxPackets:             cfg.MaxPackets,
		RestParticlesPerMeter:  cfg.RestParticlesPerMeter,
		RestDensity:            cfg.RestDensity,
		KernelRadiusMultiplier: cfg.KernelRadiusMultiplier,
		PacketSizeMultiplier:   cfg.PacketSizeMultiplier,
		Stiffness:              cfg.Stiffness,
		Viscosity:              cfg.Viscosity,
		Damping:                cfg.Damping,
		ExternalAcceleration:   r3.Add(gravity, vec(cfg.ExternalAcceleration)),
		Method:                 method,
	}, nil
}

func emitterDesc(cfg config.EmitterConfig, ctx solver.Context, pose solver.Pose, enabled bool) (solver.EmitterDesc, error) {
	typ, err := parseEmitterType(cfg.Type)
	if err != nil {
		return solver.EmitterDesc{}, err
	}
	shape, err := parseShape(cfg.Shape)
	if err != nil {
		return solver.EmitterDesc{}, err
	}
	rate := cfg.Rate
	if typ == solver.EmitterFillVolume && ctx == solver.ContextGame {
		// Filled once through AddParticles instead.
		rate = 0
	}
	return solver.EmitterDesc{
		Type:                 typ,
		Shape:                shape,
		MaxParticles:         cfg.MaxParticles,
		DimensionX:           cfg.DimensionX,
		DimensionY:           cfg.DimensionY,
		RandomPos:            vec(cfg.RandomPos),
		RandomAngle:          cfg.RandomAngle,
		VelocityMagnitude:    cfg.VelocityMagnitude,
		Rate:                 rate,
		ParticleLifetime:     max(cfg.ParticleLifetime, 0.1),
		RepulsionCoefficient: cfg.Repulsion,
		Pose:                 pose,
		Enabled:              enabled,
	}, nil
}

func parseMethod(s string) (solver.SimulationMethod, error) {
	switch s {
	case "", "sph":
		return solver.MethodSPH, nil
	case "no_particle_interaction":
		return solver.MethodNoParticleInteraction, nil
	case "mixed":
		return solver.MethodMixed, nil
	}
	return 0, fmt.Errorf("unknown simulation method %q", s)
}

func parseEmitterType(s string) (solver.EmitterType, error) {
	switch s {
	case "", "constant_flow":
		return solver.EmitterConstantFlow, nil
	case "constant_pressure":
		return solver.EmitterConstantPressure, nil
	case "fill_volume":
		return solver.EmitterFillVolume, nil
	}
	return 0, fmt.Errorf("unknown emitter type %q", s)
}

func parseShape(s string) (solver.EmitterShape, error) {
	switch s {
	case "", "rectangle":
		return solver.ShapeRectangle, nil
	case "ellipse":
		return solver.ShapeEllipse, nil
	}
	return 0, fmt.Errorf("unknown emitter shape %q", s)
}
