package game

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/components"
	"github.com/pthm-cable/fluidbridge/fluid"
	"github.com/pthm-cable/fluidbridge/forces"
	"github.com/pthm-cable/fluidbridge/solver"
)

// SpawnEmitter creates an emitter entity from a preset at pos and activates
// its binding. lifespan <= 0 keeps the entity until its emission is over, or
// forever for emitters without a duration.
func (g *Game) SpawnEmitter(preset string, pos r3.Vec, lifespan float64) (ecs.Entity, error) {
	emCfg, ok := g.cfg.Emitter(preset)
	if !ok {
		return ecs.Entity{}, fmt.Errorf("unknown emitter preset %q", preset)
	}
	flCfg, ok := g.cfg.Fluid(emCfg.Fluid)
	if !ok {
		return ecs.Entity{}, fmt.Errorf("emitter %q: unknown fluid %q", preset, emCfg.Fluid)
	}

	b, err := g.sys.NewBinding(preset, emCfg, flCfg)
	if err != nil {
		return ecs.Entity{}, err
	}
	tr := components.Transform{Position: pos, Rotation: quat.Number{Real: 1}}
	b.SetPose(solver.Pose{Position: tr.Position, Rotation: tr.Rotation})
	size := emCfg.ParticleSize
	b.SetSpawnCallback(func(id solver.ParticleID, rec solver.ParticleRecord) fluid.ExtendedAttributes {
		a := fluid.DefaultAttributes()
		a.VisualSize = r3.Vec{X: size, Y: size, Z: size}
		a.AngularVelocity = r3.Vec{X: g.rng.NormFloat64(), Y: g.rng.NormFloat64(), Z: g.rng.NormFloat64()}
		return a
	})
	if err := b.Activate(); err != nil {
		b.Release()
		return ecs.Entity{}, fmt.Errorf("activating emitter %q: %w", preset, err)
	}
	if g.suppress {
		b.Suppress(true)
	}

	em := components.Emitter{Binding: b, Preset: preset, Hidden: g.suppress}
	entity := g.emitterMapper.NewEntity(&tr, &em)

	if emCfg.Type == "fill_volume" {
		half := r3.Vec{X: emCfg.DimensionX / 2, Y: emCfg.DimensionY / 2}
		region := r3.Box{
			Min: r3.Sub(pos, half),
			Max: r3.Add(pos, r3.Vec{X: half.X, Y: half.Y, Z: emCfg.DimensionY}),
		}
		if err := b.FillVolume(region); err != nil {
			g.log.Warn("filling volume", "emitter", preset, "error", err)
		}
	}

	if minLife := b.MinOwnerLifespan(); lifespan > 0 || minLife > 0 {
		life := components.Lifespan{Remaining: max(lifespan, minLife)}
		g.lifespanMap.Add(entity, &life)
	}

	g.log.Debug("emitter spawned", "preset", preset, "fluid", flCfg.Name, "x", pos.X, "y", pos.Y, "z", pos.Z)
	return entity, nil
}

// SpawnRadialForce creates a radial force field entity from a preset.
func (g *Game) SpawnRadialForce(preset string, pos r3.Vec, lifespan float64) (ecs.Entity, error) {
	cfg, ok := g.cfg.Radial(preset)
	if !ok {
		return ecs.Entity{}, fmt.Errorf("unknown radial force preset %q", preset)
	}
	app, err := forces.NewRadial(cfg, pos)
	if err != nil {
		return ecs.Entity{}, err
	}
	return g.spawnForce(app, preset, "radial", pos, lifespan), nil
}

// SpawnCylindricalForce creates a vortex force field entity from a preset.
func (g *Game) SpawnCylindricalForce(preset string, pos r3.Vec, lifespan float64) (ecs.Entity, error) {
	cfg, ok := g.cfg.Cylindrical(preset)
	if !ok {
		return ecs.Entity{}, fmt.Errorf("unknown cylindrical force preset %q", preset)
	}
	return g.spawnForce(forces.NewCylindrical(cfg, pos), preset, "cylindrical", pos, lifespan), nil
}

func (g *Game) spawnForce(app boundedApplicator, preset, kind string, pos r3.Vec, lifespan float64) ecs.Entity {
	tr := components.Transform{Position: pos, Rotation: quat.Number{Real: 1}}
	ff := components.ForceField{
		Applicator: app,
		Region:     app.Bounds(),
		Preset:     preset,
		Kind:       kind,
		Enabled:    true,
	}
	entity := g.forceMapper.NewEntity(&tr, &ff)
	if lifespan > 0 {
		g.lifespanMap.Add(entity, &components.Lifespan{Remaining: lifespan})
	}
	return entity
}

// MoveEntity sets an entity's position. Emitter poses and force regions
// follow on the next tick.
func (g *Game) MoveEntity(e ecs.Entity, pos r3.Vec) bool {
	if !g.world.Alive(e) || !g.transformMap.Has(e) {
		return false
	}
	g.transformMap.Get(e).Position = pos
	return true
}

// RemoveEntity releases an entity's binding, if any, and removes it.
func (g *Game) RemoveEntity(e ecs.Entity) {
	if !g.world.Alive(e) {
		return
	}
	if g.emitterMap.Has(e) {
		g.emitterMap.Get(e).Binding.Release()
	}
	g.world.RemoveEntity(e)
}

// EmitterBinding returns the binding owned by an emitter entity.
func (g *Game) EmitterBinding(e ecs.Entity) (*fluid.Binding, bool) {
	if !g.world.Alive(e) || !g.emitterMap.Has(e) {
		return nil, false
	}
	return g.emitterMap.Get(e).Binding, true
}

// syncTransforms pushes moved transforms into emitter poses and force regions.
func (g *Game) syncTransforms() {
	eq := g.emitterFilter.Query()
	for eq.Next() {
		tr, em := eq.Get()
		pose := solver.Pose{Position: tr.Position, Rotation: tr.Rotation}
		if em.Binding.Pose() != pose {
			em.Binding.SetPose(pose)
		}
	}

	fq := g.forceFilter.Query()
	for fq.Next() {
		tr, ff := fq.Get()
		switch app := ff.Applicator.(type) {
		case *forces.Radial:
			app.Origin = tr.Position
			ff.Region = app.Bounds()
		case *forces.Cylindrical:
			app.Origin = tr.Position
			ff.Region = app.Bounds()
		}
	}
}

// updateLifespans counts lifespans down and removes expired entities.
func (g *Game) updateLifespans(dt float64) {
	var expired []ecs.Entity

	query := g.lifespanFilter.Query()
	for query.Next() {
		life := query.Get()
		life.Remaining -= dt
		if life.Remaining <= 0 {
			expired = append(expired, query.Entity())
		}
	}

	// Query iteration is complete; safe to modify the world.
	for _, e := range expired {
		g.RemoveEntity(e)
	}
}

// CountEmitters returns the number of emitter entities.
func (g *Game) CountEmitters() int {
	n := 0
	query := g.emitterFilter.Query()
	for query.Next() {
		n++
	}
	return n
}

// CountForces returns the number of force field entities.
func (g *Game) CountForces() int {
	n := 0
	query := g.forceFilter.Query()
	for query.Next() {
		n++
	}
	return n
}
