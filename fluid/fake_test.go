package fluid

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/solver"
)

// fakeSolver hands out scripted fluids. Contexts listed in unavailable fail
// to create.
type fakeSolver struct {
	fluids      []*fakeFluid
	unavailable map[solver.Context]bool
	packetSize  int
}

func newFakeSolver() *fakeSolver {
	return &fakeSolver{unavailable: map[solver.Context]bool{}, packetSize: 4}
}

func (s *fakeSolver) CreateFluid(desc solver.FluidDesc) (solver.Fluid, error) {
	if s.unavailable[desc.Context] {
		return nil, solver.ErrContextUnavailable
	}
	f := &fakeFluid{desc: desc, packetSize: s.packetSize}
	s.fluids = append(s.fluids, f)
	return f, nil
}

// fakeStep is one scripted solver step: the IDs alive afterwards and the
// created/deleted lists reported with them.
type fakeStep struct {
	alive, created, deleted []solver.ParticleID
}

// fakeFluid spawns int(Rate) particles per step for every enabled emitter.
// Particle IDs are handed out sequentially and never reused, unless a script
// is queued: then each step replays the next scripted step instead.
type fakeFluid struct {
	desc       solver.FluidDesc
	packetSize int
	script     []fakeStep

	alive   []solver.ParticleID
	created []solver.ParticleID
	deleted []solver.ParticleID
	nextID  solver.ParticleID

	emitters    []*fakeEmitter
	released    bool
	steps       int
	stepDTs     []float64
	deleteReqs  [][]solver.ParticleID
	forceCalls  [][]r3.Vec
	added       int
	killOnStep  []solver.ParticleID
	releasedEms int
}

func (f *fakeFluid) Step(dt float64) error {
	f.steps++
	f.stepDTs = append(f.stepDTs, dt)
	if len(f.script) > 0 {
		s := f.script[0]
		f.script = f.script[1:]
		f.alive = append(f.alive[:0], s.alive...)
		f.created = append(f.created, s.created...)
		f.deleted = append(f.deleted, s.deleted...)
		return nil
	}
	for _, id := range f.killOnStep {
		f.remove(id)
	}
	f.killOnStep = nil
	for _, e := range f.emitters {
		if !e.enabled {
			continue
		}
		for range int(e.desc.Rate) {
			f.spawn()
		}
	}
	return nil
}

func (f *fakeFluid) spawn() solver.ParticleID {
	id := f.nextID
	f.nextID++
	f.alive = append(f.alive, id)
	f.created = append(f.created, id)
	return id
}

func (f *fakeFluid) remove(id solver.ParticleID) {
	for i, a := range f.alive {
		if a == id {
			f.alive = append(f.alive[:i], f.alive[i+1:]...)
			f.deleted = append(f.deleted, id)
			return
		}
	}
}

func (f *fakeFluid) ReadBack(wb *solver.WriteBack) error {
	wb.Reset()
	for _, id := range f.alive {
		wb.Particles = append(wb.Particles, solver.ParticleRecord{
			ID:       id,
			Position: r3.Vec{X: float64(id)},
			Velocity: r3.Vec{Z: 1},
			Life:     1,
		})
	}
	for first := 0; first < len(f.alive); first += f.packetSize {
		n := min(f.packetSize, len(f.alive)-first)
		lo := wb.Particles[first].Position
		hi := wb.Particles[first+n-1].Position
		wb.Packets = append(wb.Packets, solver.Packet{
			Bounds:        r3.Box{Min: lo, Max: hi},
			ParticleCount: n,
			FirstIndex:    first,
		})
	}
	wb.Created = append(wb.Created, f.created...)
	wb.Deleted = append(wb.Deleted, f.deleted...)
	f.created = f.created[:0]
	f.deleted = f.deleted[:0]
	return nil
}

func (f *fakeFluid) CreateEmitter(desc solver.EmitterDesc) (solver.Emitter, error) {
	e := &fakeEmitter{desc: desc, enabled: desc.Enabled, pose: desc.Pose}
	f.emitters = append(f.emitters, e)
	return e, nil
}

func (f *fakeFluid) ReleaseEmitter(em solver.Emitter) error {
	for i, e := range f.emitters {
		if e == em {
			f.emitters = append(f.emitters[:i], f.emitters[i+1:]...)
			f.releasedEms++
			return nil
		}
	}
	return solver.ErrUnknownEmitter
}

func (f *fakeFluid) NumEmitters() int { return len(f.emitters) }

func (f *fakeFluid) RequestParticleDeletion(ids []solver.ParticleID) error {
	f.deleteReqs = append(f.deleteReqs, append([]solver.ParticleID(nil), ids...))
	f.killOnStep = append(f.killOnStep, ids...)
	return nil
}

func (f *fakeFluid) ApplyForceBuffer(forces []r3.Vec, mode solver.ForceMode) error {
	f.forceCalls = append(f.forceCalls, append([]r3.Vec(nil), forces...))
	return nil
}

func (f *fakeFluid) AddParticles(particles []solver.NewParticle) (int, error) {
	for range particles {
		f.spawn()
	}
	f.added += len(particles)
	return len(particles), nil
}

func (f *fakeFluid) Gravity() r3.Vec { return f.desc.ExternalAcceleration }

func (f *fakeFluid) Release() error {
	f.released = true
	return nil
}

type fakeEmitter struct {
	desc       solver.EmitterDesc
	enabled    bool
	pose       solver.Pose
	configured int
}

func (e *fakeEmitter) SetEnabled(on bool)    { e.enabled = on }
func (e *fakeEmitter) Enabled() bool         { return e.enabled }
func (e *fakeEmitter) SetPose(p solver.Pose) { e.pose = p }
func (e *fakeEmitter) Configure(desc solver.EmitterDesc) {
	e.desc = desc
	e.configured++
}

func testFluid(name string) config.FluidConfig {
	return config.FluidConfig{
		Name:                  name,
		MaxParticles:          64,
		MaxPackets:            16,
		RestParticlesPerMeter: 2,
		RestDensity:           1000,
		PacketSizeMultiplier:  16,
		ForceScale:            1,
		SimulationMethod:      "sph",
	}
}

func testEmitter(name, fluid string, rate float64) config.EmitterConfig {
	return config.EmitterConfig{
		Name:             name,
		Fluid:            fluid,
		Type:             "constant_flow",
		Shape:            "rectangle",
		Rate:             rate,
		ParticleLifetime: 2,
		Orientation:      "none",
	}
}

// emitterOf returns the fake solver emitter behind b.
func emitterOf(b *Binding) *fakeEmitter {
	return b.emitter.(*fakeEmitter)
}

// fluidOf returns the fake solver fluid behind h.
func fluidOf(h *Handle) *fakeFluid {
	return h.fluid.(*fakeFluid)
}
