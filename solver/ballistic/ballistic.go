// Package ballistic is a small CPU particle solver that implements the solver
// contract well enough to drive the bridge: it allocates and recycles IDs,
// runs emitters, integrates gravity with a ground plane and groups particles
// into grid packets. There is no particle-particle interaction.
package ballistic

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
)

// Options tunes the reference solver.
type Options struct {
	GroundHeight float64
	Restitution  float64 // Normal velocity kept after a ground bounce
	CellSize     float64 // Packet grid cell edge
	Seed         int64
	// Contexts lists the execution contexts fluids may be created in.
	// Empty allows all.
	Contexts []solver.Context
}

// DefaultOptions returns options suitable for the default config.
func DefaultOptions() Options {
	return Options{Restitution: 0.3, CellSize: 1, Seed: 1}
}

// Solver creates ballistic fluids.
type Solver struct {
	opts Options
	mu   sync.Mutex
	seq  int64
}

// New returns a solver with the given options.
func New(opts Options) *Solver {
	if opts.CellSize <= 0 {
		opts.CellSize = 1
	}
	return &Solver{opts: opts}
}

// CreateFluid implements solver.Solver.
func (s *Solver) CreateFluid(desc solver.FluidDesc) (solver.Fluid, error) {
	if desc.MaxParticles <= 0 {
		return nil, fmt.Errorf("ballistic: max particles must be positive, got %d", desc.MaxParticles)
	}
	if len(s.opts.Contexts) > 0 && !slices.Contains(s.opts.Contexts, desc.Context) {
		return nil, fmt.Errorf("ballistic: %s context: %w", desc.Context, solver.ErrContextUnavailable)
	}
	s.mu.Lock()
	s.seq++
	seed := s.opts.Seed + s.seq
	s.mu.Unlock()
	return newFluid(desc, s.opts, seed), nil
}

type particle struct {
	alive   bool
	pos     r3.Vec
	vel     r3.Vec
	life    float64
	normal  r3.Vec
	emitter *emitter
}

// Fluid is one ballistic particle pool.
type Fluid struct {
	desc solver.FluidDesc
	opts Options
	rng  *rand.Rand

	parts []particle
	free  []solver.ParticleID
	live  []solver.ParticleID

	created  []solver.ParticleID
	deleted  []solver.ParticleID
	doomed   []solver.ParticleID
	forces   []r3.Vec
	forceSet bool
	mode     solver.ForceMode

	emitters []*emitter
	order    []solver.ParticleID
	packets  []solver.Packet
	released bool
}

func newFluid(desc solver.FluidDesc, opts Options, seed int64) *Fluid {
	f := &Fluid{
		desc:   desc,
		opts:   opts,
		rng:    rand.New(rand.NewSource(seed)),
		parts:  make([]particle, desc.MaxParticles),
		free:   make([]solver.ParticleID, desc.MaxParticles),
		forces: make([]r3.Vec, desc.MaxParticles),
	}
	// Pop order hands out low IDs first.
	for i := range f.free {
		f.free[i] = solver.ParticleID(desc.MaxParticles - 1 - i)
	}
	return f
}

// Live returns the number of live particles.
func (f *Fluid) Live() int { return len(f.live) }

// Step implements solver.Fluid.
func (f *Fluid) Step(dt float64) error {
	if f.released {
		return solver.ErrReleased
	}
	for _, id := range f.doomed {
		f.kill(id)
	}
	f.doomed = f.doomed[:0]

	f.applyForces(dt)
	f.integrate(dt)
	for _, em := range f.emitters {
		em.emit(f, dt)
	}
	f.partition()
	return nil
}

func (f *Fluid) applyForces(dt float64) {
	if !f.forceSet {
		return
	}
	for _, id := range f.live {
		a := f.forces[id]
		switch f.mode {
		case solver.ForceModeAcceleration:
			f.parts[id].vel = r3.Add(f.parts[id].vel, r3.Scale(dt, a))
		case solver.ForceModeForce:
			// Unit mass: force and acceleration coincide.
			f.parts[id].vel = r3.Add(f.parts[id].vel, r3.Scale(dt, a))
		case solver.ForceModeVelocityChange:
			f.parts[id].vel = r3.Add(f.parts[id].vel, a)
		}
	}
	clear(f.forces)
	f.forceSet = false
}

func (f *Fluid) integrate(dt float64) {
	g := f.desc.ExternalAcceleration
	damp := math.Max(0, 1-f.desc.Damping*dt)
	ground := f.opts.GroundHeight

	kept := f.live[:0]
	for _, id := range f.live {
		p := &f.parts[id]
		p.life -= dt
		if p.life <= 0 {
			f.release(id)
			continue
		}
		p.vel = r3.Scale(damp, r3.Add(p.vel, r3.Scale(dt, g)))
		p.pos = r3.Add(p.pos, r3.Scale(dt, p.vel))
		p.normal = r3.Vec{}
		if p.pos.Z < ground {
			p.pos.Z = ground
			if p.vel.Z < 0 {
				p.vel.Z = -p.vel.Z * f.opts.Restitution
			}
			p.normal = r3.Vec{Z: 1}
		}
		kept = append(kept, id)
	}
	f.live = kept
}

// spawn allocates an ID, or reports false when the pool is exhausted.
func (f *Fluid) spawn(pos, vel r3.Vec, life float64, em *emitter) bool {
	if len(f.free) == 0 {
		return false
	}
	id := f.free[len(f.free)-1]
	f.free = f.free[:len(f.free)-1]
	f.parts[id] = particle{alive: true, pos: pos, vel: vel, life: life, emitter: em}
	f.live = append(f.live, id)
	f.created = append(f.created, id)
	if em != nil {
		em.count++
	}
	return true
}

// release frees id without touching f.live.
func (f *Fluid) release(id solver.ParticleID) {
	p := &f.parts[id]
	if !p.alive {
		return
	}
	if p.emitter != nil {
		p.emitter.count--
	}
	*p = particle{}
	f.free = append(f.free, id)
	f.deleted = append(f.deleted, id)
}

func (f *Fluid) kill(id solver.ParticleID) {
	if int(id) >= len(f.parts) || !f.parts[id].alive {
		return
	}
	f.release(id)
	if i := slices.Index(f.live, id); i >= 0 {
		f.live = slices.Delete(f.live, i, i+1)
	}
}

type cellKey struct{ x, y, z int }

func (k cellKey) compare(o cellKey) int {
	if c := cmp.Compare(k.x, o.x); c != 0 {
		return c
	}
	if c := cmp.Compare(k.y, o.y); c != 0 {
		return c
	}
	return cmp.Compare(k.z, o.z)
}

// partition groups live particles by grid cell. Packets come out in cell
// order and particles keep their live order within a packet.
func (f *Fluid) partition() {
	size := f.opts.CellSize
	keyOf := func(p r3.Vec) cellKey {
		return cellKey{int(math.Floor(p.X / size)), int(math.Floor(p.Y / size)), int(math.Floor(p.Z / size))}
	}

	f.order = append(f.order[:0], f.live...)
	slices.SortStableFunc(f.order, func(a, b solver.ParticleID) int {
		return keyOf(f.parts[a].pos).compare(keyOf(f.parts[b].pos))
	})

	f.packets = f.packets[:0]
	for i := 0; i < len(f.order); {
		k := keyOf(f.parts[f.order[i]].pos)
		j := i
		bounds := r3.Box{Min: f.parts[f.order[i]].pos, Max: f.parts[f.order[i]].pos}
		for j < len(f.order) && keyOf(f.parts[f.order[j]].pos) == k {
			p := f.parts[f.order[j]].pos
			bounds.Min = r3.Vec{X: math.Min(bounds.Min.X, p.X), Y: math.Min(bounds.Min.Y, p.Y), Z: math.Min(bounds.Min.Z, p.Z)}
			bounds.Max = r3.Vec{X: math.Max(bounds.Max.X, p.X), Y: math.Max(bounds.Max.Y, p.Y), Z: math.Max(bounds.Max.Z, p.Z)}
			j++
		}
		f.packets = append(f.packets, solver.Packet{Bounds: bounds, ParticleCount: j - i, FirstIndex: i})
		i = j
	}
}

// ReadBack implements solver.Fluid.
func (f *Fluid) ReadBack(wb *solver.WriteBack) error {
	if f.released {
		return solver.ErrReleased
	}
	wb.Reset()
	for _, id := range f.order {
		p := &f.parts[id]
		if !p.alive {
			continue
		}
		wb.Particles = append(wb.Particles, solver.ParticleRecord{
			ID:              id,
			Position:        p.pos,
			Velocity:        p.vel,
			Life:            p.life,
			Density:         f.desc.RestDensity,
			CollisionNormal: p.normal,
		})
	}
	wb.Packets = append(wb.Packets, f.packets...)
	wb.Created = append(wb.Created, f.created...)
	wb.Deleted = append(wb.Deleted, f.deleted...)
	f.created = f.created[:0]
	f.deleted = f.deleted[:0]
	return nil
}

// RequestParticleDeletion implements solver.Fluid. Deletion happens at the
// start of the next step.
func (f *Fluid) RequestParticleDeletion(ids []solver.ParticleID) error {
	if f.released {
		return solver.ErrReleased
	}
	f.doomed = append(f.doomed, ids...)
	return nil
}

// ApplyForceBuffer implements solver.Fluid.
func (f *Fluid) ApplyForceBuffer(forces []r3.Vec, mode solver.ForceMode) error {
	if f.released {
		return solver.ErrReleased
	}
	n := copy(f.forces, forces)
	clear(f.forces[n:])
	f.mode = mode
	f.forceSet = true
	return nil
}

// AddParticles implements solver.Fluid.
func (f *Fluid) AddParticles(ps []solver.NewParticle) (int, error) {
	if f.released {
		return 0, solver.ErrReleased
	}
	n := 0
	for _, p := range ps {
		if !f.spawn(p.Position, p.Velocity, p.Life, nil) {
			break
		}
		n++
	}
	f.partition()
	return n, nil
}

// Gravity implements solver.Fluid.
func (f *Fluid) Gravity() r3.Vec { return f.desc.ExternalAcceleration }

// NumEmitters implements solver.Fluid.
func (f *Fluid) NumEmitters() int { return len(f.emitters) }

// CreateEmitter implements solver.Fluid.
func (f *Fluid) CreateEmitter(desc solver.EmitterDesc) (solver.Emitter, error) {
	if f.released {
		return nil, solver.ErrReleased
	}
	em := &emitter{desc: desc}
	f.emitters = append(f.emitters, em)
	return em, nil
}

// ReleaseEmitter implements solver.Fluid. Particles already emitted live on.
func (f *Fluid) ReleaseEmitter(e solver.Emitter) error {
	em, ok := e.(*emitter)
	if !ok {
		return solver.ErrUnknownEmitter
	}
	i := slices.Index(f.emitters, em)
	if i < 0 {
		return solver.ErrUnknownEmitter
	}
	f.emitters = slices.Delete(f.emitters, i, i+1)
	for _, id := range f.live {
		if f.parts[id].emitter == em {
			f.parts[id].emitter = nil
		}
	}
	return nil
}

// Release implements solver.Fluid.
func (f *Fluid) Release() error {
	if f.released {
		return errors.New("ballistic: fluid already released")
	}
	f.released = true
	f.parts, f.live, f.free, f.order, f.emitters = nil, nil, nil, nil, nil
	return nil
}

type emitter struct {
	desc  solver.EmitterDesc
	acc   float64
	count int
}

func (e *emitter) SetEnabled(on bool)    { e.desc.Enabled = on }
func (e *emitter) Enabled() bool         { return e.desc.Enabled }
func (e *emitter) SetPose(p solver.Pose) { e.desc.Pose = p }
func (e *emitter) Configure(desc solver.EmitterDesc) {
	desc.Pose = e.desc.Pose
	desc.Enabled = e.desc.Enabled
	e.desc = desc
}

func (e *emitter) emit(f *Fluid, dt float64) {
	if !e.desc.Enabled || e.desc.Rate <= 0 {
		return
	}
	e.acc += e.desc.Rate * dt
	n := int(e.acc)
	e.acc -= float64(n)
	for range n {
		if e.desc.MaxParticles > 0 && e.count >= e.desc.MaxParticles {
			return
		}
		pos, vel := e.sample(f.rng)
		if !f.spawn(pos, vel, e.desc.ParticleLifetime, e) {
			return
		}
	}
}

// sample picks a spawn position on the emitter footprint and a launch
// velocity along the emitter's local +Z, jittered by RandomAngle.
func (e *emitter) sample(rng *rand.Rand) (r3.Vec, r3.Vec) {
	d := e.desc
	var local r3.Vec
	switch d.Shape {
	case solver.ShapeEllipse:
		r := math.Sqrt(rng.Float64())
		th := rng.Float64() * 2 * math.Pi
		local = r3.Vec{X: r * math.Cos(th) * d.DimensionX / 2, Y: r * math.Sin(th) * d.DimensionY / 2}
	default:
		local = r3.Vec{X: (rng.Float64() - 0.5) * d.DimensionX, Y: (rng.Float64() - 0.5) * d.DimensionY}
	}
	local = r3.Add(local, r3.Vec{
		X: (rng.Float64()*2 - 1) * d.RandomPos.X,
		Y: (rng.Float64()*2 - 1) * d.RandomPos.Y,
		Z: (rng.Float64()*2 - 1) * d.RandomPos.Z,
	})

	tilt := rng.Float64() * d.RandomAngle
	spin := rng.Float64() * 2 * math.Pi
	dir := r3.Vec{X: math.Sin(tilt) * math.Cos(spin), Y: math.Sin(tilt) * math.Sin(spin), Z: math.Cos(tilt)}

	rot := d.Pose.Rotation
	if rot == (quat.Number{}) {
		rot = quat.Number{Real: 1}
	}
	pos := r3.Add(d.Pose.Position, rotate(rot, local))
	vel := r3.Scale(d.VelocityMagnitude, rotate(rot, dir))
	return pos, vel
}

func rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
