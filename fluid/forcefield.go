package fluid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
)

// Applicator computes forces for a batch of particles inside one packet.
// It adds into out and reports whether any non-zero force was produced.
type Applicator interface {
	ComputeForce(positions, velocities, out []r3.Vec, bounds r3.Box) bool
}

// ApplicatorFunc adapts a plain function to Applicator.
type ApplicatorFunc func(positions, velocities, out []r3.Vec, bounds r3.Box) bool

func (f ApplicatorFunc) ComputeForce(positions, velocities, out []r3.Vec, bounds r3.Box) bool {
	return f(positions, velocities, out, bounds)
}

// ForceBridge accumulates per-particle forces from any number of applicators
// and hands them to the solver in a single batched call.
type ForceBridge struct {
	forces  []r3.Vec // indexed by ParticleID
	scale   float64
	pending bool

	pos, vel, out []r3.Vec
}

// NewForceBridge returns a bridge for IDs in [0, capacity) scaling every
// contribution by scale.
func NewForceBridge(capacity int, scale float64) *ForceBridge {
	return &ForceBridge{forces: make([]r3.Vec, capacity), scale: scale}
}

// Reset resizes the accumulation buffer to capacity. Pending forces for IDs
// below the new capacity carry over.
func (b *ForceBridge) Reset(capacity int) {
	if len(b.forces) == capacity {
		return
	}
	forces := make([]r3.Vec, capacity)
	copy(forces, b.forces)
	b.forces = forces
}

// Pending reports whether a Flush would reach the solver.
func (b *ForceBridge) Pending() bool { return b.pending }

// Force returns the accumulated force for id.
func (b *ForceBridge) Force(id solver.ParticleID) r3.Vec {
	if int(id) >= len(b.forces) {
		return r3.Vec{}
	}
	return b.forces[id]
}

// AddForce runs app over every packet intersecting region and accumulates the
// scaled result. It reports whether anything non-zero was added.
func (b *ForceBridge) AddForce(app Applicator, region r3.Box, particles []solver.ParticleRecord, packets []solver.Packet) bool {
	added := false
	for _, p := range packets {
		if p.ParticleCount <= 0 || !boxesOverlap(p.Bounds, region) {
			continue
		}
		lo := max(p.FirstIndex, 0)
		hi := min(p.FirstIndex+p.ParticleCount, len(particles))
		if lo >= hi {
			continue
		}
		batch := particles[lo:hi]
		b.gather(batch)
		if !app.ComputeForce(b.pos, b.vel, b.out, p.Bounds) {
			continue
		}
		for i, rec := range batch {
			if int(rec.ID) >= len(b.forces) {
				continue
			}
			b.forces[rec.ID] = r3.Add(b.forces[rec.ID], r3.Scale(b.scale, b.out[i]))
		}
		added = true
	}
	if added {
		b.pending = true
	}
	return added
}

// Flush submits the accumulated buffer once, in acceleration mode, and zeroes
// it. It reports whether anything was submitted.
func (b *ForceBridge) Flush(f solver.Fluid) (bool, error) {
	if !b.pending {
		return false, nil
	}
	err := f.ApplyForceBuffer(b.forces, solver.ForceModeAcceleration)
	clear(b.forces)
	b.pending = false
	if err != nil {
		return false, fmt.Errorf("applying force buffer: %w", err)
	}
	return true, nil
}

func (b *ForceBridge) gather(batch []solver.ParticleRecord) {
	n := len(batch)
	if cap(b.pos) < n {
		b.pos = make([]r3.Vec, n)
		b.vel = make([]r3.Vec, n)
		b.out = make([]r3.Vec, n)
	}
	b.pos, b.vel, b.out = b.pos[:n], b.vel[:n], b.out[:n]
	for i, rec := range batch {
		b.pos[i] = rec.Position
		b.vel[i] = rec.Velocity
	}
	clear(b.out)
}

func boxesOverlap(a, b r3.Box) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

func unionBox(a, b r3.Box) r3.Box {
	return r3.Box{
		Min: r3.Vec{X: min(a.Min.X, b.Min.X), Y: min(a.Min.Y, b.Min.Y), Z: min(a.Min.Z, b.Min.Z)},
		Max: r3.Vec{X: max(a.Max.X, b.Max.X), Y: max(a.Max.Y, b.Max.Y), Z: max(a.Max.Z, b.Max.Z)},
	}
}
