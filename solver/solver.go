// Package solver defines the boundary between the fluid bridge and the external
// particle solver that owns particle creation, destruction and spatial partitioning.
package solver

import (
	"errors"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ParticleID is a stable handle into solver-owned particle state, in [0, MaxParticles).
type ParticleID uint32

// Errors reported by solver implementations.
var (
	ErrReleased           = errors.New("solver: fluid released")
	ErrBufferTooSmall     = errors.New("solver: write-back buffer too small")
	ErrContextUnavailable = errors.New("solver: execution context unavailable")
	ErrUnknownEmitter     = errors.New("solver: emitter does not belong to fluid")
)

// Context identifies the execution context a fluid is created for.
// A fluid created for one context is never reused by another.
type Context uint8

const (
	ContextGame   Context = iota // live game world
	ContextEditor                // editor preview with its own scene
)

func (c Context) String() string {
	switch c {
	case ContextGame:
		return "game"
	case ContextEditor:
		return "editor"
	default:
		return "unknown"
	}
}

// ForceMode selects how ApplyForceBuffer interprets its vectors.
type ForceMode uint8

const (
	ForceModeAcceleration ForceMode = iota
	ForceModeForce
	ForceModeVelocityChange
)

// SimulationMethod mirrors the solver's particle interaction model.
type SimulationMethod uint8

const (
	MethodSPH SimulationMethod = iota
	MethodNoParticleInteraction
	MethodMixed
)

// EmitterType controls how an emitter produces particles.
type EmitterType uint8

const (
	EmitterConstantFlow EmitterType = iota
	EmitterConstantPressure
	EmitterFillVolume // emits nothing in game; volume is filled explicitly
)

// EmitterShape is the footprint particles are spawned over.
type EmitterShape uint8

const (
	ShapeRectangle EmitterShape = iota
	ShapeEllipse
)

// ParticleRecord is the per-tick snapshot of one particle written by the solver.
type ParticleRecord struct {
	ID              ParticleID
	Position        r3.Vec
	Velocity        r3.Vec
	Life            float64 // remaining seconds
	Density         float64
	CollisionNormal r3.Vec // zero when not in contact
}

// RelativeTime maps remaining life onto [0,1] age, 0 at birth.
func (r ParticleRecord) RelativeTime(maxLife float64) float64 {
	if maxLife <= 0 {
		return 1 - r.Life
	}
	return 1 - r.Life/maxLife
}

// Packet is one spatial partition of the particle buffer. Its particles occupy
// the contiguous range [FirstIndex, FirstIndex+ParticleCount) of the snapshot.
type Packet struct {
	Bounds        r3.Box
	ParticleCount int
	FirstIndex    int
}

// WriteBack holds the fixed-capacity buffers a fluid fills on ReadBack.
// Implementations append into the slices after truncating them; exceeding the
// initial capacity is allowed and is detected by the caller.
type WriteBack struct {
	Particles []ParticleRecord
	Packets   []Packet
	Created   []ParticleID
	Deleted   []ParticleID
}

// NewWriteBack allocates buffers sized for maxParticles and maxPackets.
func NewWriteBack(maxParticles, maxPackets int) *WriteBack {
	return &WriteBack{
		Particles: make([]ParticleRecord, 0, maxParticles),
		Packets:   make([]Packet, 0, maxPackets),
		Created:   make([]ParticleID, 0, maxParticles),
		Deleted:   make([]ParticleID, 0, maxParticles),
	}
}

// Reset truncates all buffers without releasing storage.
func (wb *WriteBack) Reset() {
	wb.Particles = wb.Particles[:0]
	wb.Packets = wb.Packets[:0]
	wb.Created = wb.Created[:0]
	wb.Deleted = wb.Deleted[:0]
}

// Grow reallocates the particle-sized buffers to hold at least n entries.
func (wb *WriteBack) Grow(n int) {
	if cap(wb.Particles) < n {
		wb.Particles = append(make([]ParticleRecord, 0, n), wb.Particles...)
	}
	if cap(wb.Created) < n {
		wb.Created = append(make([]ParticleID, 0, n), wb.Created...)
	}
	if cap(wb.Deleted) < n {
		wb.Deleted = append(make([]ParticleID, 0, n), wb.Deleted...)
	}
}

// Pose places an emitter in world space.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// FluidDesc describes a fluid to create.
type FluidDesc struct {
	Context                Context
	MaxParticles           int
	MaxPackets             int
	RestParticlesPerMeter  float64
	RestDensity            float64
	KernelRadiusMultiplier float64
	PacketSizeMultiplier   int
	Stiffness              float64
	Viscosity              float64
	Damping                float64
	ExternalAcceleration   r3.Vec
	Method                 SimulationMethod
}

// EmitterDesc describes an emitter attached to a fluid.
type EmitterDesc struct {
	Type                 EmitterType
	Shape                EmitterShape
	MaxParticles         int // 0 = bounded only by the fluid
	DimensionX           float64
	DimensionY           float64
	RandomPos            r3.Vec
	RandomAngle          float64
	VelocityMagnitude    float64
	Rate                 float64 // particles per second
	ParticleLifetime     float64
	RepulsionCoefficient float64
	Pose                 Pose
	Enabled              bool
}

// NewParticle seeds a particle added directly to a fluid.
type NewParticle struct {
	Position r3.Vec
	Velocity r3.Vec
	Life     float64
}

// Solver creates fluids.
type Solver interface {
	CreateFluid(desc FluidDesc) (Fluid, error)
}

// Fluid is one shared simulation object. Step may run on another goroutine;
// every other method is only called while no Step is in flight.
type Fluid interface {
	Step(dt float64) error
	ReadBack(wb *WriteBack) error
	CreateEmitter(desc EmitterDesc) (Emitter, error)
	ReleaseEmitter(e Emitter) error
	NumEmitters() int
	RequestParticleDeletion(ids []ParticleID) error
	ApplyForceBuffer(forces []r3.Vec, mode ForceMode) error
	AddParticles(particles []NewParticle) (int, error)
	Gravity() r3.Vec
	Release() error
}

// Emitter is a solver-side emission source.
type Emitter interface {
	SetEnabled(on bool)
	Enabled() bool
	SetPose(p Pose)
	Configure(desc EmitterDesc)
}
