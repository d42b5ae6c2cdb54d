package fluid

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/solver"
)

// ErrNoFluid is returned when an operation needs a solver object that does not exist.
var ErrNoFluid = errors.New("fluid: no solver object")

// needsSpawn marks a record whose ID was just created and still needs its
// extended attributes initialised.
const needsSpawn = 1e30

type handleKey struct {
	cfg config.FluidConfig
	ctx solver.Context
}

// TickStats summarises what one sync did to a handle.
type TickStats struct {
	Particles   int
	Packets     int
	Created     int
	Deleted     int
	Activated   int
	Deactivated int
	Culled      int
	Spawned     int
	ForcesFlush bool
	Rebuilt     bool
	Grown       bool
	Handoff     bool // primary changed this tick
}

// Handle owns one shared solver fluid and the render-side view of its particles.
// All bindings whose fluid config compares equal within a context share it.
type Handle struct {
	sys *System
	key handleKey
	log *slog.Logger

	fluid    solver.Fluid
	wb       *solver.WriteBack
	capacity int

	records    []solver.ParticleRecord // indexed by ParticleID
	attrs      *AttributeStore
	active     *ActiveSet
	forces     *ForceBridge
	culler     Culler
	membership *bitset.BitSet
	culled     []solver.ParticleID

	bindings []*Binding
	primary  *Binding
	spawn    SpawnFunc

	stepping    bool
	stepDone    chan error
	steppedTick uint64
	teardown    bool
	released    bool

	bounds r3.Box
	stats  TickStats
}

func newHandle(sys *System, key handleKey) *Handle {
	h := &Handle{
		sys:      sys,
		key:      key,
		log:      sys.log.With("fluid", key.cfg.Name, "context", key.ctx.String()),
		stepDone: make(chan error, 1),
	}
	if key.cfg.PacketBudget > 0 {
		h.culler = sys.newCuller()
	}
	return h
}

// Name returns the fluid config name.
func (h *Handle) Name() string { return h.key.cfg.Name }

// Config returns the fluid config this handle was created from.
func (h *Handle) Config() config.FluidConfig { return h.key.cfg }

// Context returns the execution context the solver object belongs to.
func (h *Handle) Context() solver.Context { return h.key.ctx }

// ActiveCount returns the number of live particles after the last sync.
func (h *Handle) ActiveCount() int {
	if h.active == nil {
		return 0
	}
	return h.active.Count()
}

// ActiveID returns the particle at rank r in [0, ActiveCount()).
// Out-of-range ranks return 0.
func (h *Handle) ActiveID(r int) solver.ParticleID {
	if h.active == nil || r < 0 || r >= h.active.Count() {
		return 0
	}
	return h.active.At(r)
}

// ActiveIDs returns the dense active set. Valid until the next sync.
func (h *Handle) ActiveIDs() []solver.ParticleID {
	if h.active == nil {
		return nil
	}
	return h.active.Active()
}

// ParticleRecord returns the last synced record for id.
// Unknown IDs return a zero record.
func (h *Handle) ParticleRecord(id solver.ParticleID) solver.ParticleRecord {
	if int(id) >= len(h.records) {
		return solver.ParticleRecord{}
	}
	return h.records[id]
}

// ExtendedAttributes returns the render-side attributes for id.
func (h *Handle) ExtendedAttributes(id solver.ParticleID) ExtendedAttributes {
	if h.attrs == nil || int(id) >= h.attrs.Len() {
		return DefaultAttributes()
	}
	return h.attrs.Get(id)
}

// SetSpawnCallback sets the handle-wide attribute initialiser, used when no
// attached binding carries its own.
func (h *Handle) SetSpawnCallback(fn SpawnFunc) { h.spawn = fn }

// spawnFunc resolves the attribute initialiser for this tick: the primary's,
// else the first attached binding's, else the handle-wide one.
func (h *Handle) spawnFunc() SpawnFunc {
	if p := h.Primary(); p != nil && p.spawn != nil {
		return p.spawn
	}
	for _, b := range h.bindings {
		if b.spawn != nil && b.attached() {
			return b.spawn
		}
	}
	return h.spawn
}

// Bounds returns the union of all packet bounds, padded by one unit.
func (h *Handle) Bounds() r3.Box { return h.bounds }

// Stats returns the summary of the most recent sync.
func (h *Handle) Stats() TickStats { return h.stats }

// Primary returns the binding currently stepping this handle, or nil.
func (h *Handle) Primary() *Binding {
	if h.primary == nil || h.primary.handle != h {
		return nil
	}
	return h.primary
}

// Bindings returns the bindings attached to this handle in registration order.
func (h *Handle) Bindings() []*Binding { return h.bindings }

// Capacity returns the number of particle IDs the handle can index.
func (h *Handle) Capacity() int { return h.capacity }

// Stepping reports whether a solver step is in flight.
func (h *Handle) Stepping() bool { return h.stepping }

// AddForce accumulates an applicator's force over the last synced snapshot.
// Safe to call during the async phase; the buffer reaches the solver at the
// end of the next sync.
func (h *Handle) AddForce(app Applicator, region r3.Box) bool {
	if h.fluid == nil || h.forces == nil {
		return false
	}
	return h.forces.AddForce(app, region, h.wb.Particles, h.wb.Packets)
}

// ensureFluid creates the solver object on first use.
func (h *Handle) ensureFluid() error {
	if h.fluid != nil {
		return nil
	}
	if h.released {
		return ErrNoFluid
	}
	desc, err := fluidDesc(h.key.cfg, h.key.ctx, h.sys.gravity)
	if err != nil {
		return err
	}
	f, err := h.sys.solver.CreateFluid(desc)
	if err != nil {
		return fmt.Errorf("creating fluid %q: %w", h.key.cfg.Name, err)
	}
	h.fluid = f
	h.allocate(desc.MaxParticles, desc.MaxPackets)
	h.log.Info("fluid created", "max_particles", desc.MaxParticles, "max_packets", desc.MaxPackets)
	return nil
}

func (h *Handle) allocate(maxParticles, maxPackets int) {
	h.capacity = maxParticles
	h.wb = solver.NewWriteBack(maxParticles, maxPackets)
	h.records = make([]solver.ParticleRecord, maxParticles)
	h.attrs = NewAttributeStore(maxParticles)
	h.active = NewActiveSet(maxParticles)
	h.forces = NewForceBridge(maxParticles, h.key.cfg.ForceScale)
	h.membership = bitset.New(uint(maxParticles))
}

// grow enlarges every ID-indexed buffer to n entries. Existing state keeps
// its ID; new entries are inactive and default-initialised.
func (h *Handle) grow(n int) {
	if n <= h.capacity {
		return
	}
	old := h.capacity
	h.capacity = n
	h.records = append(h.records, make([]solver.ParticleRecord, n-old)...)
	h.attrs.Grow(n)
	h.active.Resize(n)
	h.active.MarkOutOfSync()
	h.forces.Reset(n)
	h.membership = bitset.New(uint(n))
	h.wb.Grow(n)
	h.stats.Grown = true
	h.log.Info("grew particle buffers", "from", old, "to", n)
}

// attach creates the solver emitter for b, creating the fluid if needed.
func (h *Handle) attach(b *Binding) error {
	if err := h.ensureFluid(); err != nil {
		if len(h.bindings) == 0 {
			h.release()
		}
		return err
	}
	desc, err := emitterDesc(b.cfg, h.key.ctx, b.pose, b.effectiveEnabled())
	if err != nil {
		return err
	}
	em, err := h.fluid.CreateEmitter(desc)
	if err != nil {
		if len(h.bindings) == 0 {
			h.release()
		}
		return fmt.Errorf("creating emitter %q: %w", b.name, err)
	}
	b.emitter = em
	b.enabled = desc.Enabled
	b.handle = h
	h.bindings = append(h.bindings, b)
	slices.SortFunc(h.bindings, func(x, y *Binding) int { return cmp.Compare(x.id, y.id) })
	return nil
}

// detach releases b's solver emitter. The fluid is released with its last binding.
func (h *Handle) detach(b *Binding) {
	i := slices.Index(h.bindings, b)
	if i < 0 {
		return
	}
	h.bindings = slices.Delete(h.bindings, i, i+1)
	if b.emitter != nil && h.fluid != nil && !h.stepping {
		if err := h.fluid.ReleaseEmitter(b.emitter); err != nil {
			h.log.Warn("releasing emitter", "emitter", b.name, "error", err)
		}
	}
	b.emitter = nil
	b.handle = nil
	if len(h.bindings) == 0 {
		h.release()
	}
}

// release tears the solver object down, deferring if a step is in flight.
func (h *Handle) release() {
	if h.stepping {
		h.teardown = true
		return
	}
	if h.fluid != nil {
		if err := h.fluid.Release(); err != nil {
			h.log.Warn("releasing fluid", "error", err)
		}
		h.log.Info("fluid released")
	}
	h.fluid = nil
	h.released = true
	h.teardown = false
	h.sys.dropHandle(h)
}

// electPrimary picks the first Active binding whose emitter is enabled, or
// the first Active binding if none emits. A change of primary flags the
// active set out of sync; the new primary steps and syncs in the same tick.
// h.primary may still point at a detached binding until the next election.
func (h *Handle) electPrimary() *Binding {
	var first, emitting *Binding
	for _, b := range h.bindings {
		if !b.attached() {
			continue
		}
		if first == nil {
			first = b
		}
		if b.enabled {
			emitting = b
			break
		}
	}
	next := emitting
	if next == nil {
		next = first
	}
	if next != h.primary {
		if h.primary != nil && next != nil {
			h.active.MarkOutOfSync()
			h.stats.Handoff = true
			h.log.Info("primary handoff", "from", h.primary.name, "to", next.name)
		}
		h.primary = next
	}
	return next
}
