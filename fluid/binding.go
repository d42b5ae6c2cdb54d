package fluid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/solver"
)

// ErrReleased is returned by operations on a released binding.
var ErrReleased = errors.New("fluid: binding released")

// BindingState is the lifecycle position of a Binding.
type BindingState uint8

const (
	StateInactive BindingState = iota
	StatePendingCreate
	StateActive
	StatePendingDisable
	StatePendingEnable
	StateReleased
)

func (s BindingState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StatePendingCreate:
		return "pending_create"
	case StateActive:
		return "active"
	case StatePendingDisable:
		return "pending_disable"
	case StatePendingEnable:
		return "pending_enable"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// OrientationMode selects the integrator run over the active set after sync.
type OrientationMode uint8

const (
	OrientationNone OrientationMode = iota
	OrientationSpherical
	OrientationBox
)

// ParseOrientationMode maps a config string to an OrientationMode.
func ParseOrientationMode(s string) (OrientationMode, error) {
	switch s {
	case "", "none":
		return OrientationNone, nil
	case "spherical":
		return OrientationSpherical, nil
	case "box":
		return OrientationBox, nil
	}
	return OrientationNone, fmt.Errorf("unknown orientation mode %q", s)
}

// Binding is one logical emitter attached to a shared fluid.
type Binding struct {
	sys  *System
	id   uint64
	name string

	cfg      config.EmitterConfig
	fluidCfg config.FluidConfig
	mode     OrientationMode

	state   BindingState
	handle  *Handle
	emitter solver.Emitter
	ctx     solver.Context

	enabled     bool // last value pushed to the solver emitter
	wantEnabled bool
	suppressed  bool
	expired     bool
	releasing   bool

	age       float64
	pose      solver.Pose
	poseDirty bool

	spawn SpawnFunc
	err   error
}

func (b *Binding) Name() string                 { return b.name }
func (b *Binding) State() BindingState          { return b.state }
func (b *Binding) Config() config.EmitterConfig { return b.cfg }
func (b *Binding) Orientation() OrientationMode { return b.mode }
func (b *Binding) Handle() *Handle              { return b.handle }
func (b *Binding) Enabled() bool                { return b.enabled }
func (b *Binding) Age() float64                 { return b.age }
func (b *Binding) Pose() solver.Pose            { return b.pose }

// Err returns the last soft failure, cleared by a successful activation.
func (b *Binding) Err() error { return b.err }

// IsPrimary reports whether this binding steps its handle.
func (b *Binding) IsPrimary() bool {
	return b.handle != nil && b.handle.Primary() == b
}

// RenderCount returns the number of particles this binding should draw.
// Only the primary draws the shared fluid.
func (b *Binding) RenderCount() int {
	if !b.IsPrimary() {
		return 0
	}
	return b.handle.ActiveCount()
}

// MinOwnerLifespan is how long the owner must outlive activation so every
// emitted particle can finish. Zero means the emitter never expires.
func (b *Binding) MinOwnerLifespan() float64 {
	if b.cfg.Duration <= 0 {
		return 0
	}
	return b.cfg.Duration + b.cfg.ParticleLifetime
}

// Activate attaches the binding to its shared fluid, creating it on first use.
// During the async phase the request is queued and the binding stays in
// StatePendingCreate until the next phase boundary.
func (b *Binding) Activate() error {
	switch b.state {
	case StateReleased:
		return ErrReleased
	case StateInactive:
	default:
		return nil
	}
	if b.sys.inAsync {
		b.state = StatePendingCreate
		b.sys.pending.push(PendingOp{Kind: OpCreate, Binding: b})
		return nil
	}
	return b.create()
}

// Release detaches the binding. The shared fluid is released with its last binding.
func (b *Binding) Release() {
	if b.state == StateReleased || b.releasing {
		return
	}
	if b.sys.inAsync {
		b.releasing = true
		b.sys.pending.push(PendingOp{Kind: OpDestroy, Binding: b})
		return
	}
	b.destroy()
}

// SetEnabled toggles emission without releasing the fluid.
func (b *Binding) SetEnabled(on bool) {
	b.wantEnabled = on
	b.requestToggle()
}

// Suppress disables emission while the owner is hidden.
func (b *Binding) Suppress(on bool) {
	b.suppressed = on
	b.requestToggle()
}

// SetPose moves the solver emitter. Applied immediately outside the async
// phase, otherwise at the next phase boundary.
func (b *Binding) SetPose(p solver.Pose) {
	b.pose = p
	b.poseDirty = true
	if !b.sys.inAsync {
		b.flushPose()
	}
}

// SetSpawnCallback sets the attribute initialiser used while this binding is
// primary on its shared fluid.
func (b *Binding) SetSpawnCallback(fn SpawnFunc) {
	b.spawn = fn
}

// Reconfigure refreshes emitter parameters. The fluid a binding belongs to
// cannot change; cfg.Fluid is ignored.
func (b *Binding) Reconfigure(cfg config.EmitterConfig) error {
	if b.state == StateReleased {
		return ErrReleased
	}
	if _, err := ParseOrientationMode(cfg.Orientation); err != nil {
		return err
	}
	if _, err := emitterDesc(cfg, b.sys.ctx, b.pose, false); err != nil {
		return err
	}
	cfg.Fluid = b.fluidCfg.Name
	if b.sys.inAsync {
		b.sys.pending.push(PendingOp{Kind: OpReconfigure, Binding: b, Params: &cfg})
		return nil
	}
	return b.applyConfig(cfg)
}

// FillVolume seeds the fluid with particles on a grid at rest spacing inside
// region, up to the fluid's remaining capacity.
func (b *Binding) FillVolume(region r3.Box) error {
	if b.state == StateReleased {
		return ErrReleased
	}
	if b.sys.inAsync {
		b.sys.pending.push(PendingOp{Kind: OpFill, Binding: b, Region: region})
		return nil
	}
	return b.fill(region)
}

func (b *Binding) attached() bool {
	switch b.state {
	case StateActive, StatePendingDisable, StatePendingEnable:
		return b.handle != nil && b.emitter != nil
	}
	return false
}

func (b *Binding) effectiveEnabled() bool {
	return b.wantEnabled && !b.suppressed && !b.expired
}

func (b *Binding) create() error {
	b.state = StatePendingCreate
	h := b.sys.acquire(b.fluidCfg)
	if err := h.attach(b); err != nil {
		b.state = StateInactive
		b.err = err
		b.sys.log.Warn("emitter activation failed", "emitter", b.name, "fluid", b.fluidCfg.Name, "error", err)
		return err
	}
	b.state = StateActive
	b.ctx = h.key.ctx
	b.age = 0
	b.expired = false
	b.poseDirty = false
	b.err = nil
	return nil
}

func (b *Binding) destroy() {
	if b.handle != nil {
		b.handle.detach(b)
	}
	b.state = StateReleased
	b.releasing = false
	b.sys.forget(b)
}

func (b *Binding) requestToggle() {
	if !b.attached() {
		return
	}
	want := b.effectiveEnabled()
	if !b.sys.inAsync {
		b.applyEnabled()
		return
	}
	if want == b.enabled && b.state == StateActive {
		return
	}
	if want {
		b.state = StatePendingEnable
		b.sys.pending.push(PendingOp{Kind: OpEnable, Binding: b})
	} else {
		b.state = StatePendingDisable
		b.sys.pending.push(PendingOp{Kind: OpDisable, Binding: b})
	}
}

func (b *Binding) applyEnabled() {
	if !b.attached() {
		return
	}
	if want := b.effectiveEnabled(); want != b.enabled {
		b.emitter.SetEnabled(want)
		b.enabled = want
	}
	b.state = StateActive
}

func (b *Binding) applyConfig(cfg config.EmitterConfig) error {
	mode, err := ParseOrientationMode(cfg.Orientation)
	if err != nil {
		return err
	}
	b.cfg = cfg
	b.mode = mode
	if !b.attached() {
		return nil
	}
	desc, err := emitterDesc(cfg, b.handle.key.ctx, b.pose, b.enabled)
	if err != nil {
		return err
	}
	b.emitter.Configure(desc)
	return nil
}

func (b *Binding) flushPose() {
	if !b.poseDirty || !b.attached() {
		return
	}
	b.emitter.SetPose(b.pose)
	b.poseDirty = false
}

// update advances the binding's clock at the start of a tick. It is the only
// place a context change is noticed.
func (b *Binding) update(dt float64) error {
	if !b.attached() {
		return nil
	}
	if b.ctx != b.sys.ctx {
		return b.switchContext()
	}
	b.age += dt
	if b.cfg.Duration > 0 && !b.expired && b.age >= b.cfg.Duration {
		b.expired = true
		b.applyEnabled()
	}
	b.flushPose()
	return nil
}

func (b *Binding) switchContext() error {
	from := b.ctx
	b.sys.log.Info("context switch", "emitter", b.name, "from", from.String(), "to", b.sys.ctx.String())
	b.handle.detach(b)
	b.state = StateInactive
	if err := b.create(); err != nil {
		return fmt.Errorf("recreating emitter %q for %s context: %w", b.name, b.sys.ctx, err)
	}
	return nil
}

func (b *Binding) fill(region r3.Box) error {
	if !b.attached() {
		return ErrNoFluid
	}
	h := b.handle
	spacing := 1 / h.key.cfg.RestParticlesPerMeter
	room := h.capacity - h.ActiveCount()

	var batch []solver.NewParticle
fill:
	for z := region.Min.Z + spacing/2; z < region.Max.Z; z += spacing {
		for y := region.Min.Y + spacing/2; y < region.Max.Y; y += spacing {
			for x := region.Min.X + spacing/2; x < region.Max.X; x += spacing {
				if len(batch) >= room {
					break fill
				}
				batch = append(batch, solver.NewParticle{
					Position: r3.Vec{X: x, Y: y, Z: z},
					Life:     b.cfg.ParticleLifetime,
				})
			}
		}
	}
	if len(batch) == 0 {
		return nil
	}
	n, err := h.fluid.AddParticles(batch)
	if err != nil {
		return fmt.Errorf("filling volume for %q: %w", b.name, err)
	}
	h.log.Debug("filled volume", "emitter", b.name, "requested", len(batch), "added", n)
	return nil
}
