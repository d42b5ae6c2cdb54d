// Package fluid bridges an external particle solver to renderers and gameplay.
//
// A System owns every shared fluid (Handle) and every logical emitter
// (Binding). Each tick is split in two: BeginTick resolves queued requests,
// elects a primary binding per fluid and starts the solver steps; gameplay then
// runs while the solvers are busy; EndTick waits for the steps and reconciles
// the solver's write-back buffers into a dense active set per fluid.
package fluid

import (
	"errors"
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/solver"
)

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *System) { s.log = l }
}

// WithContext sets the initial execution context. Defaults to game.
func WithContext(ctx solver.Context) Option {
	return func(s *System) { s.ctx = ctx }
}

// WithMaxDeltaTime clamps every solver step. Zero disables clamping.
func WithMaxDeltaTime(dt float64) Option {
	return func(s *System) { s.maxDT = dt }
}

// WithGravity sets the acceleration added to every fluid's external acceleration.
func WithGravity(g r3.Vec) Option {
	return func(s *System) { s.gravity = g }
}

// WithCuller replaces the packet culling strategy for fluids with a budget.
func WithCuller(fn func() Culler) Option {
	return func(s *System) { s.newCuller = fn }
}

// System is the registry of handles and bindings and drives the tick phases.
// It is not safe for concurrent use; only solver steps run off the caller's goroutine.
type System struct {
	solver    solver.Solver
	log       *slog.Logger
	ctx       solver.Context
	maxDT     float64
	gravity   r3.Vec
	newCuller func() Culler

	handles  map[handleKey]*Handle
	order    []*Handle
	bindings []*Binding
	nextID   uint64

	pending pendingQueue
	inAsync bool
	tick    uint64
	dt      float64
	errs    []error
}

// NewSystem creates a System backed by s.
func NewSystem(s solver.Solver, opts ...Option) *System {
	sys := &System{
		solver:    s,
		log:       slog.Default(),
		handles:   make(map[handleKey]*Handle),
		newCuller: func() Culler { return NewPacketCuller() },
	}
	for _, opt := range opts {
		opt(sys)
	}
	return sys
}

// NewBinding registers an inactive binding for emitter config em on fluid fl.
func (s *System) NewBinding(name string, em config.EmitterConfig, fl config.FluidConfig) (*Binding, error) {
	mode, err := ParseOrientationMode(em.Orientation)
	if err != nil {
		return nil, err
	}
	if _, err := emitterDesc(em, s.ctx, solver.IdentityPose(), true); err != nil {
		return nil, err
	}
	s.nextID++
	b := &Binding{
		sys:         s,
		id:          s.nextID,
		name:        name,
		cfg:         em,
		fluidCfg:    fl,
		mode:        mode,
		wantEnabled: true,
		pose:        solver.IdentityPose(),
	}
	s.bindings = append(s.bindings, b)
	return b, nil
}

// Context returns the current execution context.
func (s *System) Context() solver.Context { return s.ctx }

// SetContext switches execution context. Bindings notice on their next tick
// and recreate their fluids in the new context.
func (s *System) SetContext(ctx solver.Context) {
	if ctx != s.ctx {
		s.log.Info("execution context changed", "from", s.ctx.String(), "to", ctx.String())
	}
	s.ctx = ctx
}

// InAsyncPhase reports whether solver steps may be in flight.
func (s *System) InAsyncPhase() bool { return s.inAsync }

// Ticks returns the number of ticks begun.
func (s *System) Ticks() uint64 { return s.tick }

// Handles returns live handles in creation order.
func (s *System) Handles() []*Handle { return s.order }

// Bindings returns registered, unreleased bindings in registration order.
func (s *System) Bindings() []*Binding { return s.bindings }

// PendingOps returns the number of queued requests.
func (s *System) PendingOps() int { return s.pending.len() }

// RequestForce accumulates app over every fluid. Allowed during the async phase.
func (s *System) RequestForce(app Applicator, region r3.Box) bool {
	applied := false
	for _, h := range s.order {
		if h.AddForce(app, region) {
			applied = true
		}
	}
	return applied
}

// BeginTick resolves queued requests, advances binding clocks and starts the
// solver steps. The caller must call EndTick before the next BeginTick.
func (s *System) BeginTick(dt float64) {
	if s.inAsync {
		s.log.Warn("BeginTick called during async phase, closing previous tick")
		if err := s.EndTick(); err != nil {
			s.errs = append(s.errs, err)
		}
	}
	s.tick++
	s.dt = dt
	s.drain()

	for _, b := range slices.Clone(s.bindings) {
		if err := b.update(dt); err != nil {
			s.errs = append(s.errs, err)
		}
	}

	stepDT := dt
	if s.maxDT > 0 {
		stepDT = min(dt, s.maxDT)
	}
	for _, h := range slices.Clone(s.order) {
		h.beginStep(stepDT)
	}
	s.inAsync = true
}

// EndTick waits for the solver steps, reconciles every stepped fluid and
// resolves requests made during the async phase. Soft failures from the whole
// tick are returned joined.
func (s *System) EndTick() error {
	for _, h := range slices.Clone(s.order) {
		if err := h.fence(); err != nil {
			s.errs = append(s.errs, err)
		}
	}
	s.inAsync = false

	for _, h := range slices.Clone(s.order) {
		if err := h.sync(s.dt); err != nil {
			s.errs = append(s.errs, err)
		}
	}
	s.drain()

	err := errors.Join(s.errs...)
	s.errs = s.errs[:0]
	return err
}

// Tick runs BeginTick and EndTick back to back.
func (s *System) Tick(dt float64) error {
	s.BeginTick(dt)
	return s.EndTick()
}

// Close releases every binding and fluid.
func (s *System) Close() error {
	if s.inAsync {
		if err := s.EndTick(); err != nil {
			s.log.Warn("closing during async phase", "error", err)
		}
	}
	for _, b := range slices.Clone(s.bindings) {
		b.Release()
	}
	s.drain()
	return nil
}

func (s *System) drain() {
	s.pending.drain(func(op PendingOp) {
		b := op.Binding
		switch op.Kind {
		case OpCreate:
			if b.state != StatePendingCreate {
				return
			}
			if err := b.create(); err != nil {
				s.errs = append(s.errs, err)
			}
		case OpDestroy:
			if b.state != StateReleased {
				b.destroy()
			}
		case OpEnable, OpDisable:
			b.applyEnabled()
		case OpReconfigure:
			if err := b.applyConfig(*op.Params); err != nil {
				s.errs = append(s.errs, err)
			}
		case OpFill:
			if err := b.fill(op.Region); err != nil {
				s.errs = append(s.errs, err)
			}
		}
	})
	for _, b := range s.bindings {
		b.flushPose()
	}
}

func (s *System) acquire(cfg config.FluidConfig) *Handle {
	key := handleKey{cfg: cfg, ctx: s.ctx}
	if h, ok := s.handles[key]; ok {
		return h
	}
	h := newHandle(s, key)
	s.handles[key] = h
	s.order = append(s.order, h)
	return h
}

func (s *System) dropHandle(h *Handle) {
	if s.handles[h.key] == h {
		delete(s.handles, h.key)
	}
	if i := slices.Index(s.order, h); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

func (s *System) forget(b *Binding) {
	if i := slices.Index(s.bindings, b); i >= 0 {
		s.bindings = slices.Delete(s.bindings, i, i+1)
	}
}
