package fluid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
)

// beginStep elects the primary and launches its solver step on a goroutine.
// It reports whether a step was started.
func (h *Handle) beginStep(dt float64) bool {
	h.stats = TickStats{}
	if h.fluid == nil || h.stepping {
		return false
	}
	p := h.electPrimary()
	if p == nil {
		return false
	}
	if h.steppedTick == h.sys.tick {
		return false
	}
	for _, b := range h.bindings {
		b.flushPose()
	}

	h.steppedTick = h.sys.tick
	h.stepping = true
	f := h.fluid
	go func() {
		h.stepDone <- f.Step(dt)
	}()
	return true
}

// fence waits for an in-flight step and applies a deferred teardown.
func (h *Handle) fence() error {
	if !h.stepping {
		return nil
	}
	err := <-h.stepDone
	h.stepping = false
	if h.teardown {
		h.release()
		return nil
	}
	if err != nil {
		return fmt.Errorf("stepping fluid %q: %w", h.key.cfg.Name, err)
	}
	return nil
}

// sync reconciles the render-side view with the solver's write-back buffers.
// It runs once per tick for handles whose primary stepped this tick.
func (h *Handle) sync(dt float64) error {
	if h.fluid == nil || h.steppedTick != h.sys.tick {
		return nil
	}

	if err := h.readBack(); err != nil {
		return err
	}
	wb := h.wb
	h.stats.Particles = len(wb.Particles)
	h.stats.Packets = len(wb.Packets)
	h.stats.Created = len(wb.Created)
	h.stats.Deleted = len(wb.Deleted)

	if !h.active.InSync() {
		if h.active.RebuildFromRanks() {
			h.log.Warn("rebuilt index buffer from rank buffer")
		} else {
			h.log.Warn("rank buffer corrupt, cleared active set")
		}
		h.stats.Rebuilt = true
	}

	// Created IDs get fresh attributes and are flagged for the spawn callback.
	for _, id := range wb.Created {
		h.attrs.Reset(id)
		h.records[id].Life = needsSpawn
	}

	spawn := h.spawnFunc()
	h.membership.ClearAll()
	for _, rec := range wb.Particles {
		h.membership.Set(uint(rec.ID))
	}

	for _, rec := range wb.Particles {
		id := rec.ID
		wasActive := h.active.IsActive(id)
		if !wasActive {
			if _, err := h.active.Activate(id); err != nil {
				h.log.Error("activating particle", "error", err)
				continue
			}
			h.stats.Activated++
		}
		if !wasActive || h.records[id].Life == needsSpawn {
			h.spawnAttributes(spawn, id, rec)
		}
		h.records[id] = rec
	}

	// Walking backwards keeps swap-with-last from skipping entries.
	for r := h.active.Count() - 1; r >= 0; r-- {
		id := h.active.At(r)
		if !h.membership.Test(uint(id)) {
			if err := h.active.Deactivate(id); err != nil {
				h.log.Error("deactivating particle", "error", err)
				continue
			}
			h.stats.Deactivated++
		}
	}

	if n := h.active.Count(); n != len(wb.Particles) {
		h.log.Warn("active count mismatch after sync", "active", n, "reported", len(wb.Particles))
	}

	h.bounds = packetBounds(wb.Packets)

	var errs []error
	if err := h.cull(); err != nil {
		errs = append(errs, err)
	}
	if p := h.Primary(); p != nil && h.key.cfg.NeedsExtendedData {
		integrateOrientation(p.mode, dt, p.cfg.RotationCoefficient, p.cfg.ParticleSize, h.fluid.Gravity(), wb.Particles, h.attrs)
	}
	flushed, err := h.forces.Flush(h.fluid)
	if err != nil {
		errs = append(errs, err)
	}
	h.stats.ForcesFlush = flushed
	return errors.Join(errs...)
}

func (h *Handle) readBack() error {
	err := h.fluid.ReadBack(h.wb)
	if errors.Is(err, solver.ErrBufferTooSmall) {
		h.grow(h.capacity * 2)
		err = h.fluid.ReadBack(h.wb)
	}
	if err != nil {
		return fmt.Errorf("reading back fluid %q: %w", h.key.cfg.Name, err)
	}

	// A solver may overrun the nominal capacity; grow rather than truncate.
	need := len(h.wb.Particles)
	for _, rec := range h.wb.Particles {
		need = max(need, int(rec.ID)+1)
	}
	for _, id := range h.wb.Created {
		need = max(need, int(id)+1)
	}
	if need > h.capacity {
		h.grow(max(need, h.capacity*2))
	}
	return nil
}

func (h *Handle) spawnAttributes(spawn SpawnFunc, id solver.ParticleID, rec solver.ParticleRecord) {
	if spawn != nil {
		h.attrs.Set(id, spawn(id, rec))
	} else {
		h.attrs.Reset(id)
	}
	h.stats.Spawned++
}

func (h *Handle) cull() error {
	if h.culler == nil {
		return nil
	}
	budget := h.key.cfg.PacketBudget
	flags := h.culler.Cull(h.wb.Packets, len(h.wb.Particles), budget)
	if flags == nil {
		return nil
	}
	h.culled = culledIDs(flags, h.wb.Particles, h.culled[:0])
	if len(h.culled) == 0 {
		return nil
	}
	h.stats.Culled = len(h.culled)
	h.log.Debug("culling packets", "packets", len(h.wb.Packets), "budget", budget, "particles", len(h.culled))
	if err := h.fluid.RequestParticleDeletion(h.culled); err != nil {
		return fmt.Errorf("requesting deletion of %d culled particles: %w", len(h.culled), err)
	}
	return nil
}

func packetBounds(packets []solver.Packet) r3.Box {
	if len(packets) == 0 {
		return r3.Box{}
	}
	b := packets[0].Bounds
	for _, p := range packets[1:] {
		b = unionBox(b, p.Bounds)
	}
	pad := r3.Vec{X: 1, Y: 1, Z: 1}
	return r3.Box{Min: r3.Sub(b.Min, pad), Max: r3.Add(b.Max, pad)}
}
