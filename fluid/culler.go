package fluid

import (
	"slices"

	"github.com/pthm-cable/fluidbridge/solver"
)

// Culler decides which particles to drop when the solver reports more packets
// than the budget allows. A nil Culler disables culling.
type Culler interface {
	// Cull returns per-slot drop flags for a snapshot of particleCount
	// particles, or nil when nothing should be dropped.
	Cull(packets []solver.Packet, particleCount, budget int) []bool
}

// PacketCuller drops whole packets, smallest first. Ties keep the solver's
// packet order, so the same input always culls the same particles.
type PacketCuller struct {
	order []int
	flags []bool
}

// NewPacketCuller returns a culler with empty scratch buffers.
func NewPacketCuller() *PacketCuller { return &PacketCuller{} }

// Cull flags every particle in the len(packets)-budget least populated packets.
// The returned slice is reused by the next call.
func (c *PacketCuller) Cull(packets []solver.Packet, particleCount, budget int) []bool {
	if budget <= 0 || len(packets) <= budget {
		return nil
	}

	c.order = c.order[:0]
	for i := range packets {
		c.order = append(c.order, i)
	}
	slices.SortStableFunc(c.order, func(a, b int) int {
		return packets[a].ParticleCount - packets[b].ParticleCount
	})

	if cap(c.flags) < particleCount {
		c.flags = make([]bool, particleCount)
	} else {
		c.flags = c.flags[:particleCount]
		clear(c.flags)
	}

	drop := len(packets) - budget
	for _, pi := range c.order[:drop] {
		p := packets[pi]
		lo := max(p.FirstIndex, 0)
		hi := min(p.FirstIndex+p.ParticleCount, particleCount)
		for i := lo; i < hi; i++ {
			c.flags[i] = true
		}
	}
	return c.flags
}

// culledIDs maps flagged snapshot slots to particle IDs, appending to dst.
func culledIDs(flags []bool, particles []solver.ParticleRecord, dst []solver.ParticleID) []solver.ParticleID {
	for i, drop := range flags {
		if drop && i < len(particles) {
			dst = append(dst, particles[i].ID)
		}
	}
	return dst
}
