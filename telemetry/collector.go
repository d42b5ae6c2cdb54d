package telemetry

import "github.com/pthm-cable/fluidbridge/fluid"

// Collector accumulates per-tick fluid stats within time windows and
// produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float32

	windowStartTick int32

	created      int
	deleted      int
	spawned      int
	culled       int
	forceFlushes int
	rebuilds     int
	growths      int
	handoffs     int
	softErrors   int

	// one sample per tick, summed over handles
	active  []float64
	packets []float64
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	ticksPerWindow := int32(windowDurationSec / float64(dt))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}
	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
		active:              make([]float64, 0, ticksPerWindow),
		packets:             make([]float64, 0, ticksPerWindow),
	}
}

// RecordTick folds the stats of every handle synced this tick into the window.
func (c *Collector) RecordTick(handles []fluid.TickStats) {
	var active, packets int
	for _, s := range handles {
		active += s.Particles
		packets += s.Packets
		c.created += s.Created
		c.deleted += s.Deleted
		c.spawned += s.Spawned
		c.culled += s.Culled
		if s.ForcesFlush {
			c.forceFlushes++
		}
		if s.Rebuilt {
			c.rebuilds++
		}
		if s.Grown {
			c.growths++
		}
		if s.Handoff {
			c.handoffs++
		}
	}
	c.active = append(c.active, float64(active))
	c.packets = append(c.packets, float64(packets))
}

// RecordError counts a soft error returned from a tick.
func (c *Collector) RecordError() {
	c.softErrors++
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// bindings and fluids are the live counts at window end; speeds are the
// particle speeds sampled now.
func (c *Collector) Flush(currentTick int32, bindings, fluids, particles int, speeds []float64) WindowStats {
	act := Summarize(c.active)
	pk := Summarize(c.packets)
	sp := Summarize(speeds)

	var cullRate float64
	if c.created > 0 {
		cullRate = float64(c.culled) / float64(c.created)
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * float64(c.dt),

		Bindings:  bindings,
		Fluids:    fluids,
		Particles: particles,

		Created:      c.created,
		Deleted:      c.deleted,
		Spawned:      c.spawned,
		Culled:       c.culled,
		ForceFlushes: c.forceFlushes,
		Rebuilds:     c.rebuilds,
		Growths:      c.growths,
		Handoffs:     c.handoffs,
		SoftErrors:   c.softErrors,

		ActiveMean: act.Mean,
		ActiveP10:  act.P10,
		ActiveP50:  act.P50,
		ActiveP90:  act.P90,

		PacketsMean: pk.Mean,
		PacketsMax:  pk.Max,

		SpeedMean: sp.Mean,
		SpeedStd:  sp.Std,
		SpeedP90:  sp.P90,

		CullRate: cullRate,
	}

	c.windowStartTick = currentTick
	c.created = 0
	c.deleted = 0
	c.spawned = 0
	c.culled = 0
	c.forceFlushes = 0
	c.rebuilds = 0
	c.growths = 0
	c.handoffs = 0
	c.softErrors = 0
	c.active = c.active[:0]
	c.packets = c.packets[:0]

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
