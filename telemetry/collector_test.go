package telemetry

import (
	"testing"

	"github.com/pthm-cable/fluidbridge/fluid"
)

func TestCollector_WindowTicks(t *testing.T) {
	c := NewCollector(1.0, 0.25)
	if c.WindowDurationTicks() != 4 {
		t.Fatalf("window = %d ticks, want 4", c.WindowDurationTicks())
	}
	if c.ShouldFlush(3) {
		t.Error("should not flush before the window ends")
	}
	if !c.ShouldFlush(4) {
		t.Error("should flush at the window end")
	}
	if NewCollector(0, 0.5).WindowDurationTicks() != 1 {
		t.Error("window must be at least one tick")
	}
}

func TestCollector_Flush(t *testing.T) {
	c := NewCollector(1.0, 0.5)

	c.RecordTick([]fluid.TickStats{
		{Particles: 10, Packets: 2, Created: 10, Spawned: 10},
		{Particles: 4, Packets: 1, Created: 4, Grown: true},
	})
	c.RecordTick([]fluid.TickStats{
		{Particles: 6, Packets: 2, Deleted: 4, Culled: 2, ForcesFlush: true, Handoff: true},
	})
	c.RecordError()

	s := c.Flush(2, 3, 2, 6, []float64{1, 2, 3})
	if s.WindowStartTick != 0 || s.WindowEndTick != 2 || s.SimTimeSec != 1.0 {
		t.Errorf("window bounds %+v", s)
	}
	if s.Created != 14 || s.Deleted != 4 || s.Culled != 2 || s.Spawned != 10 {
		t.Errorf("event counts %+v", s)
	}
	if s.ForceFlushes != 1 || s.Growths != 1 || s.Handoffs != 1 || s.SoftErrors != 1 {
		t.Errorf("flag counts %+v", s)
	}
	if s.ActiveMean != 10 || s.PacketsMax != 3 {
		t.Errorf("active mean %v packets max %v", s.ActiveMean, s.PacketsMax)
	}
	if s.SpeedMean != 2 {
		t.Errorf("speed mean %v", s.SpeedMean)
	}
	if s.CullRate != 2.0/14.0 {
		t.Errorf("cull rate %v", s.CullRate)
	}

	next := c.Flush(4, 0, 0, 0, nil)
	if next.WindowStartTick != 2 || next.Created != 0 || next.ActiveMean != 0 {
		t.Errorf("counters not reset: %+v", next)
	}
}
