package telemetry

import "testing"

func hasBookmark(bms []Bookmark, typ BookmarkType) bool {
	for _, bm := range bms {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_CullSpike(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int32(i * 300), Particles: 500, Culled: 10})
	}

	bms := bd.Check(WindowStats{WindowEndTick: 1500, Particles: 500, Culled: 30})
	if !hasBookmark(bms, BookmarkCullSpike) {
		t.Error("expected cull_spike bookmark")
	}
}

func TestBookmarkDetector_NoCullSpikeWithoutHistory(t *testing.T) {
	bd := NewBookmarkDetector(10)
	if bms := bd.Check(WindowStats{Culled: 500}); hasBookmark(bms, BookmarkCullSpike) {
		t.Error("cull spike needs history")
	}
}

func TestBookmarkDetector_ParticleCrash(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int32(i * 300), Particles: 100})
	}

	bms := bd.Check(WindowStats{WindowEndTick: 1500, Particles: 50})
	if !hasBookmark(bms, BookmarkParticleCrash) {
		t.Error("expected particle_crash bookmark")
	}

	// peak resets after a crash
	bms = bd.Check(WindowStats{WindowEndTick: 1800, Particles: 48})
	if hasBookmark(bms, BookmarkParticleCrash) {
		t.Error("crash should not retrigger against the old peak")
	}
}

func TestBookmarkDetector_GrowthAndRebuild(t *testing.T) {
	bd := NewBookmarkDetector(10)

	bms := bd.Check(WindowStats{WindowEndTick: 300, Growths: 1, Rebuilds: 2, Handoffs: 2})
	if !hasBookmark(bms, BookmarkCapacityGrowth) {
		t.Error("expected capacity_growth bookmark")
	}
	if !hasBookmark(bms, BookmarkIndexRebuild) {
		t.Error("expected index_rebuild bookmark")
	}
}

func TestBookmarkDetector_SteadyState(t *testing.T) {
	bd := NewBookmarkDetector(10)

	var at int = -1
	for i := 0; i < 12; i++ {
		bms := bd.Check(WindowStats{WindowEndTick: int32(i * 300), Particles: 200})
		if hasBookmark(bms, BookmarkSteadyState) {
			if at >= 0 {
				t.Fatalf("steady_state fired twice, at %d and %d", at, i)
			}
			at = i
		}
	}
	if at != 8 {
		t.Errorf("steady_state fired at window %d, want 8", at)
	}
}
