package game

import (
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	speeds := g.sampleSpeeds()
	stats := g.collector.Flush(g.tick, len(g.sys.Bindings()), len(g.sys.Handles()), g.ParticleCount(), speeds)
	perfStats := g.perfCollector.Stats()

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := g.outputManager.WriteStats(stats); err != nil {
		slog.Error("failed to write stats", "error", err)
	}
	if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, bm := range g.bookmarkDetector.Check(stats) {
		if g.logStats {
			bm.LogBookmark()
		}
		if err := g.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
	}
}

// sampleSpeeds collects the speed of every active particle.
func (g *Game) sampleSpeeds() []float64 {
	speeds := make([]float64, 0, g.ParticleCount())
	for _, h := range g.sys.Handles() {
		for _, id := range h.ActiveIDs() {
			speeds = append(speeds, r3.Norm(h.ParticleRecord(id).Velocity))
		}
	}
	return speeds
}
