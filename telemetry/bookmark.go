package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkCullSpike      BookmarkType = "cull_spike"
	BookmarkCapacityGrowth BookmarkType = "capacity_growth"
	BookmarkIndexRebuild   BookmarkType = "index_rebuild"
	BookmarkParticleCrash  BookmarkType = "particle_crash"
	BookmarkSteadyState    BookmarkType = "steady_state"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int32        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector flags notable windows in a run.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	peakParticles int
	steadyWindows int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark
	add := func(b *Bookmark) {
		if b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	add(bd.checkCapacityGrowth(stats))
	add(bd.checkIndexRebuild(stats))
	if bd.historyFull || bd.historyIdx > 0 {
		add(bd.checkCullSpike(stats))
		add(bd.checkParticleCrash(stats))
		add(bd.checkSteadyState(stats))
	}

	bd.addToHistory(stats)
	if stats.Particles > bd.peakParticles {
		bd.peakParticles = stats.Particles
	}
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// recent returns up to n windows in chronological order, newest last.
func (bd *BookmarkDetector) recent(n int) []WindowStats {
	size := bd.historyIdx
	if bd.historyFull {
		size = bd.historySize
	}
	n = min(n, size)
	out := make([]WindowStats, 0, n)
	for i := n; i > 0; i-- {
		idx := (bd.historyIdx - i + bd.historySize) % bd.historySize
		out = append(out, bd.history[idx])
	}
	return out
}

func (bd *BookmarkDetector) checkCullSpike(stats WindowStats) *Bookmark {
	history := bd.recent(bd.historySize)
	if len(history) < 3 {
		return nil
	}
	var total int
	for _, h := range history {
		total += h.Culled
	}
	avg := float64(total) / float64(len(history))
	if avg == 0 || stats.Culled < 10 {
		return nil
	}
	if float64(stats.Culled) > avg*2 {
		return &Bookmark{
			Type:        BookmarkCullSpike,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Culled %d particles, %.1fx average (%.1f)", stats.Culled, float64(stats.Culled)/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkCapacityGrowth(stats WindowStats) *Bookmark {
	if stats.Growths == 0 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkCapacityGrowth,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Fluid capacity grew %d times, %d particles live", stats.Growths, stats.Particles),
	}
}

func (bd *BookmarkDetector) checkIndexRebuild(stats WindowStats) *Bookmark {
	if stats.Rebuilds == 0 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkIndexRebuild,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Active index rebuilt %d times after %d primary handoffs", stats.Rebuilds, stats.Handoffs),
	}
}

func (bd *BookmarkDetector) checkParticleCrash(stats WindowStats) *Bookmark {
	if bd.peakParticles == 0 {
		return nil
	}
	drop := 1.0 - float64(stats.Particles)/float64(bd.peakParticles)
	if drop > 0.30 && stats.Particles < bd.peakParticles-10 {
		old := bd.peakParticles
		bd.peakParticles = stats.Particles
		return &Bookmark{
			Type:        BookmarkParticleCrash,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Particles dropped %.0f%% from peak %d to %d", drop*100, old, stats.Particles),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkSteadyState(stats WindowStats) *Bookmark {
	if stats.Particles < 10 {
		bd.steadyWindows = 0
		return nil
	}
	history := bd.recent(4)
	if len(history) < 4 {
		return nil
	}
	counts := make([]float64, len(history))
	for i, h := range history {
		counts[i] = float64(h.Particles)
	}
	mean, variance := stat.PopMeanVariance(counts, nil)

	// CV^2 < 0.04 means CV < 0.2
	if mean > 0 && variance/(mean*mean) < 0.04 {
		bd.steadyWindows++
	} else {
		bd.steadyWindows = 0
	}

	if bd.steadyWindows == 5 {
		return &Bookmark{
			Type:        BookmarkSteadyState,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Steady state around %.0f particles over 5+ windows", mean),
		}
	}
	return nil
}
