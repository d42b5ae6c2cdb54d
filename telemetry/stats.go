package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated fluid statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// State at window end
	Bindings  int `csv:"bindings"`
	Fluids    int `csv:"fluids"`
	Particles int `csv:"particles"`

	// Events during window
	Created      int `csv:"created"`
	Deleted      int `csv:"deleted"`
	Spawned      int `csv:"spawned"`
	Culled       int `csv:"culled"`
	ForceFlushes int `csv:"force_flushes"`
	Rebuilds     int `csv:"rebuilds"`
	Growths      int `csv:"growths"`
	Handoffs     int `csv:"handoffs"`
	SoftErrors   int `csv:"soft_errors"`

	// Active particle count per tick over the window
	ActiveMean float64 `csv:"active_mean"`
	ActiveP10  float64 `csv:"active_p10"`
	ActiveP50  float64 `csv:"active_p50"`
	ActiveP90  float64 `csv:"active_p90"`

	// Packets reported per tick over the window
	PacketsMean float64 `csv:"packets_mean"`
	PacketsMax  float64 `csv:"packets_max"`

	// Particle speed distribution sampled at window end
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Fraction of created particles later culled
	CullRate float64 `csv:"cull_rate"`
}

// Distribution summarises values with the empirical quantile definition.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
	Max           float64
}

// Summarize computes a Distribution. An empty input yields zeros.
func Summarize(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var d Distribution
	d.Mean, d.Std = stat.PopMeanStdDev(sorted, nil)
	d.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	d.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	d.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	d.Max = sorted[len(sorted)-1]
	return d
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("bindings", s.Bindings),
		slog.Int("fluids", s.Fluids),
		slog.Int("particles", s.Particles),
		slog.Int("created", s.Created),
		slog.Int("deleted", s.Deleted),
		slog.Int("culled", s.Culled),
		slog.Int("handoffs", s.Handoffs),
		slog.Int("rebuilds", s.Rebuilds),
		slog.Float64("active_mean", s.ActiveMean),
		slog.Float64("active_p90", s.ActiveP90),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("cull_rate", s.CullRate),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"bindings", s.Bindings,
		"fluids", s.Fluids,
		"particles", s.Particles,
		"created", s.Created,
		"deleted", s.Deleted,
		"spawned", s.Spawned,
		"culled", s.Culled,
		"force_flushes", s.ForceFlushes,
		"rebuilds", s.Rebuilds,
		"growths", s.Growths,
		"handoffs", s.Handoffs,
		"soft_errors", s.SoftErrors,
		"active_mean", s.ActiveMean,
		"active_p50", s.ActiveP50,
		"active_p90", s.ActiveP90,
		"packets_mean", s.PacketsMean,
		"packets_max", s.PacketsMax,
		"speed_mean", s.SpeedMean,
		"speed_p90", s.SpeedP90,
		"cull_rate", s.CullRate,
	)
}
