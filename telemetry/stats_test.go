package telemetry

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		mean   float64
		p50    float64
		max    float64
	}{
		{"empty", nil, 0, 0, 0},
		{"single", []float64{5}, 5, 5, 5},
		{"odd", []float64{5, 1, 4, 2, 3}, 3, 3, 5},
		{"constant", []float64{7, 7, 7, 7}, 7, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Summarize(tt.values)
			if math.Abs(d.Mean-tt.mean) > 1e-9 {
				t.Errorf("mean = %v, want %v", d.Mean, tt.mean)
			}
			if math.Abs(d.P50-tt.p50) > 1e-9 {
				t.Errorf("p50 = %v, want %v", d.P50, tt.p50)
			}
			if d.Max != tt.max {
				t.Errorf("max = %v, want %v", d.Max, tt.max)
			}
		})
	}
}

func TestSummarizeSpread(t *testing.T) {
	d := Summarize([]float64{1, 2, 3, 4, 5})
	if math.Abs(d.Std-math.Sqrt2) > 1e-9 {
		t.Errorf("std = %v, want %v", d.Std, math.Sqrt2)
	}
	if d.P10 > d.P50 || d.P50 > d.P90 {
		t.Errorf("quantiles out of order: %v %v %v", d.P10, d.P50, d.P90)
	}
}

func TestSummarizeDoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Summarize(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Errorf("input reordered: %v", in)
	}
}
