package fluid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm-cable/fluidbridge/solver"
)

func packets(counts ...int) []solver.Packet {
	var out []solver.Packet
	first := 0
	for _, n := range counts {
		out = append(out, solver.Packet{ParticleCount: n, FirstIndex: first})
		first += n
	}
	return out
}

func flagged(flags []bool) []int {
	var out []int
	for i, f := range flags {
		if f {
			out = append(out, i)
		}
	}
	return out
}

func TestPacketCuller(t *testing.T) {
	tests := []struct {
		name    string
		counts  []int
		budget  int
		flagged []int
	}{
		{"disabled", []int{1, 2, 3}, 0, nil},
		{"within budget", []int{1, 2, 3}, 3, nil},
		{"drops smallest", []int{3, 1, 2}, 2, []int{3}},
		{"five one three", []int{5, 1, 3}, 2, []int{5}},
		{"drops two smallest", []int{3, 1, 2}, 1, []int{3, 4, 5}},
		{"ties keep solver order", []int{2, 2, 2}, 1, []int{0, 1, 2, 3}},
		{"empty packets count", []int{0, 2}, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := packets(tt.counts...)
			total := 0
			for _, n := range tt.counts {
				total += n
			}
			flags := NewPacketCuller().Cull(ps, total, tt.budget)
			if tt.flagged == nil {
				assert.Empty(t, flagged(flags))
				return
			}
			assert.Equal(t, tt.flagged, flagged(flags))
		})
	}
}

func TestPacketCullerReusesBuffer(t *testing.T) {
	c := NewPacketCuller()
	first := c.Cull(packets(1, 5), 6, 1)
	assert.Equal(t, []int{0}, flagged(first))

	second := c.Cull(packets(4, 1), 5, 1)
	assert.Equal(t, []int{4}, flagged(second))
}

func TestCulledIDs(t *testing.T) {
	recs := []solver.ParticleRecord{{ID: 9}, {ID: 3}, {ID: 7}}
	ids := culledIDs([]bool{true, false, true, true}, recs, nil)
	assert.Equal(t, []solver.ParticleID{9, 7}, ids)
}
