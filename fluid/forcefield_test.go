package fluid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
)

func upward(positions, velocities, out []r3.Vec, bounds r3.Box) bool {
	for i := range out {
		out[i] = r3.Add(out[i], r3.Vec{Z: 1})
	}
	return len(out) > 0
}

func snapshot() ([]solver.ParticleRecord, []solver.Packet) {
	recs := []solver.ParticleRecord{
		{ID: 3, Position: r3.Vec{X: 0}},
		{ID: 1, Position: r3.Vec{X: 1}},
		{ID: 0, Position: r3.Vec{X: 10}},
	}
	pks := []solver.Packet{
		{Bounds: r3.Box{Min: r3.Vec{X: 0}, Max: r3.Vec{X: 1}}, ParticleCount: 2, FirstIndex: 0},
		{Bounds: r3.Box{Min: r3.Vec{X: 10}, Max: r3.Vec{X: 10}}, ParticleCount: 1, FirstIndex: 2},
	}
	return recs, pks
}

func TestForceBridgeAccumulatesByID(t *testing.T) {
	recs, pks := snapshot()
	b := NewForceBridge(4, 2)

	region := r3.Box{Min: r3.Vec{X: -1, Y: -1, Z: -1}, Max: r3.Vec{X: 2, Y: 1, Z: 1}}
	require.True(t, b.AddForce(ApplicatorFunc(upward), region, recs, pks))
	require.True(t, b.AddForce(ApplicatorFunc(upward), region, recs, pks))
	assert.True(t, b.Pending())

	assert.Equal(t, r3.Vec{Z: 4}, b.Force(3))
	assert.Equal(t, r3.Vec{Z: 4}, b.Force(1))
	assert.Equal(t, r3.Vec{}, b.Force(0), "packet outside region")
	assert.Equal(t, r3.Vec{}, b.Force(99))
}

func TestForceBridgeNoOverlap(t *testing.T) {
	recs, pks := snapshot()
	b := NewForceBridge(4, 1)
	far := r3.Box{Min: r3.Vec{X: 50}, Max: r3.Vec{X: 60}}
	assert.False(t, b.AddForce(ApplicatorFunc(upward), far, recs, pks))
	assert.False(t, b.Pending())
}

func TestForceBridgeFlushOnce(t *testing.T) {
	recs, pks := snapshot()
	b := NewForceBridge(4, 1)
	f := &fakeFluid{}

	flushed, err := b.Flush(f)
	require.NoError(t, err)
	assert.False(t, flushed, "nothing pending")
	assert.Empty(t, f.forceCalls)

	everywhere := r3.Box{Min: r3.Vec{X: -100, Y: -100, Z: -100}, Max: r3.Vec{X: 100, Y: 100, Z: 100}}
	b.AddForce(ApplicatorFunc(upward), everywhere, recs, pks)
	flushed, err = b.Flush(f)
	require.NoError(t, err)
	assert.True(t, flushed)
	require.Len(t, f.forceCalls, 1)
	assert.Equal(t, []r3.Vec{{Z: 1}, {Z: 1}, {}, {Z: 1}}, f.forceCalls[0])

	// Buffer is zeroed after a flush.
	assert.Equal(t, r3.Vec{}, b.Force(3))
	assert.False(t, b.Pending())
}

func TestForceBridgeApplicatorReportsNothing(t *testing.T) {
	recs, pks := snapshot()
	b := NewForceBridge(4, 1)
	none := ApplicatorFunc(func(_, _, _ []r3.Vec, _ r3.Box) bool { return false })
	everywhere := r3.Box{Min: r3.Vec{X: -100, Y: -100, Z: -100}, Max: r3.Vec{X: 100, Y: 100, Z: 100}}
	assert.False(t, b.AddForce(none, everywhere, recs, pks))
	assert.False(t, b.Pending())
}

func TestForceBridgeReset(t *testing.T) {
	recs, pks := snapshot()
	b := NewForceBridge(4, 1)
	everywhere := r3.Box{Min: r3.Vec{X: -100, Y: -100, Z: -100}, Max: r3.Vec{X: 100, Y: 100, Z: 100}}
	b.AddForce(ApplicatorFunc(upward), everywhere, recs, pks)

	b.Reset(4)
	assert.True(t, b.Pending(), "same capacity keeps pending forces")

	b.Reset(8)
	assert.True(t, b.Pending(), "growing keeps pending forces")
	assert.Equal(t, r3.Vec{Z: 1}, b.Force(3))
	assert.Equal(t, r3.Vec{Z: 1}, b.Force(0))
	assert.Equal(t, r3.Vec{}, b.Force(7))

	f := &fakeFluid{}
	flushed, err := b.Flush(f)
	require.NoError(t, err)
	assert.True(t, flushed)
	require.Len(t, f.forceCalls, 1)
	assert.Len(t, f.forceCalls[0], 8)
	assert.Equal(t, r3.Vec{Z: 1}, f.forceCalls[0][1])
}

func TestPacketBounds(t *testing.T) {
	assert.Equal(t, r3.Box{}, packetBounds(nil))

	_, pks := snapshot()
	got := packetBounds(pks)
	assert.Equal(t, r3.Vec{X: -1, Y: -1, Z: -1}, got.Min)
	assert.Equal(t, r3.Vec{X: 11, Y: 1, Z: 1}, got.Max)
}
