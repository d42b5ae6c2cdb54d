package forces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
)

func vecsNear(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "z")
}

func TestRadialLinearFalloff(t *testing.T) {
	f, err := NewRadial(config.RadialForceConfig{Name: "blast", Radius: 4, Strength: 40, Falloff: "linear"}, r3.Vec{})
	require.NoError(t, err)

	pos := []r3.Vec{{X: 2}, {X: 5}, {}}
	out := make([]r3.Vec, len(pos))
	require.True(t, f.ComputeForce(pos, nil, out, f.Bounds()))
	vecsNear(t, r3.Vec{X: 20}, out[0])
	assert.Equal(t, r3.Vec{}, out[1], "outside radius")
	assert.Equal(t, r3.Vec{}, out[2], "at the origin")
}

func TestRadialAddsIntoOut(t *testing.T) {
	f, err := NewRadial(config.RadialForceConfig{Radius: 4, Strength: 1}, r3.Vec{})
	require.NoError(t, err)
	out := []r3.Vec{{Z: 7}}
	f.ComputeForce([]r3.Vec{{X: 1}}, nil, out, f.Bounds())
	vecsNear(t, r3.Vec{X: 1, Z: 7}, out[0])
}

func TestRadialSwirl(t *testing.T) {
	f, err := NewRadial(config.RadialForceConfig{Radius: 2, Swirl: 3}, r3.Vec{})
	require.NoError(t, err)
	out := make([]r3.Vec, 1)
	require.True(t, f.ComputeForce([]r3.Vec{{X: 1}}, nil, out, f.Bounds()))
	vecsNear(t, r3.Vec{Y: 3}, out[0])
}

func TestRadialExclusion(t *testing.T) {
	f, err := NewRadial(config.RadialForceConfig{Radius: 4, Strength: 1}, r3.Vec{})
	require.NoError(t, err)
	f.Exclude = []r3.Box{{Min: r3.Vec{X: 0.5, Y: -1, Z: -1}, Max: r3.Vec{X: 1.5, Y: 1, Z: 1}}}

	pos := []r3.Vec{{X: 1}, {X: -1}}
	out := make([]r3.Vec, 2)
	require.True(t, f.ComputeForce(pos, nil, out, f.Bounds()))
	assert.Equal(t, r3.Vec{}, out[0])
	vecsNear(t, r3.Vec{X: -1}, out[1])

	// A packet entirely inside an exclusion box is skipped wholesale.
	inside := r3.Box{Min: r3.Vec{X: 0.8}, Max: r3.Vec{X: 1.2}}
	assert.False(t, f.ComputeForce(pos, nil, make([]r3.Vec, 2), inside))
}

func TestRadialDegenerate(t *testing.T) {
	f, err := NewRadial(config.RadialForceConfig{Radius: 0, Strength: 1}, r3.Vec{})
	require.NoError(t, err)
	assert.False(t, f.ComputeForce([]r3.Vec{{X: 0.1}}, nil, make([]r3.Vec, 1), r3.Box{}))

	_, err = NewRadial(config.RadialForceConfig{Name: "x", Falloff: "cubic"}, r3.Vec{})
	assert.Error(t, err)
}

func TestRadialBounds(t *testing.T) {
	f, err := NewRadial(config.RadialForceConfig{Radius: 2}, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	assert.Equal(t, r3.Box{Min: r3.Vec{X: -1, Y: -1, Z: -1}, Max: r3.Vec{X: 3, Y: 3, Z: 3}}, f.Bounds())
}

func vortex() *Cylindrical {
	return NewCylindrical(config.CylindricalForceConfig{
		Radius:             2,
		Height:             4,
		RotationalStrength: 10,
		LiftStrength:       5,
		LiftFalloffHeight:  0.5,
	}, r3.Vec{})
}

func TestCylindricalSpinAndLift(t *testing.T) {
	f := vortex()
	assert.Equal(t, 2.0, f.RadiusTop, "top radius defaults to base radius")

	pos := []r3.Vec{
		{X: 1, Z: 1},  // lower half, full lift
		{X: 1, Z: 3},  // above the falloff height
		{X: 1, Z: -1}, // below the base
		{X: 3, Z: 1},  // outside the radius
	}
	out := make([]r3.Vec, len(pos))
	require.True(t, f.ComputeForce(pos, nil, out, f.Bounds()))
	vecsNear(t, r3.Vec{Y: 5, Z: 5}, out[0])
	vecsNear(t, r3.Vec{Y: 5, Z: 2.5}, out[1])
	assert.Equal(t, r3.Vec{}, out[2])
	assert.Equal(t, r3.Vec{}, out[3])
}

func TestCylindricalRadialPull(t *testing.T) {
	f := vortex()
	f.RadialStrength = 8
	out := make([]r3.Vec, 1)
	f.ComputeForce([]r3.Vec{{X: 1, Z: 1}}, nil, out, f.Bounds())
	vecsNear(t, r3.Vec{X: -4, Y: 5, Z: 5}, out[0])
}

func TestCylindricalSpecialRadial(t *testing.T) {
	f := vortex()
	f.RadialStrength = 8
	f.EscapeVelocity = 6
	f.SpecialRadial = true

	pos := []r3.Vec{{X: 1, Z: 1}, {X: 1, Z: 1}, {X: 1, Z: 1}}
	vel := []r3.Vec{
		{X: -1}, // heading in, slow: held
		{X: 1},  // heading out
		{X: -9}, // heading in, fast enough to escape
	}
	out := make([]r3.Vec, len(pos))
	f.ComputeForce(pos, vel, out, f.Bounds())
	vecsNear(t, r3.Vec{X: -4, Y: 5, Z: 5}, out[0])
	vecsNear(t, r3.Vec{Y: 5, Z: 5}, out[1])
	vecsNear(t, r3.Vec{Y: 5, Z: 5}, out[2])
}

func TestCylindricalBounds(t *testing.T) {
	f := NewCylindrical(config.CylindricalForceConfig{Radius: 2, RadiusTop: 3, Height: 6}, r3.Vec{})
	assert.Equal(t, r3.Box{Min: r3.Vec{X: -3, Y: -3, Z: -3}, Max: r3.Vec{X: 3, Y: 3, Z: 9}}, f.Bounds())

	flat := NewCylindrical(config.CylindricalForceConfig{Radius: 2}, r3.Vec{})
	assert.False(t, flat.ComputeForce([]r3.Vec{{}}, nil, make([]r3.Vec, 1), flat.Bounds()))
}

func TestParseFalloff(t *testing.T) {
	for s, want := range map[string]Falloff{"": FalloffConstant, "constant": FalloffConstant, "linear": FalloffLinear} {
		got, err := ParseFalloff(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
