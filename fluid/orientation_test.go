package fluid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
)

var gravity = r3.Vec{Z: -9.8}

func TestSphericalRollsAlongVelocity(t *testing.T) {
	attrs := NewAttributeStore(2)
	recs := []solver.ParticleRecord{
		{ID: 0, Velocity: r3.Vec{X: 2}},
		{ID: 1, Velocity: r3.Vec{Z: -5}}, // falling straight down
	}
	integrateOrientation(OrientationSpherical, 0.1, 1, 1, gravity, recs, attrs)

	rolled := attrs.Get(0)
	assert.InDelta(t, 0, rolled.AngularVelocity.X, 1e-9)
	assert.InDelta(t, 2, rolled.AngularVelocity.Y, 1e-9)
	assert.InDelta(t, 0, rolled.AngularVelocity.Z, 1e-9)
	assert.InDelta(t, 1, quat.Abs(rolled.Orientation), 1e-9)
	assert.NotEqual(t, quat.Number{Real: 1}, rolled.Orientation)

	assert.Equal(t, DefaultAttributes(), attrs.Get(1), "no horizontal motion, no roll")
}

func TestBoxAtRestDoesNotTurn(t *testing.T) {
	attrs := NewAttributeStore(1)
	recs := []solver.ParticleRecord{{ID: 0}}
	integrateOrientation(OrientationBox, 0.1, 1, 0.5, gravity, recs, attrs)
	assert.Equal(t, quat.Number{Real: 1}, attrs.Get(0).Orientation)
}

func TestBoxContactSpinsAndStaysUnit(t *testing.T) {
	attrs := NewAttributeStore(1)
	recs := []solver.ParticleRecord{{
		ID:              0,
		Velocity:        r3.Vec{X: 3},
		CollisionNormal: r3.Vec{Z: 1},
	}}
	for range 20 {
		integrateOrientation(OrientationBox, 0.05, 1, 0.5, gravity, recs, attrs)
	}
	a := attrs.Get(0)
	assert.InDelta(t, 1, quat.Abs(a.Orientation), 1e-9)
	assert.LessOrEqual(t, r3.Norm(a.AngularVelocity), 3/0.5+1e-9, "angular speed limited by v/size")
	assert.Greater(t, r3.Norm(a.AngularVelocity), 0.0)
}

func TestNoneModeLeavesAttributes(t *testing.T) {
	attrs := NewAttributeStore(1)
	recs := []solver.ParticleRecord{{ID: 0, Velocity: r3.Vec{X: 1}}}
	integrateOrientation(OrientationNone, 0.1, 1, 1, gravity, recs, attrs)
	assert.Equal(t, DefaultAttributes(), attrs.Get(0))
}

func TestRotateQuarterTurn(t *testing.T) {
	q := axisAngle(r3.Vec{Z: 1}, math.Pi/2)
	got := rotate(q, r3.Vec{X: 1})
	assert.InDelta(t, 0, got.X, 1e-9)
	assert.InDelta(t, 1, got.Y, 1e-9)
	assert.InDelta(t, 0, got.Z, 1e-9)
}

func TestParseOrientationMode(t *testing.T) {
	for s, want := range map[string]OrientationMode{
		"":          OrientationNone,
		"none":      OrientationNone,
		"spherical": OrientationSpherical,
		"box":       OrientationBox,
	} {
		got, err := ParseOrientationMode(s)
		assert.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	_, err := ParseOrientationMode("cube")
	assert.Error(t, err)
}
