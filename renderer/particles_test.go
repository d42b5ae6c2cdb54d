package renderer

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestRotateQuarterTurn(t *testing.T) {
	half := math.Pi / 4
	q := quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)} // 90 degrees about Z
	got := rotate(q, r3.Vec{X: 1})
	if math.Abs(got.X) > 1e-9 || math.Abs(got.Y-1) > 1e-9 || math.Abs(got.Z) > 1e-9 {
		t.Errorf("rotate = %+v, want (0,1,0)", got)
	}
}

func TestRotateIdentity(t *testing.T) {
	v := r3.Vec{X: 1, Y: -2, Z: 3}
	if got := rotate(quat.Number{Real: 1}, v); got != v {
		t.Errorf("identity rotate = %+v, want %+v", got, v)
	}
}
