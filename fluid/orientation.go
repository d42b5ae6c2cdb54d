package fluid

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
)

const (
	sphericalEpsilon = 0.001
	boxEpsilon       = 0.01
	maxRotPerStep    = 2.5
)

// integrateOrientation advances per-particle orientation for the given mode.
// up is derived from gravity; a zero gravity falls back to +Z.
func integrateOrientation(mode OrientationMode, dt, coeff, size float64, gravity r3.Vec, particles []solver.ParticleRecord, attrs *AttributeStore) {
	up := r3.Vec{Z: 1}
	if r3.Norm2(gravity) > 0 {
		up = r3.Unit(r3.Scale(-1, gravity))
	}
	switch mode {
	case OrientationSpherical:
		integrateSpherical(dt, coeff, up, particles, attrs)
	case OrientationBox:
		integrateBox(dt, size, up, particles, attrs)
	}
}

// integrateSpherical rolls each particle along its horizontal velocity, as a
// ball would on the ground plane.
func integrateSpherical(dt, coeff float64, up r3.Vec, particles []solver.ParticleRecord, attrs *AttributeStore) {
	for _, rec := range particles {
		vel := r3.Sub(rec.Velocity, r3.Scale(r3.Dot(rec.Velocity, up), up))
		speed := r3.Norm(vel)
		if speed <= sphericalEpsilon {
			continue
		}
		axis := r3.Cross(vel, up)
		if r3.Norm(axis) <= sphericalEpsilon {
			continue
		}
		axis = r3.Scale(-speed, r3.Unit(axis))

		angle := dt * speed * coeff
		s := math.Sin(angle) / speed
		step := quat.Number{Real: math.Cos(angle), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}

		a := attrs.at(rec.ID)
		a.Orientation = normalize(quat.Mul(step, a.Orientation))
		a.AngularVelocity = axis
	}
}

// integrateBox tumbles box-shaped particles: contacts drive angular velocity
// and a resting box is nudged towards lying on its nearest face.
func integrateBox(dt, size float64, globalUp r3.Vec, particles []solver.ParticleRecord, attrs *AttributeStore) {
	if size <= boxEpsilon {
		size = 1
	}
	for _, rec := range particles {
		a := attrs.at(rec.ID)
		limit := r3.Norm(rec.Velocity) / size

		up := globalUp
		colliding := false
		if r3.Norm2(rec.CollisionNormal) > boxEpsilon {
			n := r3.Unit(rec.CollisionNormal)
			up = n
			t := r3.Sub(rec.Velocity, r3.Scale(r3.Dot(n, rec.Velocity), n))
			a.AngularVelocity = r3.Scale(-1/size, r3.Cross(t, n))
			colliding = true
		}

		// Pick the box axis closest to up, either sign.
		var faceUp r3.Vec
		best := 0.0
		for _, axis := range [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}} {
			col := rotate(a.Orientation, axis)
			d := r3.Dot(col, up)
			if d > best {
				faceUp, best = col, d
			}
			if -d > best {
				faceUp, best = r3.Scale(-1, col), -d
			}
		}

		var correction r3.Vec
		if colliding {
			correction = r3.Cross(faceUp, up)
			maxMag := 0.5 / (1 + limit)
			if m := r3.Norm(correction); m > maxMag {
				correction = r3.Scale(maxMag/m, correction)
			}
		}

		if m := r3.Norm(a.AngularVelocity); m > limit {
			if m > 0 {
				a.AngularVelocity = r3.Scale(limit/m, a.AngularVelocity)
			}
		}

		axis := r3.Add(r3.Scale(dt, a.AngularVelocity), correction)
		angle := r3.Norm(axis)
		if angle <= boxEpsilon {
			continue
		}
		axis = r3.Scale(1/angle, axis)
		angle = math.Min(angle, maxRotPerStep)
		a.Orientation = normalize(quat.Mul(axisAngle(axis, angle), a.Orientation))
	}
}

func axisAngle(axis r3.Vec, angle float64) quat.Number {
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// rotate applies unit quaternion q to v.
func rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}
